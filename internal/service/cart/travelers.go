package cart

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/service/travelers"
)

// SelectTraveler делает пассажира кандидатом позиции. Повторный выбор ничего не меняет.
func (s *Session) SelectTraveler(lineID string, traveler domain.TravelerRef) (domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bindLocked(lineID, traveler)
}

func (s *Session) bindLocked(lineID string, traveler domain.TravelerRef) (domain.CartLine, error) {
	if err := s.mutable(); err != nil {
		return domain.CartLine{}, err
	}
	idx, err := s.resolveLineID(lineID)
	if err != nil {
		return domain.CartLine{}, err
	}

	line, err := s.resolver.BindCandidate(s.lines[idx], traveler)
	if err != nil {
		return domain.CartLine{}, err
	}
	s.lines[idx] = line
	return line.Clone(), nil
}

// SelectTravelerByCode ищет пассажира по коду и привязывает его к позиции.
func (s *Session) SelectTravelerByCode(ctx context.Context, lineID, code string) (domain.CartLine, error) {
	if err := s.checkMutable(); err != nil {
		return domain.CartLine{}, err
	}
	traveler, err := s.resolver.LookupByCode(ctx, s.companyID, code)
	if err != nil {
		return domain.CartLine{}, err
	}
	return s.SelectTraveler(lineID, traveler)
}

// SelectTravelerByCPF ищет пассажира по CPF и привязывает его к позиции.
func (s *Session) SelectTravelerByCPF(ctx context.Context, lineID, cpf string) (domain.CartLine, error) {
	if err := s.checkMutable(); err != nil {
		return domain.CartLine{}, err
	}
	traveler, err := s.resolver.LookupByCPF(ctx, s.companyID, cpf)
	if err != nil {
		return domain.CartLine{}, err
	}
	return s.SelectTraveler(lineID, traveler)
}

// SearchTravelers — постраничный поиск в справочнике пассажиров компании.
func (s *Session) SearchTravelers(ctx context.Context, field domain.TravelerSearchField, value string, page int) (domain.TravelerPage, error) {
	return s.resolver.Search(ctx, s.companyID, field, value, page)
}

// CreateTraveler создаёт пассажира и добавляет его в начало кандидатов позиции.
func (s *Session) CreateTraveler(ctx context.Context, lineID string, fields domain.TravelerFields) (domain.Traveler, domain.CartLine, error) {
	s.mu.Lock()
	if err := s.mutable(); err != nil {
		s.mu.Unlock()
		return domain.Traveler{}, domain.CartLine{}, err
	}
	if _, err := s.resolveLineID(lineID); err != nil {
		s.mu.Unlock()
		return domain.Traveler{}, domain.CartLine{}, err
	}
	s.mu.Unlock()

	if fields.CompanyID == "" {
		fields.CompanyID = s.companyID
	}
	created, err := s.resolver.Create(ctx, fields)
	if err != nil {
		return domain.Traveler{}, domain.CartLine{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := s.bindLocked(lineID, created)
	if err != nil {
		return created, domain.CartLine{}, err
	}
	return created, line, nil
}

// UpdateTravelerField правит поле пассажира. Пока запрос в справочник выполняется,
// правка видна как Pending; снимок меняется только после подтверждения.
// Неудача не возвращается как ошибка: правка помечается RolledBack.
func (s *Session) UpdateTravelerField(ctx context.Context, travelerID string, field domain.TravelerField, value string) (travelers.FieldEdit, error) {
	s.mu.Lock()
	if err := s.mutable(); err != nil {
		s.mu.Unlock()
		return travelers.FieldEdit{}, err
	}
	snapshot, ok := travelers.FindSnapshot(s.lines, travelerID)
	if !ok {
		s.mu.Unlock()
		return travelers.FieldEdit{}, fmt.Errorf("traveler %s: %w", travelerID, domain.ErrTravelerNotCandidate)
	}
	edit, changed, err := s.resolver.PrepareEdit(snapshot, field, value)
	if err != nil || !changed {
		s.mu.Unlock()
		return edit, err
	}
	s.edits[edit.Key()] = edit
	s.mu.Unlock()

	edit, updated, confirmed := s.resolver.CommitEdit(ctx, edit)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Более поздняя правка того же поля не перезаписывается.
	if current, ok := s.edits[edit.Key()]; ok && current.Value != edit.Value && current.State == travelers.EditPending {
		return edit, nil
	}
	s.edits[edit.Key()] = edit
	if confirmed {
		s.lines = travelers.RefreshLines(s.lines, updated)
	} else {
		s.logger.WithFields(log.Fields{"traveler_id": travelerID, "field": field}).Info("traveler edit rolled back")
	}
	return edit, nil
}

// Edits возвращает последние правки полей пассажиров.
func (s *Session) Edits() []travelers.FieldEdit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editsLocked()
}

func (s *Session) editsLocked() []travelers.FieldEdit {
	out := make([]travelers.FieldEdit, 0, len(s.edits))
	for _, e := range s.edits {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
