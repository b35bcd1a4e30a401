// Package travelers ищет, создаёт и правит пассажиров во внешнем справочнике
// и поддерживает их денормализованные копии в позициях корзины.
package travelers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// EditRecorder учитывает исходы правок полей.
type EditRecorder interface {
	RecordTravelerEdit(result string)
}

// Resolver работает поверх TravelerDirectory и не хранит состояния сессии.
type Resolver struct {
	directory domain.TravelerDirectory
	validate  *validator.Validate
	logger    *log.Entry
	metrics   EditRecorder
	now       func() time.Time
}

// Option настраивает Resolver.
type Option func(*Resolver)

// WithMetrics подключает учёт правок.
func WithMetrics(m EditRecorder) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver создаёт резолвер пассажиров.
func NewResolver(directory domain.TravelerDirectory, logger *log.Entry, opts ...Option) *Resolver {
	if logger == nil {
		logger = log.New().WithField("component", "traveler-resolver")
	}
	r := &Resolver{
		directory: directory,
		validate:  NewValidator(),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LookupByCode ищет пассажира по точному коду. Промах — ErrTravelerNotFound.
func (r *Resolver) LookupByCode(ctx context.Context, companyID, code string) (domain.Traveler, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Traveler{}, domain.ErrTravelerLookupEmpty
	}
	return r.lookupExact(ctx, companyID, domain.TravelerSearchByCode, code, func(t domain.Traveler) bool {
		return t.Code == code
	})
}

// LookupByCPF ищет пассажира по CPF; сравнение идёт по цифрам.
func (r *Resolver) LookupByCPF(ctx context.Context, companyID, cpf string) (domain.Traveler, error) {
	cpf = Normalize(domain.TravelerFieldCPF, cpf)
	if cpf == "" {
		return domain.Traveler{}, domain.ErrTravelerLookupEmpty
	}
	return r.lookupExact(ctx, companyID, domain.TravelerSearchByCPF, cpf, func(t domain.Traveler) bool {
		return digitsOnly(t.CPF) == cpf
	})
}

func (r *Resolver) lookupExact(
	ctx context.Context,
	companyID string,
	field domain.TravelerSearchField,
	value string,
	match func(domain.Traveler) bool,
) (domain.Traveler, error) {
	page, err := r.directory.Search(ctx, companyID, field, value, 1)
	if err != nil {
		return domain.Traveler{}, fmt.Errorf("search traveler by %s: %w", field, err)
	}
	for _, t := range page.Items {
		if match(t) {
			return t, nil
		}
	}
	return domain.Traveler{}, fmt.Errorf("%s %q: %w", field, value, domain.ErrTravelerNotFound)
}

// LookupByID загружает пассажира из справочника по идентификатору.
func (r *Resolver) LookupByID(ctx context.Context, companyID, id string) (domain.Traveler, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Traveler{}, domain.ErrTravelerLookupEmpty
	}
	traveler, err := r.directory.Get(ctx, companyID, id)
	if err != nil {
		return domain.Traveler{}, fmt.Errorf("get traveler %s: %w", id, err)
	}
	return traveler, nil
}

// Search передаёт постраничный поиск в справочник.
func (r *Resolver) Search(ctx context.Context, companyID string, field domain.TravelerSearchField, value string, page int) (domain.TravelerPage, error) {
	switch field {
	case domain.TravelerSearchByCode, domain.TravelerSearchByCPF, domain.TravelerSearchByName:
	default:
		return domain.TravelerPage{}, fmt.Errorf("search field %q: %w", field, domain.ErrTravelerFieldUnknown)
	}
	if page < 1 {
		page = 1
	}
	if field == domain.TravelerSearchByCPF {
		value = digitsOnly(value)
	}
	return r.directory.Search(ctx, companyID, field, strings.TrimSpace(value), page)
}

// Create проверяет поля локально и только затем создаёт пассажира в справочнике.
func (r *Resolver) Create(ctx context.Context, fields domain.TravelerFields) (domain.Traveler, error) {
	fields = NormalizeFields(fields)
	if err := r.validate.Struct(fields); err != nil {
		return domain.Traveler{}, FormatValidationErrors(domain.ErrTravelerInvalid, err)
	}

	created, err := r.directory.Create(ctx, fields)
	if err != nil {
		return domain.Traveler{}, fmt.Errorf("create traveler: %w", err)
	}
	r.logger.WithFields(log.Fields{
		"traveler_id": created.ID,
		"company_id":  created.CompanyID,
	}).Info("traveler created")
	return created, nil
}

// BindCandidate добавляет пассажира в начало списка кандидатов позиции.
// Повторный выбор того же пассажира ничего не меняет. Если все слоты заняты
// пассажирами с местами, возвращается ErrLineFull; иначе вытесняется последний кандидат без места.
func (r *Resolver) BindCandidate(line domain.CartLine, traveler domain.TravelerRef) (domain.CartLine, error) {
	if line.CandidateIndex(traveler) >= 0 {
		return line, nil
	}
	if len(line.Assigned) >= line.Quantity {
		seatedAll := true
		for _, c := range line.Candidates {
			if _, ok := line.AssignmentFor(c.ID); !ok {
				seatedAll = false
				break
			}
		}
		if seatedAll {
			return line, domain.ErrLineFull
		}
	}

	out := line.Clone()
	out.Candidates = append([]domain.TravelerRef{traveler}, out.Candidates...)
	return out.FitCandidates(), nil
}

// PrepareEdit нормализует значение и сравнивает его со снимком.
// changed=false означает, что запрос в справочник не нужен.
func (r *Resolver) PrepareEdit(snapshot domain.Traveler, field domain.TravelerField, value string) (FieldEdit, bool, error) {
	if _, err := domain.ParseTravelerField(string(field)); err != nil {
		return FieldEdit{}, false, fmt.Errorf("field %q: %w", field, err)
	}
	normalized := Normalize(field, value)
	previous := snapshot.Get(field)
	if normalized == previous {
		return FieldEdit{}, false, nil
	}
	return FieldEdit{
		TravelerID: snapshot.ID,
		Field:      field,
		Value:      normalized,
		Previous:   previous,
		State:      EditPending,
		UpdatedAt:  r.now(),
	}, true, nil
}

// CommitEdit отправляет правку в справочник. Ошибка не возвращается:
// неудачная правка логируется и помечается RolledBack, снимок остаётся прежним.
func (r *Resolver) CommitEdit(ctx context.Context, edit FieldEdit) (FieldEdit, domain.Traveler, bool) {
	logger := r.logger.WithFields(log.Fields{
		"traveler_id": edit.TravelerID,
		"field":       edit.Field,
	})

	updated, err := r.directory.Update(ctx, edit.TravelerID, map[domain.TravelerField]string{edit.Field: edit.Value})
	edit.UpdatedAt = r.now()
	if err != nil {
		edit.State = EditRolledBack
		edit.Error = err.Error()
		logger.WithError(err).Warn("traveler edit dropped")
		r.record(EditRolledBack)
		return edit, domain.Traveler{}, false
	}

	edit.State = EditConfirmed
	edit.Value = updated.Get(edit.Field)
	logger.Debug("traveler edit confirmed")
	r.record(EditConfirmed)
	return edit, updated, true
}

// UpdateField — PrepareEdit и CommitEdit за один вызов.
func (r *Resolver) UpdateField(ctx context.Context, snapshot domain.Traveler, field domain.TravelerField, value string) (FieldEdit, domain.Traveler, error) {
	edit, changed, err := r.PrepareEdit(snapshot, field, value)
	if err != nil {
		return FieldEdit{}, snapshot, err
	}
	if !changed {
		return FieldEdit{}, snapshot, nil
	}
	edit, updated, ok := r.CommitEdit(ctx, edit)
	if !ok {
		return edit, snapshot, nil
	}
	return edit, updated, nil
}

func (r *Resolver) record(state EditState) {
	if r.metrics != nil {
		r.metrics.RecordTravelerEdit(string(state))
	}
}

// RefreshLines обновляет денормализованные копии пассажира во всех позициях.
func RefreshLines(lines []domain.CartLine, traveler domain.Traveler) []domain.CartLine {
	out := make([]domain.CartLine, len(lines))
	for i, line := range lines {
		l := line.Clone()
		for j, c := range l.Candidates {
			if c.ID == traveler.ID {
				l.Candidates[j] = traveler
			}
		}
		for j, a := range l.Assigned {
			if a.TravelerID == traveler.ID {
				l.Assigned[j].TravelerName = traveler.Name
			}
		}
		out[i] = l
	}
	return out
}

// FindSnapshot ищет последнюю известную копию пассажира среди позиций.
func FindSnapshot(lines []domain.CartLine, travelerID string) (domain.Traveler, bool) {
	for _, line := range lines {
		for _, c := range line.Candidates {
			if c.ID == travelerID {
				return c, true
			}
		}
	}
	return domain.Traveler{}, false
}
