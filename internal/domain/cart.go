package domain

// CartLine — одна позиция корзины PDV: услуга (поездка) с количеством мест и привязанными пассажирами.
type CartLine struct {
	// ID генерируется локально при добавлении позиции и не передаётся во внешний API.
	ID string `json:"id"`
	// ServiceID ссылается на внешнюю поездку (Trip).
	ServiceID string `json:"service_id"`
	// Quantity — количество мест, всегда >= 1.
	Quantity int `json:"quantity"`
	// Assigned — пассажиры с назначенными местами в порядке назначения.
	Assigned []SeatAssignment `json:"assigned_travelers"`
	// Candidates — пассажиры, выбранные или созданные для позиции; новые добавляются в начало.
	Candidates []TravelerRef `json:"candidate_travelers"`
}

// SeatAssignment связывает пассажира с номером места внутри позиции.
type SeatAssignment struct {
	TravelerID   string `json:"traveler_id"`
	TravelerName string `json:"traveler_name"`
	SeatNumber   int    `json:"seat_number"`
}

// TravelerRef — денормализованная копия пассажира для отображения; источник истины — Traveler Directory.
type TravelerRef = Traveler

// NewCartLine создаёт позицию с количеством 1 и пустыми списками.
func NewCartLine(id, serviceID string) CartLine {
	return CartLine{
		ID:         id,
		ServiceID:  serviceID,
		Quantity:   1,
		Assigned:   []SeatAssignment{},
		Candidates: []TravelerRef{},
	}
}

// Clone возвращает глубокую копию позиции.
func (l CartLine) Clone() CartLine {
	out := l
	out.Assigned = append([]SeatAssignment(nil), l.Assigned...)
	out.Candidates = append([]TravelerRef(nil), l.Candidates...)
	if out.Assigned == nil {
		out.Assigned = []SeatAssignment{}
	}
	if out.Candidates == nil {
		out.Candidates = []TravelerRef{}
	}
	return out
}

// AssignmentFor возвращает назначение пассажира, если оно есть.
func (l CartLine) AssignmentFor(travelerID string) (SeatAssignment, bool) {
	for _, a := range l.Assigned {
		if a.TravelerID == travelerID {
			return a, true
		}
	}
	return SeatAssignment{}, false
}

// CandidateIndex ищет пассажира среди кандидатов с тем же ключом дедупликации.
func (l CartLine) CandidateIndex(t TravelerRef) int {
	for i, c := range l.Candidates {
		if c.SameAs(t) {
			return i
		}
	}
	return -1
}

// ValidateInvariants проверяет инварианты позиции и возвращает список замечаний.
func (l CartLine) ValidateInvariants() []error {
	var errs []error

	if l.Quantity < 1 {
		errs = append(errs, ErrQuantityInvalid)
	}
	if len(l.Assigned) > l.Quantity {
		errs = append(errs, ErrLineFull)
	}
	seen := make(map[int]struct{}, len(l.Assigned))
	for _, a := range l.Assigned {
		if _, dup := seen[a.SeatNumber]; dup {
			errs = append(errs, ErrSeatConflict)
			continue
		}
		seen[a.SeatNumber] = struct{}{}
	}

	return errs
}

// Truncated возвращает копию позиции с количеством n (минимум 1).
// Лишние назначения отбрасываются с конца; из кандидатов с конца убираются только пассажиры без места.
func (l CartLine) Truncated(n int) CartLine {
	if n < 1 {
		n = 1
	}
	out := l.Clone()
	out.Quantity = n
	if len(out.Assigned) > n {
		out.Assigned = out.Assigned[:n]
	}
	out.Candidates = fitCandidates(out.Candidates, out.Assigned, n)
	return out
}

// FitCandidates приводит список кандидатов к ёмкости позиции.
func (l CartLine) FitCandidates() CartLine {
	out := l.Clone()
	out.Candidates = fitCandidates(out.Candidates, out.Assigned, out.Quantity)
	return out
}

func fitCandidates(candidates []TravelerRef, assigned []SeatAssignment, n int) []TravelerRef {
	if len(candidates) <= n {
		return candidates
	}

	seated := make(map[string]struct{}, len(assigned))
	for _, a := range assigned {
		seated[a.TravelerID] = struct{}{}
	}
	free := n
	for _, c := range candidates {
		if _, ok := seated[c.ID]; ok {
			free--
		}
	}

	kept := make([]TravelerRef, 0, n)
	for _, c := range candidates {
		if _, ok := seated[c.ID]; ok {
			kept = append(kept, c)
			continue
		}
		if free > 0 {
			kept = append(kept, c)
			free--
		}
	}
	return kept
}
