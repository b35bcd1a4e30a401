package cart

import (
	"time"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/service/travelers"
)

// Snapshot — согласованная копия состояния сессии для UI и оркестратора.
type Snapshot struct {
	ID           string                 `json:"id"`
	CompanyID    string                 `json:"company_id"`
	Lines        []domain.CartLine      `json:"lines"`
	ActiveLineID string                 `json:"active_line_id,omitempty"`
	Customer     *domain.Customer       `json:"customer,omitempty"`
	Seller       *domain.Seller         `json:"seller,omitempty"`
	Discount     domain.Adjustment      `json:"discount"`
	Addition     domain.Adjustment      `json:"addition"`
	Plan         domain.PaymentPlan     `json:"payment_plan"`
	Pricing      domain.PricingState    `json:"pricing"`
	Processing   bool                   `json:"processing"`
	State        domain.SubmissionState `json:"submission_state"`
	Draft        *domain.SaleDraft      `json:"draft,omitempty"`
	Edits        []travelers.FieldEdit  `json:"traveler_edits"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Snapshot возвращает копию состояния сессии.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:           s.id,
		CompanyID:    s.companyID,
		Lines:        s.linesCopy(),
		ActiveLineID: s.activeLineID,
		Discount:     s.discount,
		Addition:     s.addition,
		Plan:         s.plan,
		Pricing:      s.totalsLocked(),
		Processing:   s.processing,
		State:        s.state,
		Edits:        s.editsLocked(),
		CreatedAt:    s.createdAt,
	}
	if s.customer != nil {
		c := *s.customer
		snap.Customer = &c
	}
	if s.seller != nil {
		sl := *s.seller
		snap.Seller = &sl
	}
	if s.draft != nil {
		d := s.draft.Clone()
		snap.Draft = &d
	}
	return snap
}

// BeginSubmission включает флаг isProcessing и возвращает снимок корзины.
// Пока флаг установлен, любые изменения корзины возвращают ErrSubmissionInProgress.
func (s *Session) BeginSubmission() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processing {
		return Snapshot{}, domain.ErrSubmissionInProgress
	}
	s.processing = true
	return s.snapshotLocked(), nil
}

// EndSubmission снимает флаг isProcessing.
func (s *Session) EndSubmission() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = false
}

// SetSubmissionState фиксирует текущее состояние оформления для UI.
func (s *Session) SetSubmissionState(state domain.SubmissionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Processing сообщает, идёт ли оформление.
func (s *Session) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// Draft возвращает черновик последней попытки оформления.
func (s *Session) Draft() (domain.SaleDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return domain.SaleDraft{}, false
	}
	return s.draft.Clone(), true
}

// SaveDraft сохраняет результат попытки оформления.
func (s *Session) SaveDraft(draft domain.SaleDraft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := draft.Clone()
	s.draft = &d
}

// ClearDraft забывает черновик.
func (s *Session) ClearDraft() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = nil
}
