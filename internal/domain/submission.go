package domain

import "time"

// SubmissionState — состояние попытки отправки продажи.
type SubmissionState string

const (
	SubmissionIdle               SubmissionState = "idle"
	SubmissionValidating         SubmissionState = "validating"
	SubmissionCreatingSale       SubmissionState = "creating_sale"
	SubmissionFinalizing         SubmissionState = "finalizing"
	SubmissionAttachingTravelers SubmissionState = "attaching_travelers"
	SubmissionCompleted          SubmissionState = "completed"
)

// SagaStep задаёт константы шагов для метрик/логов/журнала.
type SagaStep string

const (
	SagaStepValidate       SagaStep = "validate"
	SagaStepCreateSale     SagaStep = "create_sale"
	SagaStepFinalize       SagaStep = "finalize"
	SagaStepAttachTraveler SagaStep = "attach_traveler"
	SagaStepComplete       SagaStep = "complete"
)

// SaleDraft — агрегат, отправляемый при оформлении, и результат попытки.
// CommittedSteps и AttachedCount позволяют продолжить с последнего успешного шага.
type SaleDraft struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"session_id"`
	CompanyID   string           `json:"company_id"`
	CustomerID  string           `json:"customer_id"`
	SellerID    string           `json:"seller_id"`
	LineID      string           `json:"line_id"`
	ServiceID   string           `json:"service_id"`
	Assignments []SeatAssignment `json:"assignments"`
	Pricing     PricingState     `json:"pricing"`
	Plan        PaymentPlan      `json:"payment_plan"`

	SaleID         string     `json:"sale_id,omitempty"`
	SaleStatus     SaleStatus `json:"sale_status,omitempty"`
	CommittedSteps []SagaStep `json:"committed_steps"`
	AttachedCount  int        `json:"attached_count"`
	FailedStep     SagaStep   `json:"failed_step,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Committed сообщает, был ли шаг выполнен.
func (d SaleDraft) Committed(step SagaStep) bool {
	for _, s := range d.CommittedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// Completed сообщает, что все шаги выполнены.
func (d SaleDraft) Completed() bool {
	return d.Committed(SagaStepComplete)
}

// Partial — продажа создана удалённо, но не доведена до конца.
func (d SaleDraft) Partial() bool {
	return d.SaleID != "" && !d.Completed()
}

// PendingAssignments возвращает назначения, которые ещё не прикреплены к продаже.
func (d SaleDraft) PendingAssignments() []SeatAssignment {
	if d.AttachedCount >= len(d.Assignments) {
		return nil
	}
	return d.Assignments[d.AttachedCount:]
}

// Clone возвращает копию черновика без общих слайсов.
func (d SaleDraft) Clone() SaleDraft {
	out := d
	out.Assignments = append([]SeatAssignment(nil), d.Assignments...)
	out.CommittedSteps = append([]SagaStep(nil), d.CommittedSteps...)
	return out
}

// SubmissionEvent описывает событие в журнале попыток оформления.
type SubmissionEvent struct {
	SessionID string          `json:"session_id"`
	DraftID   string          `json:"draft_id"`
	SaleID    string          `json:"sale_id,omitempty"`
	Type      string          `json:"type"`
	State     SubmissionState `json:"state"`
	Step      SagaStep        `json:"step,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Occurred  time.Time       `json:"occurred"`
}
