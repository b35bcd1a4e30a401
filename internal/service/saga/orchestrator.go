// Package saga оформляет продажу из корзины PDV: последовательность удалённых вызовов
// create → finalize → attach×n без компенсирующих шагов.
package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pdv/internal/metrics"
	"github.com/vladislavdragonenkov/pdv/internal/service/cart"
)

// aggregateType — тип агрегата в outbox.
const aggregateType = "sale_draft"

// Orchestrator выполняет оформление продажи: Validating → CreatingSale → Finalizing →
// AttachingTravelers[i] → Completed. Любая ошибка возвращает состояние в Idle;
// уже выполненные удалённые шаги не откатываются.
type Orchestrator struct {
	sales    domain.SalesService
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
	metrics  *metrics.SubmissionMetrics
	newID    func() string
	now      func() time.Time
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithMetrics подключает метрики оформления.
func WithMetrics(m *metrics.SubmissionMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов черновиков.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) {
		if newID != nil {
			o.newID = newID
		}
	}
}

// NewOrchestrator создаёт оркестратор. outbox и timeline могут быть nil.
func NewOrchestrator(
	sales domain.SalesService,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "saga")
	}
	o := &Orchestrator{
		sales:    sales,
		outbox:   outbox,
		timeline: timeline,
		logger:   logger,
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit оформляет продажу из корзины сессии. Каждый вызов создаёт новую продажу.
// При ошибке удалённого шага возвращается черновик с SaleID, CommittedSteps и
// AttachedCount, а ошибка оборачивает domain.ErrRemoteFailure. Корзина при этом не меняется.
func (o *Orchestrator) Submit(ctx context.Context, session *cart.Session) (domain.SaleDraft, error) {
	snap, err := session.BeginSubmission()
	if err != nil {
		return domain.SaleDraft{}, err
	}
	defer session.EndSubmission()

	start := time.Now()
	if o.metrics != nil {
		o.metrics.RecordStarted()
		defer func() {
			o.metrics.RecordFinished()
			o.metrics.RecordDuration(time.Since(start))
		}()
	}

	if snap.Draft != nil && snap.Draft.Partial() {
		o.logger.WithFields(log.Fields{
			"session_id": snap.ID,
			"sale_id":    snap.Draft.SaleID,
			"step":       snap.Draft.FailedStep,
		}).Warn("partial sale left behind, starting a new sale")
	}

	draft := o.newDraft(snap)
	o.transition(session, &draft, domain.SubmissionValidating, domain.SagaStepValidate, kafka.EventTypeSubmissionStarted, "")

	stepStart := time.Now()
	if err := o.validate(ctx, snap); err != nil {
		o.observeStep(domain.SagaStepValidate, stepStart)
		if o.metrics != nil {
			o.metrics.RecordFailed(string(domain.SagaStepValidate))
		}
		o.transition(session, &draft, domain.SubmissionIdle, domain.SagaStepValidate, kafka.EventTypeSubmissionFailed, err.Error())
		return domain.SaleDraft{}, err
	}
	o.observeStep(domain.SagaStepValidate, stepStart)
	draft.CommittedSteps = append(draft.CommittedSteps, domain.SagaStepValidate)

	// После начала CreatingSale отмена запроса не прерывает оформление.
	return o.run(context.WithoutCancel(ctx), session, draft)
}

// Resume продолжает частично оформленную продажу с последнего выполненного шага,
// не создавая новую. Корзина должна совпадать с той, из которой создан черновик.
func (o *Orchestrator) Resume(ctx context.Context, session *cart.Session) (domain.SaleDraft, error) {
	snap, err := session.BeginSubmission()
	if err != nil {
		return domain.SaleDraft{}, err
	}
	defer session.EndSubmission()

	if snap.Draft == nil || !snap.Draft.Partial() {
		return domain.SaleDraft{}, domain.ErrNoDraftToResume
	}
	draft := snap.Draft.Clone()
	if !matchesCart(draft, snap) {
		return domain.SaleDraft{}, fmt.Errorf("sale %s: %w", draft.SaleID, domain.ErrDraftCartMismatch)
	}

	start := time.Now()
	if o.metrics != nil {
		o.metrics.RecordResumed()
		defer func() {
			o.metrics.RecordFinished()
			o.metrics.RecordDuration(time.Since(start))
		}()
	}

	draft.FailedStep = ""
	draft.LastError = ""
	o.transition(session, &draft, domain.SubmissionValidating, domain.SagaStepValidate, kafka.EventTypeSubmissionResumed, "")

	return o.run(context.WithoutCancel(ctx), session, draft)
}

// DiscardDraft забывает черновик последней попытки; следующий Submit создаст новую продажу.
func (o *Orchestrator) DiscardDraft(session *cart.Session) error {
	if session.Processing() {
		return domain.ErrSubmissionInProgress
	}
	draft, ok := session.Draft()
	if !ok {
		return domain.ErrNoDraftToResume
	}
	session.ClearDraft()
	o.record(session.ID(), &draft, domain.SubmissionIdle, "", kafka.EventTypeDraftDiscarded, "")
	return nil
}

// History возвращает журнал попыток оформления сессии.
func (o *Orchestrator) History(sessionID string) ([]domain.SubmissionEvent, error) {
	if o.timeline == nil {
		return []domain.SubmissionEvent{}, nil
	}
	return o.timeline.List(sessionID)
}

func (o *Orchestrator) newDraft(snap cart.Snapshot) domain.SaleDraft {
	now := o.now()
	draft := domain.SaleDraft{
		ID:             o.newID(),
		SessionID:      snap.ID,
		CompanyID:      snap.CompanyID,
		Pricing:        snap.Pricing,
		Plan:           snap.Plan,
		CommittedSteps: []domain.SagaStep{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if snap.Customer != nil {
		draft.CustomerID = snap.Customer.ID
	}
	if snap.Seller != nil {
		draft.SellerID = snap.Seller.ID
	}
	if len(snap.Lines) > 0 {
		primary := snap.Lines[0]
		draft.LineID = primary.ID
		draft.ServiceID = primary.ServiceID
		draft.Assignments = append([]domain.SeatAssignment(nil), primary.Assigned...)
	}
	return draft
}

// validate проверяет предусловия; при ошибке удалённых вызовов не будет.
func (o *Orchestrator) validate(ctx context.Context, snap cart.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSubmissionCancelled, err)
	}
	if snap.Customer == nil || snap.Customer.ID == "" {
		return domain.ErrCustomerRequired
	}
	if snap.Seller == nil || snap.Seller.ID == "" {
		return domain.ErrSellerRequired
	}
	if len(snap.Lines) == 0 {
		return domain.ErrCartEmpty
	}
	if len(snap.Lines) > 1 {
		return fmt.Errorf("%d lines: %w", len(snap.Lines), domain.ErrMultipleLines)
	}
	if len(snap.Lines[0].Assigned) == 0 {
		return domain.ErrNoSeatedTravelers
	}
	if errs := snap.Plan.Validate(); len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// run выполняет невыполненные шаги черновика по порядку.
func (o *Orchestrator) run(ctx context.Context, session *cart.Session, draft domain.SaleDraft) (domain.SaleDraft, error) {
	if !draft.Committed(domain.SagaStepCreateSale) {
		o.transition(session, &draft, domain.SubmissionCreatingSale, domain.SagaStepCreateSale, "", "")
		err := o.step(domain.SagaStepCreateSale, func() error {
			sale, err := o.sales.CreateSale(ctx, domain.CreateSaleRequest{
				CompanyID:  draft.CompanyID,
				CustomerID: draft.CustomerID,
				SellerID:   draft.SellerID,
				TripID:     draft.ServiceID,
				Status:     domain.SaleStatusReserved,
				Subtotal:   draft.Pricing.Subtotal,
				Discount:   draft.Pricing.DiscountValue,
				Addition:   draft.Pricing.AdditionValue,
			})
			if err != nil {
				return err
			}
			draft.SaleID = sale.ID
			draft.SaleStatus = sale.Status
			return nil
		})
		if err != nil {
			return o.fail(session, draft, domain.SagaStepCreateSale, err)
		}
		o.commit(session, &draft, domain.SagaStepCreateSale, kafka.EventTypeSaleCreated)
	}

	if !draft.Committed(domain.SagaStepFinalize) {
		o.transition(session, &draft, domain.SubmissionFinalizing, domain.SagaStepFinalize, "", "")
		err := o.step(domain.SagaStepFinalize, func() error {
			sale, err := o.sales.UpdateSale(ctx, draft.SaleID, domain.FinalizeSaleRequest{
				Status:        domain.SaleStatusConfirmed,
				PaymentMethod: draft.Plan.Method,
				Installments:  draft.Plan.Installments,
				InterestRate:  draft.Plan.InterestRate,
			})
			if err != nil {
				return err
			}
			draft.SaleStatus = sale.Status
			return nil
		})
		if err != nil {
			return o.fail(session, draft, domain.SagaStepFinalize, err)
		}
		o.commit(session, &draft, domain.SagaStepFinalize, kafka.EventTypeSaleFinalized)
	}

	if !draft.Committed(domain.SagaStepAttachTraveler) {
		o.transition(session, &draft, domain.SubmissionAttachingTravelers, domain.SagaStepAttachTraveler, "", "")
		// Строго по одному, в порядке назначения мест.
		for _, a := range draft.PendingAssignments() {
			err := o.step(domain.SagaStepAttachTraveler, func() error {
				_, err := o.sales.AttachTraveler(ctx, domain.AttachTravelerRequest{
					SaleID:     draft.SaleID,
					TravelerID: a.TravelerID,
					SeatNumber: a.SeatNumber,
				})
				return err
			})
			if err != nil {
				return o.fail(session, draft, domain.SagaStepAttachTraveler, fmt.Errorf("traveler %s seat %d: %w", a.TravelerID, a.SeatNumber, err))
			}
			draft.AttachedCount++
			if o.metrics != nil {
				o.metrics.RecordTravelerAttached()
			}
			o.record(session.ID(), &draft, domain.SubmissionAttachingTravelers, domain.SagaStepAttachTraveler, kafka.EventTypeTravelerAttached, "")
		}
		draft.CommittedSteps = append(draft.CommittedSteps, domain.SagaStepAttachTraveler)
	}

	draft.CommittedSteps = append(draft.CommittedSteps, domain.SagaStepComplete)
	draft.UpdatedAt = o.now()
	session.Reset()
	session.SaveDraft(draft)
	o.transition(session, &draft, domain.SubmissionCompleted, domain.SagaStepComplete, kafka.EventTypeSubmissionCompleted, "")

	if o.metrics != nil {
		o.metrics.RecordCompleted()
	}
	o.logger.WithFields(log.Fields{
		"session_id": draft.SessionID,
		"sale_id":    draft.SaleID,
		"travelers":  draft.AttachedCount,
	}).Info("sale submitted successfully")
	return draft, nil
}

func (o *Orchestrator) step(step domain.SagaStep, fn func() error) error {
	start := time.Now()
	err := fn()
	o.observeStep(step, start)
	return err
}

func (o *Orchestrator) observeStep(step domain.SagaStep, start time.Time) {
	if o.metrics != nil {
		o.metrics.RecordStepDuration(string(step), time.Since(start))
	}
}

func (o *Orchestrator) commit(session *cart.Session, draft *domain.SaleDraft, step domain.SagaStep, eventType kafka.EventType) {
	draft.CommittedSteps = append(draft.CommittedSteps, step)
	draft.UpdatedAt = o.now()
	session.SaveDraft(*draft)
	o.record(session.ID(), draft, stateOf(step), step, eventType, "")
}

// fail фиксирует ошибку шага: черновик сохраняется в сессии, корзина не меняется.
func (o *Orchestrator) fail(session *cart.Session, draft domain.SaleDraft, step domain.SagaStep, cause error) (domain.SaleDraft, error) {
	draft.FailedStep = step
	draft.LastError = cause.Error()
	draft.UpdatedAt = o.now()
	session.SaveDraft(draft)

	if o.metrics != nil {
		o.metrics.RecordFailed(string(step))
	}
	o.logger.WithError(cause).WithFields(log.Fields{
		"session_id": draft.SessionID,
		"draft_id":   draft.ID,
		"sale_id":    draft.SaleID,
		"step":       step,
		"attached":   draft.AttachedCount,
	}).Warn("sale submission failed")
	o.transition(session, &draft, domain.SubmissionIdle, step, kafka.EventTypeSubmissionFailed, cause.Error())

	return draft, fmt.Errorf("%w: %s: %w", domain.ErrRemoteFailure, step, cause)
}

// transition меняет состояние оформления в сессии и, если задан eventType, пишет событие.
func (o *Orchestrator) transition(
	session *cart.Session,
	draft *domain.SaleDraft,
	state domain.SubmissionState,
	step domain.SagaStep,
	eventType kafka.EventType,
	reason string,
) {
	session.SetSubmissionState(state)
	if eventType == "" {
		eventType = kafka.EventType("submission." + string(state))
	}
	o.record(session.ID(), draft, state, step, eventType, reason)
}

// record пишет событие в журнал и outbox; в Kafka оно уходит только через outbox-воркер.
// Ошибки журнала и outbox логируются и не прерывают оформление.
func (o *Orchestrator) record(
	sessionID string,
	draft *domain.SaleDraft,
	state domain.SubmissionState,
	step domain.SagaStep,
	eventType kafka.EventType,
	reason string,
) {
	event := domain.SubmissionEvent{
		SessionID: sessionID,
		DraftID:   draft.ID,
		SaleID:    draft.SaleID,
		Type:      string(eventType),
		State:     state,
		Step:      step,
		Reason:    reason,
		Occurred:  o.now(),
	}
	logger := o.logger.WithFields(log.Fields{
		"session_id": sessionID,
		"draft_id":   draft.ID,
		"event":      eventType,
	})

	if o.timeline != nil {
		if err := o.timeline.Append(event); err != nil {
			logger.WithError(err).Warn("failed to append submission event")
		} else if o.metrics != nil {
			o.metrics.RecordTimelineEvent()
		}
	}

	metadata := map[string]interface{}{
		"state":          string(state),
		"attached_count": draft.AttachedCount,
	}
	if step != "" {
		metadata["step"] = string(step)
	}
	if reason != "" {
		metadata["reason"] = reason
	}
	payload := kafka.NewSubmissionEvent(eventType, sessionID, draft.ID, draft.SaleID, metadata)

	if o.outbox != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.WithError(err).Warn("failed to marshal outbox payload")
		} else if _, err := o.outbox.Enqueue(domain.OutboxMessage{
			AggregateType: aggregateType,
			AggregateID:   draft.ID,
			EventType:     string(eventType),
			Payload:       data,
		}); err != nil {
			logger.WithError(err).Warn("failed to enqueue outbox message")
		} else if o.metrics != nil {
			o.metrics.RecordOutboxEvent()
		}
	}
}

func stateOf(step domain.SagaStep) domain.SubmissionState {
	switch step {
	case domain.SagaStepCreateSale:
		return domain.SubmissionCreatingSale
	case domain.SagaStepFinalize:
		return domain.SubmissionFinalizing
	case domain.SagaStepAttachTraveler:
		return domain.SubmissionAttachingTravelers
	case domain.SagaStepComplete:
		return domain.SubmissionCompleted
	}
	return domain.SubmissionValidating
}

// matchesCart проверяет, что основная позиция корзины не изменилась с момента создания продажи.
func matchesCart(draft domain.SaleDraft, snap cart.Snapshot) bool {
	if len(snap.Lines) != 1 {
		return false
	}
	line := snap.Lines[0]
	if line.ID != draft.LineID || line.ServiceID != draft.ServiceID {
		return false
	}
	if len(line.Assigned) != len(draft.Assignments) {
		return false
	}
	for i, a := range line.Assigned {
		if a.TravelerID != draft.Assignments[i].TravelerID || a.SeatNumber != draft.Assignments[i].SeatNumber {
			return false
		}
	}
	return true
}
