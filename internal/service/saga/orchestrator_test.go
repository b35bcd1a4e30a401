package saga

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pdv/internal/metrics"
	"github.com/vladislavdragonenkov/pdv/internal/service/cart"
	"github.com/vladislavdragonenkov/pdv/internal/service/sales"
	"github.com/vladislavdragonenkov/pdv/internal/service/seats"
	"github.com/vladislavdragonenkov/pdv/internal/storage/memory"
)

const company = "c1"

type fixture struct {
	backoffice *memory.Backoffice
	sales      *sales.MockService
	outbox     *memory.OutboxRepository
	timeline   domain.TimelineRepository
	session    *cart.Session
	orch       *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	b := memory.NewBackoffice()
	b.AddTrip(domain.Trip{
		ID:        "trip-100",
		Code:      "T100",
		CompanyID: company,
		Price:     decimal.RequireFromString("100"),
		Vehicle:   domain.Vehicle{TotalSeats: 20},
	})
	b.AddCustomer(domain.Customer{ID: "cus-1", CompanyID: company, Code: "C1"})
	b.AddSeller(domain.Seller{ID: "sel-1", CompanyID: company, Name: "Vendedor", Role: "seller"})
	for _, id := range []string{"A", "B", "C"} {
		b.AddTraveler(domain.Traveler{ID: "trv-" + id, CompanyID: company, Name: id})
	}

	f := &fixture{
		backoffice: b,
		sales:      sales.NewMockService(),
		outbox:     memory.NewOutboxRepository(),
		timeline:   memory.NewTimelineRepository(),
	}
	f.session = cart.NewSession("s1", company, cart.Config{Directories: b, Allocator: seats.NewAllocator()})
	drafts := 0
	f.orch = NewOrchestrator(f.sales, f.outbox, f.timeline, nil,
		WithMetrics(metrics.NewSubmissionMetricsWithRegisterer(prometheus.NewRegistry())),
		WithIDGenerator(func() string {
			drafts++
			return fmt.Sprintf("draft-%d", drafts)
		}),
	)
	return f
}

// populate собирает корзину: одна позиция, пассажиры A, B, C на местах 5, 6, 7.
func (f *fixture) populate(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	line, _, err := f.session.AddServiceByCode(ctx, "T100", false)
	require.NoError(t, err)
	_, err = f.session.SetQuantity(line.ID, 3)
	require.NoError(t, err)
	for i, id := range []string{"A", "B", "C"} {
		_, err = f.session.SelectTraveler(line.ID, domain.Traveler{ID: "trv-" + id, CompanyID: company, Name: id})
		require.NoError(t, err)
		_, err = f.session.AssignSeat(ctx, line.ID, "trv-"+id, i+5)
		require.NoError(t, err)
	}
	_, err = f.session.SelectCustomerByCode(ctx, "C1")
	require.NoError(t, err)
	_, err = f.session.SelectSeller(ctx, "sel-1")
	require.NoError(t, err)
	require.NoError(t, f.session.SetAdjustments(domain.Percent(decimal.NewFromInt(10)), domain.Fixed(decimal.NewFromInt(5))))
	require.NoError(t, f.session.SetPaymentPlan(domain.PaymentPlan{Method: domain.PaymentMethodCreditCard, Installments: 2, InterestRate: decimal.Zero}))
}

func TestSubmit_Success(t *testing.T) {
	f := newFixture(t)
	f.populate(t)

	draft, err := f.orch.Submit(context.Background(), f.session)
	require.NoError(t, err)

	assert.NotEmpty(t, draft.SaleID)
	assert.True(t, draft.Completed())
	assert.Equal(t, 3, draft.AttachedCount)
	assert.Equal(t, domain.SaleStatusConfirmed, draft.SaleStatus)
	assert.Equal(t, []string{"trv-A", "trv-B", "trv-C"}, f.sales.AttachedTravelerIDs(draft.SaleID))

	require.Len(t, f.sales.Created, 1)
	created := f.sales.Created[0]
	assert.Equal(t, domain.SaleStatusReserved, created.Status)
	assert.Equal(t, "trip-100", created.TripID)
	assert.Equal(t, "300", created.Subtotal.String())
	assert.Equal(t, "30", created.Discount.String())
	assert.Equal(t, "5", created.Addition.String())

	require.Len(t, f.sales.Finalized, 1)
	assert.Equal(t, domain.PaymentMethodCreditCard, f.sales.Finalized[0].PaymentMethod)
	assert.Equal(t, 2, f.sales.Finalized[0].Installments)

	snap := f.session.Snapshot()
	assert.Empty(t, snap.Lines, "cart is reset after success")
	assert.Equal(t, domain.DefaultPaymentPlan().Method, snap.Plan.Method)
	assert.Equal(t, 1, snap.Plan.Installments)
	assert.False(t, snap.Processing)
	assert.Equal(t, domain.SubmissionCompleted, snap.State)
	require.NotNil(t, snap.Draft)
	assert.Equal(t, draft.SaleID, snap.Draft.SaleID)

	history, err := f.orch.History("s1")
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, string(kafka.EventTypeSubmissionStarted), history[0].Type)
	assert.Equal(t, string(kafka.EventTypeSubmissionCompleted), history[len(history)-1].Type)
	pending := f.outbox.AllPending()
	assert.Len(t, pending, len(history))
	types := make(map[string]int)
	for _, msg := range pending {
		assert.Equal(t, draft.ID, msg.AggregateID)
		types[msg.EventType]++
	}
	assert.Equal(t, 1, types[string(kafka.EventTypeSaleCreated)], "sale.created is enqueued once")
	assert.Equal(t, 3, types[string(kafka.EventTypeTravelerAttached)])
}

func TestSubmit_AttachFailureLeavesOrderedPrefix(t *testing.T) {
	f := newFixture(t)
	f.populate(t)
	f.sales.FailAttachOn(1, errors.New("503 service unavailable"))
	before := f.session.Lines()

	draft, err := f.orch.Submit(context.Background(), f.session)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRemoteFailure)
	assert.Equal(t, domain.KindRemoteFailure, domain.KindOf(err))

	assert.Equal(t, []string{"trv-A"}, f.sales.AttachedTravelerIDs(draft.SaleID))
	assert.Equal(t, 2, f.sales.AttachCalls, "remaining attachments are not attempted")
	assert.Equal(t, 1, draft.AttachedCount)
	assert.Equal(t, domain.SagaStepAttachTraveler, draft.FailedStep)
	assert.True(t, draft.Partial())
	assert.NotEmpty(t, draft.LastError)
	status, _ := f.sales.SaleStatus(draft.SaleID)
	assert.Equal(t, domain.SaleStatusConfirmed, status)

	snap := f.session.Snapshot()
	assert.Equal(t, before, snap.Lines, "cart is left untouched")
	assert.Equal(t, domain.SubmissionIdle, snap.State)
	assert.False(t, snap.Processing)
}

func TestSubmit_FinalizeFailureKeepsReservedSaleAndCart(t *testing.T) {
	f := newFixture(t)
	f.populate(t)
	f.sales.FinalizeErr = errors.New("gateway timeout")
	before := f.session.Snapshot()

	draft, err := f.orch.Submit(context.Background(), f.session)
	require.ErrorIs(t, err, domain.ErrRemoteFailure)

	status, ok := f.sales.SaleStatus(draft.SaleID)
	require.True(t, ok)
	assert.Equal(t, domain.SaleStatusReserved, status)
	assert.Empty(t, f.sales.AttachedTravelerIDs(draft.SaleID))
	assert.Equal(t, 0, f.sales.AttachCalls)
	assert.Equal(t, domain.SagaStepFinalize, draft.FailedStep)
	assert.Equal(t, []domain.SagaStep{domain.SagaStepValidate, domain.SagaStepCreateSale}, draft.CommittedSteps)

	after := f.session.Snapshot()
	assert.Equal(t, before.Lines, after.Lines)
	assert.Equal(t, before.Plan, after.Plan)
	assert.Equal(t, before.Discount, after.Discount)
	assert.Equal(t, before.Addition, after.Addition)
	assert.Equal(t, before.Pricing, after.Pricing)
}

func TestSubmit_CreateFailureCommitsNothing(t *testing.T) {
	f := newFixture(t)
	f.populate(t)
	f.sales.CreateErr = errors.New("connection refused")

	draft, err := f.orch.Submit(context.Background(), f.session)
	require.ErrorIs(t, err, domain.ErrRemoteFailure)
	assert.Empty(t, draft.SaleID)
	assert.False(t, draft.Partial())
	assert.Equal(t, 0, f.sales.FinalizeCalls)

	_, err = f.orch.Resume(context.Background(), f.session)
	require.ErrorIs(t, err, domain.ErrNoDraftToResume)
}

func TestSubmit_ValidationMakesNoRemoteCalls(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, f *fixture)
		want    error
	}{
		{
			name:    "no customer",
			prepare: func(t *testing.T, f *fixture) {},
			want:    domain.ErrCustomerRequired,
		},
		{
			name: "no seller",
			prepare: func(t *testing.T, f *fixture) {
				require.NoError(t, f.session.SelectCustomer(domain.Customer{ID: "cus-1"}))
			},
			want: domain.ErrSellerRequired,
		},
		{
			name: "empty cart",
			prepare: func(t *testing.T, f *fixture) {
				require.NoError(t, f.session.SelectCustomer(domain.Customer{ID: "cus-1"}))
				_, err := f.session.SelectSeller(context.Background(), "sel-1")
				require.NoError(t, err)
			},
			want: domain.ErrCartEmpty,
		},
		{
			name: "no seated travelers",
			prepare: func(t *testing.T, f *fixture) {
				require.NoError(t, f.session.SelectCustomer(domain.Customer{ID: "cus-1"}))
				_, err := f.session.SelectSeller(context.Background(), "sel-1")
				require.NoError(t, err)
				_, err = f.session.AddLine(context.Background(), "trip-100", false)
				require.NoError(t, err)
			},
			want: domain.ErrNoSeatedTravelers,
		},
		{
			name: "multiple lines",
			prepare: func(t *testing.T, f *fixture) {
				f.populate(t)
				_, err := f.session.AddLine(context.Background(), "trip-100", true)
				require.NoError(t, err)
			},
			want: domain.ErrMultipleLines,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.prepare(t, f)

			_, err := f.orch.Submit(context.Background(), f.session)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, domain.IsValidation(err))
			assert.Equal(t, 0, f.sales.CreateCalls)

			_, hasDraft := f.session.Draft()
			assert.False(t, hasDraft, "failed validation discards the draft")
			assert.Equal(t, domain.SubmissionIdle, f.session.Snapshot().State)
		})
	}
}

func TestSubmit_CancelBeforeCreatingSale(t *testing.T) {
	f := newFixture(t)
	f.populate(t)
	before := f.session.Lines()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Submit(ctx, f.session)
	require.ErrorIs(t, err, domain.ErrSubmissionCancelled)
	assert.Equal(t, 0, f.sales.CreateCalls)
	assert.Equal(t, before, f.session.Lines())
}

type cancelOnCreate struct {
	*sales.MockService
	cancel context.CancelFunc
}

func (c cancelOnCreate) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (domain.Sale, error) {
	c.cancel()
	return c.MockService.CreateSale(ctx, req)
}

func (c cancelOnCreate) UpdateSale(ctx context.Context, saleID string, req domain.FinalizeSaleRequest) (domain.Sale, error) {
	if err := ctx.Err(); err != nil {
		return domain.Sale{}, err
	}
	return c.MockService.UpdateSale(ctx, saleID, req)
}

func TestSubmit_NoCancellationAfterCreatingSale(t *testing.T) {
	f := newFixture(t)
	f.populate(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch := NewOrchestrator(cancelOnCreate{MockService: f.sales, cancel: cancel}, nil, nil, nil)

	draft, err := orch.Submit(ctx, f.session)
	require.NoError(t, err)
	assert.True(t, draft.Completed())
}

func TestResume_ContinuesWithoutNewSale(t *testing.T) {
	f := newFixture(t)
	f.populate(t)
	f.sales.FailAttachOn(1, errors.New("timeout"))

	failed, err := f.orch.Submit(context.Background(), f.session)
	require.Error(t, err)

	delete(f.sales.AttachErrAt, 1)
	resumed, err := f.orch.Resume(context.Background(), f.session)
	require.NoError(t, err)

	assert.Equal(t, failed.SaleID, resumed.SaleID)
	assert.Equal(t, failed.ID, resumed.ID)
	assert.Equal(t, 1, f.sales.CreateCalls)
	assert.Equal(t, 1, f.sales.FinalizeCalls)
	assert.Equal(t, []string{"trv-A", "trv-B", "trv-C"}, f.sales.AttachedTravelerIDs(resumed.SaleID))
	assert.True(t, resumed.Completed())
	assert.Empty(t, resumed.LastError)
	assert.Empty(t, f.session.Lines())
}

func TestResume_AfterFinalizeFailure(t *testing.T) {
	f := newFixture(t)
	f.populate(t)
	f.sales.FinalizeErr = errors.New("timeout")

	_, err := f.orch.Submit(context.Background(), f.session)
	require.Error(t, err)

	f.sales.FinalizeErr = nil
	resumed, err := f.orch.Resume(context.Background(), f.session)
	require.NoError(t, err)
	assert.Equal(t, 1, f.sales.CreateCalls)
	assert.Equal(t, 2, f.sales.FinalizeCalls)
	assert.Equal(t, 3, resumed.AttachedCount)
}

func TestResume_RejectsChangedCart(t *testing.T) {
	f := newFixture(t)
	f.populate(t)
	f.sales.FailAttachOn(0, errors.New("timeout"))

	_, err := f.orch.Submit(context.Background(), f.session)
	require.Error(t, err)

	line := f.session.Lines()[0]
	_, err = f.session.ReleaseSeat(line.ID, "trv-C")
	require.NoError(t, err)

	_, err = f.orch.Resume(context.Background(), f.session)
	require.ErrorIs(t, err, domain.ErrDraftCartMismatch)
}

func TestSubmit_RetryCreatesNewSale(t *testing.T) {
	f := newFixture(t)
	f.populate(t)
	f.sales.FinalizeErr = errors.New("timeout")

	first, err := f.orch.Submit(context.Background(), f.session)
	require.Error(t, err)

	f.sales.FinalizeErr = nil
	second, err := f.orch.Submit(context.Background(), f.session)
	require.NoError(t, err)

	assert.NotEqual(t, first.SaleID, second.SaleID)
	assert.Equal(t, 2, f.sales.CreateCalls)
	status, _ := f.sales.SaleStatus(first.SaleID)
	assert.Equal(t, domain.SaleStatusReserved, status, "abandoned partial sale is not compensated")
}

func TestDiscardDraft(t *testing.T) {
	f := newFixture(t)
	f.populate(t)
	f.sales.FinalizeErr = errors.New("timeout")

	_, err := f.orch.Submit(context.Background(), f.session)
	require.Error(t, err)

	require.NoError(t, f.orch.DiscardDraft(f.session))
	_, ok := f.session.Draft()
	assert.False(t, ok)
	assert.NotEmpty(t, f.session.Lines(), "discarding keeps the cart")

	require.ErrorIs(t, f.orch.DiscardDraft(f.session), domain.ErrNoDraftToResume)

	history, err := f.orch.History("s1")
	require.NoError(t, err)
	assert.Equal(t, string(kafka.EventTypeDraftDiscarded), history[len(history)-1].Type)
}

func TestSubmit_RejectsConcurrentSubmission(t *testing.T) {
	f := newFixture(t)
	f.populate(t)

	_, err := f.session.BeginSubmission()
	require.NoError(t, err)
	defer f.session.EndSubmission()

	_, err = f.orch.Submit(context.Background(), f.session)
	require.ErrorIs(t, err, domain.ErrSubmissionInProgress)
	assert.Equal(t, 0, f.sales.CreateCalls)
	require.ErrorIs(t, f.orch.DiscardDraft(f.session), domain.ErrSubmissionInProgress)
}
