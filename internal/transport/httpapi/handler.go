// Package httpapi — JSON API движка PDV для UI: сессии корзины, пассажиры, места,
// цены, оплата и оформление продажи.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/metrics"
	"github.com/vladislavdragonenkov/pdv/internal/service/cart"
	"github.com/vladislavdragonenkov/pdv/internal/service/saga"
	"github.com/vladislavdragonenkov/pdv/internal/service/travelers"
)

// Handler обслуживает /v1/sessions.
type Handler struct {
	store        *cart.Store
	orchestrator *saga.Orchestrator
	validate     *validator.Validate
	logger       *log.Entry

	idempotency        domain.IdempotencyRepository
	idempotencyTTL     time.Duration
	idempotencyMetrics *metrics.IdempotencyMetrics
	now                func() time.Time
}

// Option настраивает Handler.
type Option func(*Handler)

// WithIdempotency включает обработку заголовка Idempotency-Key для submit и resume.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration, m *metrics.IdempotencyMetrics) Option {
	return func(h *Handler) {
		h.idempotency = repo
		if ttl > 0 {
			h.idempotencyTTL = ttl
		}
		h.idempotencyMetrics = m
	}
}

// WithClock подменяет часы; используется в тестах.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler создаёт обработчик API.
func NewHandler(store *cart.Store, orchestrator *saga.Orchestrator, logger *log.Entry, opts ...Option) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "http-api")
	}
	h := &Handler{
		store:          store,
		orchestrator:   orchestrator,
		validate:       travelers.NewValidator(),
		logger:         logger,
		idempotencyTTL: defaultIdempotencyTTL,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes возвращает chi router API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, h.recoverer, h.logRequests, limitBody)

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", h.openSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.closeSession)

			r.Post("/lines", h.addLine)
			r.Put("/lines/{lineID}/quantity", h.setQuantity)
			r.Delete("/lines/{lineID}", h.removeLine)
			r.Put("/active-line", h.setActiveLine)

			r.Post("/lines/{lineID}/travelers", h.selectTraveler)
			r.Post("/lines/{lineID}/travelers/new", h.createTraveler)
			r.Get("/travelers", h.searchTravelers)
			r.Patch("/travelers/{travelerID}", h.editTraveler)
			r.Get("/traveler-edits", h.listEdits)

			r.Put("/lines/{lineID}/seats", h.assignSeat)
			r.Delete("/lines/{lineID}/seats/{travelerID}", h.releaseSeat)

			r.Get("/pricing", h.getPricing)
			r.Put("/adjustments", h.setAdjustments)
			r.Put("/payment", h.setPayment)

			r.Put("/customer", h.selectCustomer)
			r.Get("/sellers", h.listSellers)
			r.Put("/seller", h.selectSeller)

			r.Post("/submit", h.idempotent(h.submit))
			r.Post("/resume", h.idempotent(h.resume))
			r.Delete("/draft", h.discardDraft)
			r.Get("/submissions", h.history)
		})
	})

	return r
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*cart.Session, bool) {
	session, err := h.store.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(h.logger, w, err, nil)
		return nil, false
	}
	return session, true
}
