package httpapi

import (
	"context"
	"net/http"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/service/cart"
)

type submissionResponse struct {
	Draft   domain.SaleDraft `json:"draft"`
	Session cart.Snapshot    `json:"session"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.runSubmission(w, r, h.orchestrator.Submit)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	h.runSubmission(w, r, h.orchestrator.Resume)
}

// runSubmission при ошибке удалённого шага отдаёт черновик в details: UI показывает
// SaleID, шаг и число прикреплённых пассажиров.
func (h *Handler) runSubmission(
	w http.ResponseWriter,
	r *http.Request,
	run func(context.Context, *cart.Session) (domain.SaleDraft, error),
) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	draft, err := run(r.Context(), session)
	if err != nil {
		var details any
		if draft.ID != "" {
			details = map[string]any{
				"step":  draft.FailedStep,
				"draft": draft,
			}
		}
		writeError(h.logger, w, err, details)
		return
	}
	writeSuccessStatus(w, http.StatusCreated, submissionResponse{Draft: draft, Session: session.Snapshot()})
}

func (h *Handler) discardDraft(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.orchestrator.DiscardDraft(session); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccess(w, session.Snapshot())
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	events, err := h.orchestrator.History(session.ID())
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccess(w, events)
}
