package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

var errInvalidPage = fmt.Errorf("%w: page must be a positive integer", errInvalidBody)

type createTravelerResponse struct {
	Traveler domain.Traveler `json:"traveler"`
	Line     domain.CartLine `json:"line"`
}

func (h *Handler) selectTraveler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req selectTravelerRequest
	if err := h.decodeJSONBody(r, &req); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}

	lineID := chi.URLParam(r, "lineID")
	var (
		line domain.CartLine
		err  error
	)
	if req.Code != "" {
		line, err = session.SelectTravelerByCode(r.Context(), lineID, req.Code)
	} else {
		line, err = session.SelectTravelerByCPF(r.Context(), lineID, req.CPF)
	}
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccess(w, line)
}

func (h *Handler) createTraveler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req createTravelerRequest
	if err := h.decodeJSONBody(r, &req); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	traveler, line, err := session.CreateTraveler(r.Context(), chi.URLParam(r, "lineID"), req.fields())
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccessStatus(w, http.StatusCreated, createTravelerResponse{Traveler: traveler, Line: line})
}

func (h *Handler) searchTravelers(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	page, err := pageParam(r)
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	q := r.URL.Query()
	result, err := session.SearchTravelers(r.Context(), domain.TravelerSearchField(q.Get("field")), q.Get("value"), page)
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccess(w, result)
}

// editTraveler возвращает 200 и при откате правки: состояние видно в поле state.
func (h *Handler) editTraveler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req editTravelerRequest
	if err := h.decodeJSONBody(r, &req); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	field, err := domain.ParseTravelerField(req.Field)
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	edit, err := session.UpdateTravelerField(r.Context(), chi.URLParam(r, "travelerID"), field, req.Value)
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccess(w, edit)
}

func (h *Handler) listEdits(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeSuccess(w, session.Edits())
}
