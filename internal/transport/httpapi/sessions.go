package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := h.decodeJSONBody(r, &req); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	session := h.store.Open(req.CompanyID)
	writeSuccessStatus(w, http.StatusCreated, session.Snapshot())
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeSuccess(w, session.Snapshot())
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Close(chi.URLParam(r, "sessionID")); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addLineResponse struct {
	Line domain.CartLine `json:"line"`
	Trip *domain.Trip    `json:"trip,omitempty"`
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req addLineRequest
	if err := h.decodeJSONBody(r, &req); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}

	if req.ServiceCode != "" {
		line, trip, err := session.AddServiceByCode(r.Context(), req.ServiceCode, req.ConfirmDuplicate)
		if err != nil {
			writeError(h.logger, w, err, nil)
			return
		}
		writeSuccessStatus(w, http.StatusCreated, addLineResponse{Line: line, Trip: &trip})
		return
	}

	line, err := session.AddLine(r.Context(), req.ServiceID, req.ConfirmDuplicate)
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccessStatus(w, http.StatusCreated, addLineResponse{Line: line})
}

func (h *Handler) setQuantity(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if err := h.decodeJSONBody(r, &req); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	line, err := session.SetQuantity(chi.URLParam(r, "lineID"), req.Quantity)
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccess(w, line)
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.RemoveLine(chi.URLParam(r, "lineID")); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccess(w, session.Snapshot())
}

func (h *Handler) setActiveLine(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req activeLineRequest
	if err := h.decodeJSONBody(r, &req); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	if err := session.SetActiveLine(req.LineID); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccess(w, session.Snapshot())
}

func (h *Handler) assignSeat(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req seatRequest
	if err := h.decodeJSONBody(r, &req); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	line, err := session.AssignSeat(r.Context(), chi.URLParam(r, "lineID"), req.TravelerID, req.Seat)
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccess(w, line)
}

func (h *Handler) releaseSeat(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	line, err := session.ReleaseSeat(chi.URLParam(r, "lineID"), chi.URLParam(r, "travelerID"))
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccess(w, line)
}

func (h *Handler) getPricing(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeSuccess(w, session.Totals())
}

func (h *Handler) setAdjustments(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req adjustmentsRequest
	if err := h.decodeJSONBody(r, &req); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	discount, err := req.Discount.adjustment()
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	addition, err := req.Addition.adjustment()
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	if err := session.SetAdjustments(discount, addition); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccess(w, session.Totals())
}

func (h *Handler) setPayment(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := h.decodeJSONBody(r, &req); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	method, err := domain.ParsePaymentMethod(req.Method)
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	plan := domain.PaymentPlan{Method: method, Installments: req.Installments, InterestRate: req.InterestRate}
	if err := session.SetPaymentPlan(plan); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccess(w, session.Totals())
}

func (h *Handler) selectCustomer(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req customerRequest
	if err := h.decodeJSONBody(r, &req); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	customer, err := session.SelectCustomerByCode(r.Context(), req.Code)
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccess(w, customer)
}

func (h *Handler) listSellers(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	sellers, err := session.ListSellers(r.Context())
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccess(w, sellers)
}

func (h *Handler) selectSeller(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req sellerRequest
	if err := h.decodeJSONBody(r, &req); err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	seller, err := session.SelectSeller(r.Context(), req.SellerID)
	if err != nil {
		writeError(h.logger, w, err, nil)
		return
	}
	writeSuccess(w, seller)
}

// pageParam читает номер страницы; по умолчанию 1.
func pageParam(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("page"))
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, errInvalidPage
	}
	return page, nil
}
