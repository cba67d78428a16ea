package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/go-chi/chi/v5"
)

// Register handles POST /events/{id}/register
// Performs a concurrency-safe registration for the specified event.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !h.bind(w, r, &req, false) {
		return
	}

	reg, err := h.svc.Registrations.Register(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, "register", err)
		return
	}

	writeJSON(w, http.StatusCreated, reg)
}

// ListRegistrations handles GET /events/{id}/registrations
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.svc.Registrations.ListRegistrations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "list registrations", err)
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// Cancel handles POST /registrations/{id}/cancel
// The body names the owner; any other user gets 404. Cancelling twice is not
// an error.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req model.CancelRequest
	if !h.bind(w, r, &req, false) {
		return
	}

	reg, err := h.svc.Registrations.CancelForUser(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		h.writeServiceError(w, r, "cancel registration", err)
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// Deregister handles POST /registrations/{id}/deregister
// A failed refund still answers 200; the body carries refund_error.
func (h *Handler) Deregister(w http.ResponseWriter, r *http.Request) {
	var req model.DeregisterRequest
	if !h.bind(w, r, &req, true) {
		return
	}

	res, err := h.svc.Registrations.Deregister(r.Context(), chi.URLParam(r, "id"), req.ProcessRefund)
	if err != nil {
		h.writeServiceError(w, r, "deregister", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// StartPayment handles POST /registrations/{id}/payment
func (h *Handler) StartPayment(w http.ResponseWriter, r *http.Request) {
	intent, err := h.svc.Payments.StartPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "start payment", err)
		return
	}

	writeJSON(w, http.StatusCreated, intent)
}

// PaymentWebhook handles POST /payments/webhook
// Redelivery returns the tickets issued by the first delivery.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req model.PaymentWebhook
	if !h.bind(w, r, &req, false) {
		return
	}

	tickets, err := h.svc.Payments.CompletePayment(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "complete payment", err)
		return
	}

	writeJSON(w, http.StatusOK, tickets)
}
