package handler

import (
	"net/http"
	"strconv"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/go-chi/chi/v5"
)

// IssueTickets handles POST /registrations/{id}/tickets
func (h *Handler) IssueTickets(w http.ResponseWriter, r *http.Request) {
	var req model.IssueTicketsRequest
	if !h.bind(w, r, &req, false) {
		return
	}

	tickets, err := h.svc.Tickets.IssueTickets(r.Context(), chi.URLParam(r, "id"), req.EventID, req.TicketCount)
	if err != nil {
		h.writeServiceError(w, r, "issue tickets", err)
		return
	}

	writeJSON(w, http.StatusOK, tickets)
}

// ListTickets handles GET /registrations/{id}/tickets
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.svc.Tickets.GetTicketsForRegistration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "list tickets", err)
		return
	}

	if tickets == nil {
		tickets = []model.Ticket{}
	}

	writeJSON(w, http.StatusOK, tickets)
}

// CheckInStats handles GET /registrations/{id}/checkin-stats
func (h *Handler) CheckInStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.CheckIns.GetCheckInStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "check-in stats", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetTicket handles GET /tickets/{qrCode}
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	details, err := h.svc.Tickets.GetTicketByToken(r.Context(), chi.URLParam(r, "qrCode"))
	if err != nil {
		h.writeServiceError(w, r, "get ticket", err)
		return
	}

	writeJSON(w, http.StatusOK, details)
}

// TicketQR handles GET /tickets/{qrCode}/qr.png
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	img, err := h.svc.Tickets.TicketPNG(r.Context(), chi.URLParam(r, "qrCode"))
	if err != nil {
		h.writeServiceError(w, r, "render ticket", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// CheckIn handles POST /checkin
// The operator is the subject of the bearer token, never the request body.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	operator, ok := OperatorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "operator required")
		return
	}

	var req model.CheckInRequest
	if !h.bind(w, r, &req, false) {
		return
	}

	res, err := h.svc.CheckIns.CheckIn(r.Context(), req.QRCode, operator)
	if err != nil {
		h.writeServiceError(w, r, "check in", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
