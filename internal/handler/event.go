package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/go-chi/chi/v5"
)

// CreateEvent handles POST /events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if !h.bind(w, r, &req, false) {
		return
	}

	event, err := h.svc.Events.CreateEvent(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "create event", err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
// Returns a JSON array of all events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.Events.ListEvents(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list events", err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.Events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "get event", err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// UpdateEventStatus handles PATCH /events/{id}/status
func (h *Handler) UpdateEventStatus(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateEventStatusRequest
	if !h.bind(w, r, &req, false) {
		return
	}

	event, err := h.svc.Events.UpdateEventStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeServiceError(w, r, "update event status", err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// CreateUser handles POST /users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if !h.bind(w, r, &req, false) {
		return
	}

	user, err := h.svc.Users.CreateUser(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "create user", err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// GetUser handles GET /users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Users.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "get user", err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
