// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const genericFailure = "something went wrong on our side, please try again"

type eventService interface {
	CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	UpdateEventStatus(ctx context.Context, id string, status model.EventStatus) (*model.Event, error)
}

type userService interface {
	CreateUser(ctx context.Context, req model.CreateUserRequest) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
}

type registrationService interface {
	Register(ctx context.Context, eventID string, req model.RegisterRequest) (*model.Registration, error)
	CancelForUser(ctx context.Context, registrationID, userID string) (*model.Registration, error)
	Deregister(ctx context.Context, registrationID string, processRefund bool) (*model.DeregisterResult, error)
	ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error)
}

type ticketService interface {
	IssueTickets(ctx context.Context, registrationID, eventID string, ticketCount int) ([]model.Ticket, error)
	GetTicketsForRegistration(ctx context.Context, registrationID string) ([]model.Ticket, error)
	GetTicketByToken(ctx context.Context, qrCode string) (*model.TicketDetails, error)
	TicketPNG(ctx context.Context, qrCode string) ([]byte, error)
}

type checkInService interface {
	CheckIn(ctx context.Context, qrCode, operatorID string) (*model.CheckInResult, error)
	GetCheckInStats(ctx context.Context, registrationID string) (*model.CheckInStats, error)
}

type paymentService interface {
	StartPayment(ctx context.Context, registrationID string) (*model.PaymentIntent, error)
	CompletePayment(ctx context.Context, wh model.PaymentWebhook) ([]model.Ticket, error)
}

// Services are the business operations the HTTP surface exposes.
type Services struct {
	Events        eventService
	Users         userService
	Registrations registrationService
	Tickets       ticketService
	CheckIns      checkInService
	Payments      paymentService
}

// Handler holds all HTTP handlers for the event lifecycle API.
type Handler struct {
	svc      Services
	log      *slog.Logger
	validate *validator.Validate
}

// New constructs a Handler.
func New(svc Services, log *slog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Guards are the middlewares protecting privileged routes.
type Guards struct {
	// Operator wraps operator-only endpoints.
	Operator func(http.Handler) http.Handler
	// Webhook authenticates payment gateway callbacks.
	Webhook func(http.Handler) http.Handler
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r chi.Router, g Guards) {
	operator := g.Operator

	r.Get("/health", HealthCheck)

	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.CreateUser)
		r.Get("/{id}", h.GetUser)
	})

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Post("/{id}/register", h.Register)
		r.With(operator).Patch("/{id}/status", h.UpdateEventStatus)
		r.With(operator).Get("/{id}/registrations", h.ListRegistrations)
	})

	r.Route("/registrations/{id}", func(r chi.Router) {
		r.Post("/cancel", h.Cancel) // owner only; operators use /deregister
		r.With(operator).Post("/deregister", h.Deregister)
		r.Post("/payment", h.StartPayment)
		r.Post("/tickets", h.IssueTickets)
		r.Get("/tickets", h.ListTickets)
		r.Get("/checkin-stats", h.CheckInStats)
	})

	r.With(g.Webhook).Post("/payments/webhook", h.PaymentWebhook)

	r.Route("/tickets/{qrCode}", func(r chi.Router) {
		r.With(operator).Get("/", h.GetTicket)
		r.Get("/qr.png", h.TicketQR)
	})

	r.With(operator).Post("/checkin", h.CheckIn)
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// bind decodes and validates a request body, answering 400 itself on failure.
// An empty body is accepted when optional is true.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return false
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err.Error()
	}
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", f.Field(), f.Tag(), f.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", f.Field(), f.Tag()))
		}
	}
	return "validation error: " + strings.Join(msgs, "; ")
}

type alreadyCheckedInResponse struct {
	Error       string    `json:"error"`
	TicketID    string    `json:"ticket_id"`
	CheckedInAt time.Time `json:"checked_in_at"`
	CheckedInBy string    `json:"checked_in_by"`
}

// writeServiceError maps a service error onto an HTTP status. Expected
// outcomes carry their own message; anything else is logged and reported
// generically.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var dup *model.AlreadyCheckedInError
	switch {
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, alreadyCheckedInResponse{
			Error:       model.ErrAlreadyCheckedIn.Error(),
			TicketID:    dup.TicketID,
			CheckedInAt: dup.CheckedInAt,
			CheckedInBy: dup.CheckedInBy,
		})
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case model.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case model.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.ErrorContext(r.Context(), op+" failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, genericFailure)
	}
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
