package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testSecret        = []byte("test-secret-0123456789")
	testWebhookSecret = []byte("whsec-test-0123456789")
)

func intPtr(v int) *int { return &v }

type mockEvents struct{ mock.Mock }

func (m *mockEvents) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	args := m.Called(ctx, req)
	e, _ := args.Get(0).(*model.Event)
	return e, args.Error(1)
}

func (m *mockEvents) ListEvents(ctx context.Context) ([]model.Event, error) {
	args := m.Called(ctx)
	es, _ := args.Get(0).([]model.Event)
	return es, args.Error(1)
}

func (m *mockEvents) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*model.Event)
	return e, args.Error(1)
}

func (m *mockEvents) UpdateEventStatus(ctx context.Context, id string, status model.EventStatus) (*model.Event, error) {
	args := m.Called(ctx, id, status)
	e, _ := args.Get(0).(*model.Event)
	return e, args.Error(1)
}

type mockRegistrations struct{ mock.Mock }

func (m *mockRegistrations) Register(ctx context.Context, eventID string, req model.RegisterRequest) (*model.Registration, error) {
	args := m.Called(ctx, eventID, req)
	r, _ := args.Get(0).(*model.Registration)
	return r, args.Error(1)
}

func (m *mockRegistrations) CancelForUser(ctx context.Context, id, userID string) (*model.Registration, error) {
	args := m.Called(ctx, id, userID)
	r, _ := args.Get(0).(*model.Registration)
	return r, args.Error(1)
}

func (m *mockRegistrations) Deregister(ctx context.Context, id string, processRefund bool) (*model.DeregisterResult, error) {
	args := m.Called(ctx, id, processRefund)
	r, _ := args.Get(0).(*model.DeregisterResult)
	return r, args.Error(1)
}

func (m *mockRegistrations) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	args := m.Called(ctx, eventID)
	rs, _ := args.Get(0).([]model.Registration)
	return rs, args.Error(1)
}

type mockTickets struct{ mock.Mock }

func (m *mockTickets) IssueTickets(ctx context.Context, regID, eventID string, n int) ([]model.Ticket, error) {
	args := m.Called(ctx, regID, eventID, n)
	ts, _ := args.Get(0).([]model.Ticket)
	return ts, args.Error(1)
}

func (m *mockTickets) GetTicketsForRegistration(ctx context.Context, regID string) ([]model.Ticket, error) {
	args := m.Called(ctx, regID)
	ts, _ := args.Get(0).([]model.Ticket)
	return ts, args.Error(1)
}

func (m *mockTickets) GetTicketByToken(ctx context.Context, qr string) (*model.TicketDetails, error) {
	args := m.Called(ctx, qr)
	d, _ := args.Get(0).(*model.TicketDetails)
	return d, args.Error(1)
}

func (m *mockTickets) TicketPNG(ctx context.Context, qr string) ([]byte, error) {
	args := m.Called(ctx, qr)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

type mockCheckIns struct{ mock.Mock }

func (m *mockCheckIns) CheckIn(ctx context.Context, qr, operator string) (*model.CheckInResult, error) {
	args := m.Called(ctx, qr, operator)
	r, _ := args.Get(0).(*model.CheckInResult)
	return r, args.Error(1)
}

func (m *mockCheckIns) GetCheckInStats(ctx context.Context, regID string) (*model.CheckInStats, error) {
	args := m.Called(ctx, regID)
	s, _ := args.Get(0).(*model.CheckInStats)
	return s, args.Error(1)
}

type mockPayments struct{ mock.Mock }

func (m *mockPayments) StartPayment(ctx context.Context, regID string) (*model.PaymentIntent, error) {
	args := m.Called(ctx, regID)
	p, _ := args.Get(0).(*model.PaymentIntent)
	return p, args.Error(1)
}

func (m *mockPayments) CompletePayment(ctx context.Context, wh model.PaymentWebhook) ([]model.Ticket, error) {
	args := m.Called(ctx, wh)
	ts, _ := args.Get(0).([]model.Ticket)
	return ts, args.Error(1)
}

type fixture struct {
	events        *mockEvents
	registrations *mockRegistrations
	tickets       *mockTickets
	checkins      *mockCheckIns
	payments      *mockPayments
	router        http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		events:        new(mockEvents),
		registrations: new(mockRegistrations),
		tickets:       new(mockTickets),
		checkins:      new(mockCheckIns),
		payments:      new(mockPayments),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(Services{
		Events:        f.events,
		Registrations: f.registrations,
		Tickets:       f.tickets,
		CheckIns:      f.checkins,
		Payments:      f.payments,
	}, log)

	r := chi.NewRouter()
	h.Routes(r, Guards{
		Operator: RequireOperator(testSecret),
		Webhook:  RequireSignature(testWebhookSecret, log),
	})
	f.router = r
	return f
}

func (f *fixture) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func operatorToken(t *testing.T, subject string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString(testSecret)
	require.NoError(t, err)
	return "Bearer " + s
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body model.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestHealthCheck(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateEvent(t *testing.T) {
	f := newFixture()
	created := &model.Event{ID: uuid.NewString(), Name: "Cleanup", Status: model.EventDraft}
	f.events.On("CreateEvent", mock.Anything, mock.MatchedBy(func(r model.CreateEventRequest) bool {
		return r.Name == "Cleanup" && r.IsFree
	})).Return(created, nil)

	rec := f.do(http.MethodPost, "/events", `{"name":"Cleanup","is_free":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var got model.Event
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, created.ID, got.ID)

	rec = f.do(http.MethodPost, "/events", `{"name":"Cleanup","unexpected":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/events", `{"description":"no name"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "Name")

	f.events.AssertNumberOfCalls(t, "CreateEvent", 1)
}

func TestListEvents_EmptyIsArray(t *testing.T) {
	f := newFixture()
	f.events.On("ListEvents", mock.Anything).Return(nil, nil)

	rec := f.do(http.MethodGet, "/events", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRegister_ErrorMapping(t *testing.T) {
	eventID := uuid.NewString()
	userID := uuid.NewString()
	body := `{"user_id":"` + userID + `","ticket_count":2}`
	req := model.RegisterRequest{UserID: userID, TicketCount: intPtr(2)}

	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"full", model.ErrEventFull, http.StatusConflict, model.ErrEventFull.Error()},
		{"closed", model.ErrRegistrationClosed, http.StatusConflict, model.ErrRegistrationClosed.Error()},
		{"duplicate", model.ErrAlreadyRegistered, http.StatusConflict, model.ErrAlreadyRegistered.Error()},
		{"missing event", model.ErrEventNotFound, http.StatusNotFound, model.ErrEventNotFound.Error()},
		{"infrastructure", errors.New("dial tcp: connection refused"), http.StatusInternalServerError, genericFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.registrations.On("Register", mock.Anything, eventID, req).Return(nil, tc.err)

			rec := f.do(http.MethodPost, "/events/"+eventID+"/register", body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.msg, decodeError(t, rec))
		})
	}

	t.Run("success", func(t *testing.T) {
		f := newFixture()
		f.registrations.On("Register", mock.Anything, eventID, req).
			Return(&model.Registration{ID: uuid.NewString(), Status: model.RegistrationRegistered}, nil)
		rec := f.do(http.MethodPost, "/events/"+eventID+"/register", body)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("bad user id", func(t *testing.T) {
		f := newFixture()
		rec := f.do(http.MethodPost, "/events/"+eventID+"/register", `{"user_id":"nope"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		f.registrations.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("explicit zero tickets", func(t *testing.T) {
		f := newFixture()
		rec := f.do(http.MethodPost, "/events/"+eventID+"/register", `{"user_id":"`+userID+`","ticket_count":0}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec), "TicketCount")
		f.registrations.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("omitted ticket count is left to the service", func(t *testing.T) {
		f := newFixture()
		f.registrations.On("Register", mock.Anything, eventID, model.RegisterRequest{UserID: userID}).
			Return(&model.Registration{ID: uuid.NewString(), TicketCount: 1}, nil)
		rec := f.do(http.MethodPost, "/events/"+eventID+"/register", `{"user_id":"`+userID+`"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		f.registrations.AssertExpectations(t)
	})
}

func TestCancel_OwnerOnly(t *testing.T) {
	regID := uuid.NewString()
	owner := uuid.NewString()

	t.Run("owner cancels", func(t *testing.T) {
		f := newFixture()
		f.registrations.On("CancelForUser", mock.Anything, regID, owner).
			Return(&model.Registration{ID: regID, Status: model.RegistrationCancelled}, nil)
		rec := f.do(http.MethodPost, "/registrations/"+regID+"/cancel", `{"user_id":"`+owner+`"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		f.registrations.AssertExpectations(t)
	})

	t.Run("someone else gets not found", func(t *testing.T) {
		f := newFixture()
		stranger := uuid.NewString()
		f.registrations.On("CancelForUser", mock.Anything, regID, stranger).
			Return(nil, model.ErrRegistrationNotFound)
		rec := f.do(http.MethodPost, "/registrations/"+regID+"/cancel", `{"user_id":"`+stranger+`"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("body is required", func(t *testing.T) {
		f := newFixture()
		rec := f.do(http.MethodPost, "/registrations/"+regID+"/cancel", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		f.registrations.AssertNotCalled(t, "CancelForUser", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestPaymentWebhook_RequiresSignature(t *testing.T) {
	regID := uuid.NewString()
	body := `{"external_id":"pi_42","registration_id":"` + regID + `","amount":5000,"currency":"USD"}`
	issued := []model.Ticket{{ID: uuid.NewString(), RegistrationID: regID, TicketNumber: 1}}

	rejected := []struct {
		name      string
		signature string
	}{
		{"unsigned", ""},
		{"wrong secret", bodySignature([]byte("some-other-secret-value"), []byte(body))},
		{"signature of another body", bodySignature(testWebhookSecret, []byte(`{"external_id":"pi_1"}`))},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			var header []string
			if tc.signature != "" {
				header = []string{SignatureHeader, tc.signature}
			}
			rec := f.do(http.MethodPost, "/payments/webhook", body, header...)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			f.payments.AssertNotCalled(t, "CompletePayment", mock.Anything, mock.Anything)
		})
	}

	for _, prefix := range []string{"", "sha256="} {
		t.Run("signed "+prefix, func(t *testing.T) {
			f := newFixture()
			f.payments.On("CompletePayment", mock.Anything, mock.MatchedBy(func(wh model.PaymentWebhook) bool {
				return wh.ExternalID == "pi_42" && wh.RegistrationID == regID
			})).Return(issued, nil)

			sig := prefix + bodySignature(testWebhookSecret, []byte(body))
			rec := f.do(http.MethodPost, "/payments/webhook", body, SignatureHeader, sig)
			require.Equal(t, http.StatusOK, rec.Code)

			var got []model.Ticket
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Len(t, got, 1)
			f.payments.AssertExpectations(t)
		})
	}
}

func TestDeregister(t *testing.T) {
	regID := uuid.NewString()
	auth := operatorToken(t, "admin-1", time.Now().Add(time.Hour))

	t.Run("requires operator", func(t *testing.T) {
		f := newFixture()
		rec := f.do(http.MethodPost, "/registrations/"+regID+"/deregister", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("empty body means no refund", func(t *testing.T) {
		f := newFixture()
		f.registrations.On("Deregister", mock.Anything, regID, false).
			Return(&model.DeregisterResult{Registration: &model.Registration{ID: regID}}, nil)
		rec := f.do(http.MethodPost, "/registrations/"+regID+"/deregister", "", "Authorization", auth)
		assert.Equal(t, http.StatusOK, rec.Code)
		f.registrations.AssertExpectations(t)
	})

	t.Run("refund failure is reported alongside success", func(t *testing.T) {
		f := newFixture()
		f.registrations.On("Deregister", mock.Anything, regID, true).Return(&model.DeregisterResult{
			Registration: &model.Registration{ID: regID, Status: model.RegistrationCancelled},
			RefundError:  "refund could not be processed",
		}, nil)
		rec := f.do(http.MethodPost, "/registrations/"+regID+"/deregister", `{"process_refund":true}`, "Authorization", auth)
		require.Equal(t, http.StatusOK, rec.Code)

		var got model.DeregisterResult
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.False(t, got.RefundProcessed)
		assert.Equal(t, "refund could not be processed", got.RefundError)
		assert.Equal(t, model.RegistrationCancelled, got.Registration.Status)
	})
}

func TestCheckIn(t *testing.T) {
	const qr = "EVT-ABC-DEF-1-0123456789AB"

	t.Run("operator comes from token subject", func(t *testing.T) {
		f := newFixture()
		now := time.Now().UTC()
		by := "door-7"
		f.checkins.On("CheckIn", mock.Anything, qr, "door-7").Return(&model.CheckInResult{
			Ticket:       model.Ticket{QRCode: qr, TicketNumber: 1, CheckedIn: true, CheckedInAt: &now, CheckedInBy: &by},
			AttendeeName: "Maya",
			TicketNumber: 1,
		}, nil)

		rec := f.do(http.MethodPost, "/checkin", `{"qr_code":"`+qr+`"}`,
			"Authorization", operatorToken(t, "door-7", time.Now().Add(time.Hour)))
		require.Equal(t, http.StatusOK, rec.Code)
		var got model.CheckInResult
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "Maya", got.AttendeeName)
	})

	t.Run("already checked in reports who and when", func(t *testing.T) {
		f := newFixture()
		at := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)
		f.checkins.On("CheckIn", mock.Anything, qr, "door-2").Return(nil, &model.AlreadyCheckedInError{
			TicketID: "t-1", CheckedInAt: at, CheckedInBy: "door-1",
		})

		rec := f.do(http.MethodPost, "/checkin", `{"qr_code":"`+qr+`"}`,
			"Authorization", operatorToken(t, "door-2", time.Now().Add(time.Hour)))
		require.Equal(t, http.StatusConflict, rec.Code)
		var got alreadyCheckedInResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "door-1", got.CheckedInBy)
		assert.True(t, at.Equal(got.CheckedInAt))
		assert.Equal(t, model.ErrAlreadyCheckedIn.Error(), got.Error)
	})

	t.Run("unknown ticket", func(t *testing.T) {
		f := newFixture()
		f.checkins.On("CheckIn", mock.Anything, qr, "door-1").Return(nil, model.ErrTicketNotFound)
		rec := f.do(http.MethodPost, "/checkin", `{"qr_code":"`+qr+`"}`,
			"Authorization", operatorToken(t, "door-1", time.Now().Add(time.Hour)))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejected tokens", func(t *testing.T) {
		f := newFixture()
		expired := operatorToken(t, "door-1", time.Now().Add(-time.Minute))
		none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject: "door-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		for _, auth := range []string{"", "Bearer ", expired, "Bearer " + unsigned, "Basic Zm9vOmJhcg=="} {
			rec := f.do(http.MethodPost, "/checkin", `{"qr_code":"`+qr+`"}`, "Authorization", auth)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, auth)
		}
		f.checkins.AssertNotCalled(t, "CheckIn", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestTicketQR(t *testing.T) {
	f := newFixture()
	png := []byte("\x89PNG\r\n\x1a\nfake")
	f.tickets.On("TicketPNG", mock.Anything, "EVT-X").Return(png, nil)
	f.tickets.On("TicketPNG", mock.Anything, "EVT-MISSING").Return(nil, model.ErrTicketNotFound)

	rec := f.do(http.MethodGet, "/tickets/EVT-X/qr.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, png, rec.Body.Bytes())

	rec = f.do(http.MethodGet, "/tickets/EVT-MISSING/qr.png", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTicket_RequiresOperator(t *testing.T) {
	f := newFixture()
	f.tickets.On("GetTicketByToken", mock.Anything, "EVT-X").
		Return(&model.TicketDetails{AttendeeName: "Maya"}, nil)

	rec := f.do(http.MethodGet, "/tickets/EVT-X", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/tickets/EVT-X", "",
		"Authorization", operatorToken(t, "door-1", time.Now().Add(time.Hour)))
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.TicketDetails
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "Maya", got.AttendeeName)
}

func TestIssueTickets(t *testing.T) {
	f := newFixture()
	regID, eventID := uuid.NewString(), uuid.NewString()
	f.tickets.On("IssueTickets", mock.Anything, regID, eventID, 3).Return(nil, model.ErrPaymentIncomplete)

	rec := f.do(http.MethodPost, "/registrations/"+regID+"/tickets",
		`{"event_id":"`+eventID+`","ticket_count":3}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/registrations/"+regID+"/tickets", `{"event_id":"`+eventID+`","ticket_count":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckInStats(t *testing.T) {
	f := newFixture()
	regID := uuid.NewString()
	f.checkins.On("GetCheckInStats", mock.Anything, regID).
		Return(&model.CheckInStats{TotalTickets: 3, CheckedInCount: 1, PendingCount: 2}, nil)

	rec := f.do(http.MethodGet, "/registrations/"+regID+"/checkin-stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_tickets":3,"checked_in_count":1,"pending_count":2}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight reached the handler")
	}))
	req := httptest.NewRequest(http.MethodOptions, "/events", nil)
	req.Header.Set("Origin", "https://app.example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}
