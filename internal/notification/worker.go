package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"os"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/qrtoken"
	"github.com/hibiken/asynq"
)

const qrImageSize = 256

type userLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

type eventLookup interface {
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

type ticketLister interface {
	ListByRegistration(ctx context.Context, registrationID string) ([]model.Ticket, error)
}

// Worker turns queued notifications into emails.
type Worker struct {
	users   userLookup
	events  eventLookup
	tickets ticketLister
	mailer  Mailer
	log     *slog.Logger
}

// NewWorker constructs a Worker.
func NewWorker(users userLookup, events eventLookup, tickets ticketLister, mailer Mailer, log *slog.Logger) *Worker {
	return &Worker{users: users, events: events, tickets: tickets, mailer: mailer, log: log}
}

var emailTmpl = template.Must(template.New("email").Parse(`<p>Hi {{.Name}},</p>
<p>{{.Message}}</p>
{{if .Event}}<p><strong>{{.Event.Name}}</strong>{{if .Event.StartsAt}} on {{.Event.StartsAt.Format "Mon 2 Jan 2006 15:04 MST"}}{{end}}</p>{{end}}
{{if .Tickets}}<p>Your tickets are attached. Show one code per guest at the door:</p>
<ul>{{range .Tickets}}<li>Ticket {{.TicketNumber}}: <code>{{.QRCode}}</code></li>{{end}}</ul>{{end}}`))

type emailData struct {
	Name    string
	Message string
	Event   *model.Event
	Tickets []model.Ticket
}

var subjects = map[model.NotificationKind]string{
	model.NotifyRegistered:    "You're registered",
	model.NotifyCancelled:     "Your registration was cancelled",
	model.NotifyDeregistered:  "You were removed from an event",
	model.NotifyTicketsIssued: "Your tickets",
}

// HandleNotifyUser is the asynq handler for TypeNotifyUser.
// Payloads that can never succeed are not retried.
func (w *Worker) HandleNotifyUser(ctx context.Context, t *asynq.Task) error {
	var n model.Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
	}

	user, err := w.users.GetByID(ctx, n.UserID)
	if err != nil {
		if model.IsNotFound(err) {
			return fmt.Errorf("notify %s: %v: %w", n.UserID, err, asynq.SkipRetry)
		}
		return err
	}

	data := emailData{Name: user.DisplayName, Message: n.Message}
	if n.EventID != "" {
		event, err := w.events.GetByID(ctx, n.EventID)
		switch {
		case err == nil:
			data.Event = event
		case !model.IsNotFound(err):
			return err
		}
	}

	var attachments []Attachment
	if n.Kind == model.NotifyTicketsIssued {
		tickets, err := w.tickets.ListByRegistration(ctx, n.RegistrationID)
		if err != nil && !model.IsNotFound(err) {
			return err
		}
		data.Tickets = tickets
		for _, tk := range tickets {
			png, err := qrtoken.PNG(tk.QRCode, qrImageSize)
			if err != nil {
				return fmt.Errorf("render ticket %d: %w", tk.TicketNumber, err)
			}
			attachments = append(attachments, Attachment{
				Name: fmt.Sprintf("ticket-%d.png", tk.TicketNumber),
				Data: png,
			})
		}
	}

	var body bytes.Buffer
	if err := emailTmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render email: %v: %w", err, asynq.SkipRetry)
	}

	subject, ok := subjects[n.Kind]
	if !ok {
		subject = "Event update"
	}
	if err := w.mailer.Send(ctx, Email{
		To:          user.Email,
		Subject:     subject,
		HTML:        body.String(),
		Attachments: attachments,
	}); err != nil {
		return err
	}

	w.log.InfoContext(ctx, "notification delivered",
		slog.String("kind", string(n.Kind)),
		slog.String("user_id", n.UserID),
		slog.Int("attachments", len(attachments)),
	)
	return nil
}

// NewServer builds the asynq server and mux that run w.
func NewServer(opt asynq.RedisConnOpt, concurrency int, w *Worker, log *slog.Logger) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueName: 1},
		Logger:      &asynqLogger{log: log.With(slog.String("component", "asynq"))},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.ErrorContext(ctx, "notification task failed",
				slog.String("type", task.Type()),
				slog.String("error", err.Error()),
			)
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeNotifyUser, w.HandleNotifyUser)
	return srv, mux
}

// asynqLogger adapts slog to asynq.Logger.
type asynqLogger struct {
	log *slog.Logger
}

func (l *asynqLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.log.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...any) {
	l.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}
