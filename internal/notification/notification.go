// Package notification delivers best-effort messages to users.
//
// Lifecycle operations hand a model.Notification to a Notifier and move on.
// With Redis available the Dispatcher puts it on an asynq queue and a Worker
// in the same binary turns it into an email; without Redis the LogNotifier
// only records it.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/hibiken/asynq"
)

// TypeNotifyUser is the asynq task type for user notifications.
const TypeNotifyUser = "notify:user"

const (
	queueName  = "notifications"
	maxRetries = 5
)

// NewNotifyTask wraps n in an asynq task.
func NewNotifyTask(n model.Notification) (*asynq.Task, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return asynq.NewTask(TypeNotifyUser, payload, asynq.MaxRetry(maxRetries), asynq.Queue(queueName)), nil
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher enqueues notifications for the Worker.
type Dispatcher struct {
	client enqueuer
	log    *slog.Logger
}

// NewDispatcher constructs a Dispatcher around an asynq client.
func NewDispatcher(client enqueuer, log *slog.Logger) *Dispatcher {
	return &Dispatcher{client: client, log: log}
}

// Notify enqueues n. The error is for the caller to log; it must never fail
// the operation that produced the notification.
func (d *Dispatcher) Notify(ctx context.Context, n model.Notification) error {
	task, err := NewNotifyTask(n)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue %s notification: %w", n.Kind, err)
	}
	d.log.DebugContext(ctx, "notification enqueued",
		slog.String("task_id", info.ID),
		slog.String("kind", string(n.Kind)),
		slog.String("user_id", n.UserID),
	)
	return nil
}

// LogNotifier records notifications in the log instead of delivering them.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs n.
func (l *LogNotifier) Notify(ctx context.Context, n model.Notification) error {
	l.log.InfoContext(ctx, "notification",
		slog.String("kind", string(n.Kind)),
		slog.String("user_id", n.UserID),
		slog.String("registration_id", n.RegistrationID),
		slog.String("message", n.Message),
	)
	return nil
}
