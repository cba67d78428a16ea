package model

// NotificationKind names the lifecycle moment a notification reports.
type NotificationKind string

const (
	NotifyRegistered    NotificationKind = "registered"
	NotifyCancelled     NotificationKind = "cancelled"
	NotifyDeregistered  NotificationKind = "deregistered"
	NotifyTicketsIssued NotificationKind = "tickets_issued"
)

// Notification is a best-effort out-of-band message to a user.
type Notification struct {
	Kind           NotificationKind `json:"kind"`
	UserID         string           `json:"user_id"`
	EventID        string           `json:"event_id"`
	RegistrationID string           `json:"registration_id"`
	Message        string           `json:"message"`
}
