package notification

// NotificationData is the payload handed to a delivery backend.
type NotificationData struct {
	To      string            // recipient identifier, e.g. an email address
	Subject string            // subject for notifications like email
	Body    string            // the content to send
	Data    map[string]string // additional template values
}

// NotificationType names a kind of notification, e.g. "password_reset".
type NotificationType string

const (
	PasswordResetNotification NotificationType = "password_reset"
)

// Notifier delivers a notification through one backend system.
type Notifier interface {
	Send(notificationType NotificationType, notification NotificationData) error
}
