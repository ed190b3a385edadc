package notification

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string
}

// EmailNotifier delivers notifications over SMTP. The login flow uses it for
// password reset mails.
type EmailNotifier struct {
	config    SMTPConfig
	client    *mail.Client
	templates map[NotificationType]*template.Template
}

var resetMailTemplate = template.Must(template.New("password_reset").Parse(
	`<p>A password reset was requested for your account on tenant {{.tenant}}.</p>` +
		`<p><a href="{{.link}}">Set a new password</a></p>` +
		`<p>If you did not request this, you can ignore this message.</p>`))

func NewEmailNotifier(config SMTPConfig) (*EmailNotifier, error) {
	opts := []mail.Option{
		mail.WithPort(config.Port),
		mail.WithTimeout(30 * time.Second),
	}
	if config.Username != "" && config.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password),
		)
	}
	if !config.TLS {
		opts = append(opts,
			mail.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}),
			mail.WithTLSPolicy(mail.NoTLS),
		)
	} else {
		opts = append(opts,
			mail.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}),
			mail.WithTLSPolicy(mail.TLSMandatory),
		)
	}

	client, err := mail.NewClient(config.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}

	return &EmailNotifier{
		config: config,
		client: client,
		templates: map[NotificationType]*template.Template{
			PasswordResetNotification: resetMailTemplate,
		},
	}, nil
}

func (e *EmailNotifier) Send(notificationType NotificationType, notification NotificationData) error {
	if notification.To == "" {
		return fmt.Errorf("email notification requires a recipient address")
	}

	body := notification.Body
	if tmpl, ok := e.templates[notificationType]; ok && notification.Data != nil {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, notification.Data); err != nil {
			return fmt.Errorf("render %s template: %w", notificationType, err)
		}
		body = buf.String()
	}

	msg := mail.NewMsg()
	if err := msg.From(e.config.From); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(notification.To); err != nil {
		return fmt.Errorf("set to address: %w", err)
	}
	msg.Subject(notification.Subject)
	msg.SetBodyString(mail.TypeTextHTML, body)

	if err := e.client.DialAndSend(msg); err != nil {
		return fmt.Errorf("send %s mail: %w", notificationType, err)
	}
	slog.Info("notification mail sent", "type", notificationType, "to", notification.To)
	return nil
}
