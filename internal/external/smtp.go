package external

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"mailroom/internal/config"
	"mailroom/internal/types"
)

// Message is one outbound email. Text is an optional plain-text alternative
// to the HTML body.
type Message struct {
	From     string
	FromName string
	To       string
	Subject  string
	HTML     string
	Text     string
}

// Mailer relays a single message and returns a provider reference id for
// audit trails.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SMTPMailer delivers mail over an authenticated SMTP connection.
type SMTPMailer struct {
	dialer *gomail.Dialer
	host   string
	port   int
	logger types.Logger

	// sendFn performs the actual relay. Overridable in tests to avoid
	// network IO.
	sendFn func(*gomail.Message) error
}

// SMTPMailerOption configures an SMTPMailer.
type SMTPMailerOption func(*SMTPMailer)

// WithSendFunc overrides the underlying relay call.
func WithSendFunc(fn func(*gomail.Message) error) SMTPMailerOption {
	return func(m *SMTPMailer) {
		m.sendFn = fn
	}
}

// NewSMTPMailer creates a mailer from SMTP configuration.
func NewSMTPMailer(cfg config.SMTPConfig, logger types.Logger, opts ...SMTPMailerOption) *SMTPMailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password.Unmask())

	m := &SMTPMailer{
		dialer: dialer,
		host:   cfg.Host,
		port:   cfg.Port,
		logger: logger,
		sendFn: func(msg *gomail.Message) error {
			return dialer.DialAndSend(msg)
		},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Send relays the message and returns a generated reference id. The relay
// runs in a goroutine so the context deadline is honored even though the
// underlying dialer takes no context.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", types.NewAppError(types.ErrCodeValidationMissingField, "recipient address is required", nil)
	}

	gm := gomail.NewMessage()
	if msg.FromName != "" {
		gm.SetHeader("From", gm.FormatAddress(msg.From, msg.FromName))
	} else {
		gm.SetHeader("From", msg.From)
	}
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	// multipart/alternative parts go least preferred first, so the plain
	// text body is set before the HTML alternative.
	if msg.Text != "" {
		gm.SetBody("text/plain", msg.Text)
		gm.AddAlternative("text/html", msg.HTML)
	} else {
		gm.SetBody("text/html", msg.HTML)
	}

	reference := uuid.NewString()
	gm.SetHeader("Message-ID", fmt.Sprintf("<%s@mailroom>", reference))

	done := make(chan error, 1)
	go func() {
		done <- m.sendFn(gm)
	}()

	select {
	case <-ctx.Done():
		return "", types.NewAppError(types.ErrCodeUpstreamMail, "mail relay timed out", ctx.Err())
	case err := <-done:
		if err != nil {
			m.logger.Error("smtp relay failed", "to", msg.To, "error", err)
			return "", types.NewAppError(types.ErrCodeUpstreamMail, "mail relay failed", err)
		}
	}

	return reference, nil
}

// Ping checks SMTP reachability by opening and closing a TCP connection.
// Used by the health endpoint; a full handshake is not attempted.
func (m *SMTPMailer) Ping(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(m.host, strconv.Itoa(m.port)))
	if err != nil {
		return fmt.Errorf("smtp unreachable: %w", err)
	}
	conn.SetDeadline(time.Now().Add(time.Second))
	return conn.Close()
}
