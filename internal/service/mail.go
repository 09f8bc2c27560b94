package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type MailKind string

const (
	MailVerification  MailKind = "verification"
	MailPasswordReset MailKind = "password_reset"
	MailWelcome       MailKind = "welcome"
)

// Mail is a message waiting to be rendered by a Mailer. Token is the
// plaintext one-time token, empty for welcome mail.
type Mail struct {
	Kind  MailKind
	To    string
	Token string
}

// Link returns the frontend URL the recipient has to open, or "" when the
// mail carries no token
func (m *Mail) Link(frontendURL string) string {
	base := strings.TrimRight(frontendURL, "/")
	q := url.QueryEscape(m.Token)

	switch m.Kind {
	case MailVerification:
		return base + "/verify-email?token=" + q
	case MailPasswordReset:
		return base + "/reset-password?token=" + q
	default:
		return ""
	}
}

type Mailer interface {
	Send(ctx context.Context, m *Mail) error
}

func render(m *Mail, frontendURL string) (subject string, body string, err error) {
	link := html.EscapeString(m.Link(frontendURL))

	switch m.Kind {
	case MailVerification:
		return "Verify Your Email - Helping Hands",
			fmt.Sprintf("<p>Welcome to Helping Hands!</p><p>Click <a href='%s'>here</a> to verify your email address.</p><p>This link will expire in 24 hours.</p>", link),
			nil
	case MailPasswordReset:
		return "Password Reset Request - Helping Hands",
			fmt.Sprintf("<p>We received a request to reset your password.</p><p>Click <a href='%s'>here</a> to choose a new one. This link will expire in 1 hour.</p><p>If you didn't ask for this you can ignore this mail.</p>", link),
			nil
	case MailWelcome:
		return "Welcome to Helping Hands!",
			fmt.Sprintf("<p>Your email is verified and your account is active.</p><p>Sign in at <a href='%[1]s'>%[1]s</a> to get started.</p>", html.EscapeString(frontendURL)),
			nil
	default:
		return "", "", fmt.Errorf("unknown mail kind %q", m.Kind)
	}
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends mail through gomail. Dial failures trip a circuit
// breaker so a dead SMTP server doesn't stall the mail workers.
type SMTPMailer struct {
	dialer      *gomail.Dialer
	from        string
	frontendURL string
	breaker     *gobreaker.CircuitBreaker[struct{}]
}

func NewSMTPMailer(c SMTPConfig, frontendURL string) (*SMTPMailer, error) {
	if c.Host == "" || c.Port <= 0 {
		return nil, errors.New("smtp host and port are required")
	}

	if c.From == "" {
		return nil, errors.New("no sender address provided")
	}

	st := gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zap.L().Warn("Mail circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))

			mailBreakerState.Set(breakerStateValue(to))
		},
	}

	return &SMTPMailer{
		dialer:      gomail.NewDialer(c.Host, c.Port, c.Username, c.Password),
		from:        c.From,
		frontendURL: frontendURL,
		breaker:     gobreaker.NewCircuitBreaker[struct{}](st),
	}, nil
}

func (s *SMTPMailer) Send(ctx context.Context, m *Mail) error {
	if strings.EqualFold(m.To, s.from) {
		return errors.New("refusing to mail the sender address")
	}

	subject, body, err := render(m, s.frontendURL)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	_, err = s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.dialer.DialAndSend(msg)
	})

	return err
}

// LogMailer prints links instead of sending anything. Used in development
// and whenever no SMTP host is configured.
type LogMailer struct {
	FrontendURL string
}

func (l *LogMailer) Send(_ context.Context, m *Mail) error {
	subject, _, err := render(m, l.FrontendURL)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("kind", string(m.Kind)),
		zap.String("to", m.To),
		zap.String("subject", subject),
	}

	if link := m.Link(l.FrontendURL); link != "" {
		fields = append(fields, zap.String("link", link))
	}

	zap.L().Info("Mail not sent, development transport", fields...)
	return nil
}
