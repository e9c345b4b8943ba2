package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/civicconnect/civic-backend/pkg/config"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"
)

// ErrDisabled is returned by senders that have no relay configured. Callers
// treat it as "channel skipped" rather than a delivery failure.
var ErrDisabled = errors.New("email delivery disabled")

// Message is a single transactional email.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender relays mail through an SMTP server, throttled to the configured
// rate so bursts of notifications do not trip provider limits.
type SMTPSender struct {
	dialer  dialer
	from    string
	limiter *rate.Limiter
}

// NewSender returns an SMTP sender, or a Noop sender when no host is set.
func NewSender(cfg config.SMTPConfig) Sender {
	if !cfg.Enabled() {
		return Noop{}
	}
	return NewSMTPSender(cfg)
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &SMTPSender{
		dialer:  d,
		from:    cfg.From,
		limiter: newLimiter(cfg.RatePerSecond, cfg.Burst),
	}
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Send blocks until the limiter admits the message or ctx ends, then dials the
// relay. A cancelled context abandons the wait for the relay.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("recipient address is required")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("email throttle: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if msg.TextBody != "" {
		m.SetBody("text/plain", msg.TextBody)
	}
	if msg.HTMLBody != "" {
		if msg.TextBody != "" {
			m.AddAlternative("text/html", msg.HTMLBody)
		} else {
			m.SetBody("text/html", msg.HTMLBody)
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Noop drops every message.
type Noop struct{}

func (Noop) Send(context.Context, Message) error { return ErrDisabled }
