package utils

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Email is a single outbound message
type Email struct {
	From    string
	To      string
	Subject string
	Body    string
}

// ErrDeliveryNotAttempted means the message never reached the SMTP server
var ErrDeliveryNotAttempted = errors.New("delivery not attempted")

// DeliveryResult is the explicit outcome of one delivery attempt
type DeliveryResult struct {
	MessageID string
	Duration  time.Duration
	Err       error
}

func (r DeliveryResult) Success() bool {
	return r.Err == nil
}

// MailServiceInterface delivers an email and reports the outcome
type MailServiceInterface interface {
	Send(ctx context.Context, email Email) DeliveryResult
}

// SMTPConfig holds SMTP configuration
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

type SMTPMailer struct {
	config SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	dialer := gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	dialer.TLSConfig = &tls.Config{ServerName: config.Host}
	return &SMTPMailer{
		config: config,
		dialer: dialer,
	}
}

// Send delivers the email through the configured SMTP server. gomail has no
// context support, so the dial runs in its own goroutine and the call returns
// when either it finishes or ctx (bounded by the configured timeout) ends.
func (m *SMTPMailer) Send(ctx context.Context, email Email) DeliveryResult {
	start := time.Now()
	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), m.messageDomain())

	if err := ctx.Err(); err != nil {
		return DeliveryResult{MessageID: messageID, Err: fmt.Errorf("%w: %w", ErrDeliveryNotAttempted, err)}
	}
	if m.config.Host == "" {
		return DeliveryResult{MessageID: messageID, Err: fmt.Errorf("smtp host not configured")}
	}

	from := email.From
	if from == "" {
		from = m.config.FromEmail
	}

	msg := gomail.NewMessage()
	if m.config.FromName != "" {
		msg.SetAddressHeader("From", from, m.config.FromName)
	} else {
		msg.SetHeader("From", from)
	}
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetHeader("Message-ID", messageID)
	msg.SetHeader("X-Mailer", "MailSequence/1.0")
	msg.SetBody("text/plain", email.Body)

	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			err = fmt.Errorf("error sending email: %w", err)
		}
		return DeliveryResult{MessageID: messageID, Duration: time.Since(start), Err: err}
	case <-ctx.Done():
		return DeliveryResult{MessageID: messageID, Duration: time.Since(start), Err: fmt.Errorf("error sending email: %w", ctx.Err())}
	}
}

func (m *SMTPMailer) messageDomain() string {
	if i := strings.LastIndex(m.config.FromEmail, "@"); i >= 0 && i < len(m.config.FromEmail)-1 {
		return m.config.FromEmail[i+1:]
	}
	return "localhost"
}

// IsTemporaryError reports whether an SMTP error looks transient
func IsTemporaryError(err error) bool {
	if err == nil {
		return false
	}
	errorStr := strings.ToLower(err.Error())
	temporaryIndicators := []string{
		"timeout", "deadline exceeded", "temporary", "try again",
		"connection reset", "connection refused", "421", "450", "451", "452",
	}
	for _, indicator := range temporaryIndicators {
		if strings.Contains(errorStr, indicator) {
			return true
		}
	}
	return false
}
