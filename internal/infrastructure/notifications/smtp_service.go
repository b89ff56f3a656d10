package notifications

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/Tsipchain/driver-platform/domain"
)

// MailDialer sends fully built messages
type MailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPServiceImpl implements domain.NotificationService for email
type SMTPServiceImpl struct {
	dialer  MailDialer
	from    string
	timeout time.Duration
}

// SMTPOptions configures the SMTP transport
type SMTPOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	UseSSL   bool
	Timeout  time.Duration
}

// NewSMTPService creates an SMTP notification service. Port 465 with UseSSL
// speaks implicit TLS; otherwise STARTTLS is negotiated when offered.
func NewSMTPService(opts SMTPOptions) domain.NotificationService {
	d := gomail.NewDialer(opts.Host, opts.Port, opts.User, opts.Password)
	d.SSL = opts.UseSSL
	return NewSMTPServiceWithDialer(d, opts.From, opts.Timeout)
}

// NewSMTPServiceWithDialer creates an SMTP service over an explicit dialer (for testing)
func NewSMTPServiceWithDialer(d MailDialer, from string, timeout time.Duration) domain.NotificationService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMTPServiceImpl{dialer: d, from: from, timeout: timeout}
}

// SendEmail implements domain.NotificationService
func (s *SMTPServiceImpl) SendEmail(ctx context.Context, to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to send email: %w", ctx.Err())
	}
}

// SendSMS implements domain.NotificationService. SMTP carries email only.
func (s *SMTPServiceImpl) SendSMS(ctx context.Context, to, message string) error {
	return domain.ErrChannelDisabled
}
