package utils

import (
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// EmailSender delivers a single email. Delivery is best-effort: failures are
// reported as false, never as an error.
type EmailSender interface {
	Send(to, subject, htmlBody string) bool
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

func NewSMTPMailer(host string, port int, username, password, from string, logger *zap.Logger) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
		logger: logger,
	}
}

func (m *SMTPMailer) Send(to, subject, htmlBody string) bool {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Error("failed to send email", zap.String("to", to), zap.Error(err))
		return false
	}
	return true
}

// VerificationEmailBody builds the verification email for a freshly issued
// token. The link is honoured for 24 hours.
func VerificationEmailBody(baseURL, token string) string {
	link := fmt.Sprintf("%s/api/auth/verify-email?token=%s", baseURL, token)
	return fmt.Sprintf(
		`<p>Welcome to InvestFlow!</p>
<p>Please verify your email address by clicking the link below:</p>
<p><a href="%s">Verify my email</a></p>
<p>This link is valid for 24 hours. If you did not create an account, you can ignore this email.</p>`,
		link,
	)
}
