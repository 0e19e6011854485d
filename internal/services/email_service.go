package services

import (
	"context"
	"fmt"
	"html"

	"gopkg.in/gomail.v2"

	"airdropbot/internal/models"
)

// mailSender is satisfied by *gomail.Dialer.
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type emailClaimNotifier struct {
	dialer  mailSender
	from    string
	to      string
	project string
}

// NewEmailClaimNotifier шлёт оператору письмо о каждой завершённой заявке.
func NewEmailClaimNotifier(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail, operatorEmail, project string) ClaimNotifier {
	return newEmailClaimNotifier(gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword), fromEmail, operatorEmail, project)
}

func newEmailClaimNotifier(dialer mailSender, from, to, project string) *emailClaimNotifier {
	return &emailClaimNotifier{dialer: dialer, from: from, to: to, project: project}
}

func (s *emailClaimNotifier) NotifyClaim(ctx context.Context, sess *models.Session) error {
	m := s.claimMessage(sess)

	// gomail не умеет context, поэтому ждём в горутине.
	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send claim email: %w", err)
		}
		return nil
	}
}

func (s *emailClaimNotifier) claimMessage(sess *models.Session) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to)
	m.SetHeader("Subject", fmt.Sprintf("[%s] New airdrop claim from user %d", s.project, sess.UserID))

	handle := sess.SocialHandle
	if handle == "" {
		handle = "-"
	}
	body := fmt.Sprintf(`
		<h3>New airdrop claim</h3>
		<p>Telegram user: <strong>%d</strong></p>
		<p>X handle: <strong>%s</strong></p>
		<p>Wallet: <code>%s</code></p>
		<p>Completed at: %s</p>
	`, sess.UserID, html.EscapeString(handle), html.EscapeString(sess.WalletAddress), sess.UpdatedAt.UTC().Format("2006-01-02 15:04:05 MST"))

	m.SetBody("text/html", body)
	return m
}
