package mail

import (
	"context"
	"time"

	mg "github.com/mailgun/mailgun-go/v4"
)

// Mailer delivers plain-text mail. Implementations must not be relied on for
// delivery confirmation; callers log failures and move on.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Mailgun delivers mail through the Mailgun API.
type Mailgun struct {
	domain string
	apiKey string
	sender string
}

func NewMailgun(domain, apiKey, sender string) *Mailgun {
	return &Mailgun{domain: domain, apiKey: apiKey, sender: sender}
}

func (m *Mailgun) Send(ctx context.Context, to, subject, body string) error {
	client := mg.NewMailgun(m.domain, m.apiKey)
	msg := client.NewMessage(m.sender, subject, body, to)

	c, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, _, err := client.Send(c, msg)
	return err
}

var _ Mailer = (*Mailgun)(nil)
