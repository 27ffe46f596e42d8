package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// SMTPClient sends through a plain SMTP relay. Used for local development
// against a capture server and as a fallback when no provider API is
// configured. SMTP has no provider message id, so one is generated.
type SMTPClient struct {
	Host     string
	Port     int
	User     string
	Password string
}

func (c *SMTPClient) Send(ctx context.Context, msg Message) (string, error) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), c.Host)

	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-Id", messageID)
	if msg.Category != "" {
		m.SetHeader("X-Email-Category", msg.Category)
	}
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	d := gomail.NewDialer(c.Host, c.Port, c.User, c.Password)

	operation := func() error {
		if err := d.DialAndSend(m); err != nil {
			return fmt.Errorf("smtp send error: %w", err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return messageID, nil
}
