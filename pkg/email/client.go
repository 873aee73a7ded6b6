package email

import (
	"fmt"
	"html"

	"github.com/google/uuid"
	"gopkg.in/mail.v2"
)

// Client sends notification emails over SMTP. The dialer is created once
// and reused for every send.
type Client struct {
	dialer *mail.Dialer
	from   string
}

func NewClient(smtpHost string, smtpPort int, username, password, from string) *Client {
	return &Client{
		dialer: mail.NewDialer(smtpHost, smtpPort, username, password),
		from:   from,
	}
}

// Send delivers a plain-text message with a simple HTML alternative and
// returns the generated message id.
func (c *Client) Send(to, subject, body string) (string, error) {
	messageID := fmt.Sprintf("<%s@notification-pipeline>", uuid.New())

	m := mail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", messageID)

	m.SetBody("text/plain", body)
	m.AddAlternative("text/html", fmt.Sprintf(
		`<div style="font-family: Arial, sans-serif; line-height: 1.6;">%s</div>`,
		html.EscapeString(body),
	))

	if err := c.dialer.DialAndSend(m); err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}

	return messageID, nil
}
