// Package sender adapts the transport clients to the per-channel delivery
// behaviors of the pipeline. One implementation exists per channel and the
// service dispatches over them through a handler table.
package sender

import (
	"errors"

	"github.com/adilzhm/notification-pipeline/internal/model"
)

// DefaultSubject is used for emails without a subject in metadata.
const DefaultSubject = "New Notification"

// ErrNoPhoneNumber reports an SMS recipient without a phone number on file.
var ErrNoPhoneNumber = errors.New("user does not have a phone number")

type emailClient interface {
	Send(to, subject, body string) (string, error)
}

type smsClient interface {
	Send(phone, msg string) (string, error)
}

// Email sends notifications to the user's email address.
type Email struct {
	client emailClient
}

func NewEmail(client emailClient) *Email {
	return &Email{client: client}
}

func (s *Email) Send(user model.User, n model.Notification) (string, error) {
	subject := n.Metadata[model.MetadataSubject]
	if subject == "" {
		subject = DefaultSubject
	}

	return s.client.Send(user.Email, subject, n.Message)
}

// SMS sends notifications to the user's phone number via the gateway.
type SMS struct {
	client smsClient
}

func NewSMS(client smsClient) *SMS {
	return &SMS{client: client}
}

func (s *SMS) Send(user model.User, n model.Notification) (string, error) {
	if user.Phone == nil || *user.Phone == "" {
		return "", ErrNoPhoneNumber
	}

	return s.client.Send(*user.Phone, n.Message)
}

// InApp performs no external send: the stored notification record is the
// delivery artifact.
type InApp struct{}

func NewInApp() InApp {
	return InApp{}
}

func (InApp) Send(model.User, model.Notification) (string, error) {
	return "", nil
}
