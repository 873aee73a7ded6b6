package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Channel is the delivery medium for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in-app"
)

var ErrUnknownChannel = errors.New("unknown notification channel")

// Channels lists every supported delivery channel.
var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelInApp}

// ParseChannel converts a raw string into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}

	return c, nil
}

// Valid reports whether the channel is one of the supported delivery media.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelInApp:
		return true
	}

	return false
}

func (c Channel) String() string {
	return string(c)
}

// Status is the lifecycle state of a notification.
//
// A notification is created as pending, held as processing while a worker
// delivers it, and ends up delivered or failed. A failed delivery attempt
// with retry budget left returns the notification to pending with a future
// NextRetry timestamp.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// Metadata carries free-form notification attributes such as the email
// subject or the last delivery error. Stored as JSONB.
type Metadata map[string]string

const (
	// MetadataSubject overrides the default email subject.
	MetadataSubject = "subject"
	// MetadataLastError records the most recent delivery failure.
	MetadataLastError = "lastError"
)

// Value implements driver.Valuer for JSONB columns.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		m = Metadata{}
	}

	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB columns.
func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = Metadata{}
		return nil
	}

	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("metadata: cannot scan %T", src)
	}

	return json.Unmarshal(b, m)
}

// Notification represents a notification entity in the system.
type Notification struct {
	ID         uuid.UUID  `json:"id"`                   // unique identifier, assigned on creation
	UserID     uuid.UUID  `json:"user_id"`              // recipient user
	Channel    Channel    `json:"channel"`              // delivery method: email, sms or in-app
	Message    string     `json:"message"`              // content of the notification
	Metadata   Metadata   `json:"metadata"`             // free-form attributes (subject, lastError, ...)
	Status     Status     `json:"status"`               // current lifecycle state
	RetryCount int        `json:"retry_count"`          // number of failed delivery attempts so far
	NextRetry  *time.Time `json:"next_retry,omitempty"` // when the next delivery attempt is due, if any
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
