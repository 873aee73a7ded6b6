package model

import (
	"time"

	"github.com/google/uuid"
)

// Preferences holds the per-channel opt-in flags of a user.
type Preferences struct {
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
	InApp bool `json:"in_app"`
}

// User is the recipient of notifications. Reference data only: this service
// reads users to resolve addresses and preferences, it never mutates them.
type User struct {
	ID          uuid.UUID   `json:"id"`
	Email       string      `json:"email"`
	Phone       *string     `json:"phone,omitempty"` // optional, required for SMS delivery
	Preferences Preferences `json:"preferences"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Allows reports whether the user has opted in to the given channel.
func (u User) Allows(c Channel) bool {
	switch c {
	case ChannelEmail:
		return u.Preferences.Email
	case ChannelSMS:
		return u.Preferences.SMS
	case ChannelInApp:
		return u.Preferences.InApp
	}

	return false
}
