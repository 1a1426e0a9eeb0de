// models.go -- Shared domain types for the store package.
// Used by both Postgres (durable identity store) and Redis (nonce guard).
package store

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrIdentityNotFound is returned by GetIdentity when no row matches.
var ErrIdentityNotFound = errors.New("identity not found")

// ErrIncompleteEvent is returned by RecordLogin when the event has no provider or subject.
var ErrIncompleteEvent = errors.New("login event missing provider or subject")

// LoginEvent is one successful sign-in, as handed to the storage port.
// Email and Name may be empty; Provider and Subject never are.
type LoginEvent struct {
	ID            uuid.UUID `json:"id"`
	Provider      string    `json:"provider"`
	Subject       string    `json:"sub"`
	Email         string    `json:"email,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	Name          string    `json:"name,omitempty"`
	Platform      string    `json:"platform"`
	Namespace     string    `json:"va_dir"`
	IsAdmin       bool      `json:"is_admin"`
	At            time.Time `json:"at"`
}

// Identity represents a row in the identities table.
// Nullable columns are pointers; nil means SQL NULL.
type Identity struct {
	Provider      string
	Subject       string
	Email         *string
	EmailVerified bool
	Name          *string
	Namespace     string
	IsAdmin       bool
	LastPlatform  string
	LoginCount    int64
	LastEventID   uuid.UUID
	FirstSeenAt   time.Time
	LastSeenAt    time.Time
}
