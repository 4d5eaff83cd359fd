// Package session caches the accounts book passphrase between commands.
// After one successful unlock the passphrase is held for a configurable
// time. The session key lives in the OS keychain, with the encrypted
// passphrase stored in a session file.
package session

import (
	"errors"
	"time"
)

const (
	// DefaultTTL is how long a session lasts when no duration is given.
	DefaultTTL = 15 * time.Minute

	// MaxTTL caps session duration at one hour.
	MaxTTL = time.Hour

	// MinTTL floors session duration at one minute.
	MinTTL = time.Minute

	// ServiceName is the keyring service name for vali sessions.
	ServiceName = "vali-session"
)

var (
	// ErrSessionNotFound means no session exists for the book.
	ErrSessionNotFound = errors.New("no active session")

	// ErrSessionExpired means the session outlived its TTL.
	ErrSessionExpired = errors.New("session has expired")

	// ErrKeyringUnavailable means no usable OS keyring was found.
	ErrKeyringUnavailable = errors.New("OS keyring unavailable")

	// ErrSessionCorrupted means the session file could not be used.
	ErrSessionCorrupted = errors.New("session file corrupted")
)

// Session is the metadata of one active unlock.
type Session struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsValid reports whether the session exists and has not expired.
func (s *Session) IsValid() bool {
	return s != nil && time.Now().Before(s.ExpiresAt)
}

// TTL returns the time left before expiry, zero at the latest.
func (s *Session) TTL() time.Duration {
	if remaining := time.Until(s.ExpiresAt); remaining > 0 {
		return remaining
	}
	return 0
}

// Manager is what the CLI layer needs from session storage.
type Manager interface {
	// Available reports whether session caching can be used at all.
	Available() bool

	// StartSession caches secret under name for ttl. The secret is
	// encrypted with a random key held only by the OS keyring.
	StartSession(name string, secret []byte, ttl time.Duration) error

	// GetSession returns the cached secret for an active session.
	// ErrSessionNotFound when none exists, ErrSessionExpired when it
	// outlived its TTL.
	GetSession(name string) ([]byte, *Session, error)

	// HasValidSession reports whether an unexpired session exists.
	HasValidSession(name string) bool

	// EndSession removes the named session.
	EndSession(name string) error

	// EndAllSessions removes every session and returns how many went.
	EndAllSessions() int

	// ListSessions returns every live session.
	ListSessions() ([]*Session, error)
}

// Keyring abstracts the OS keychain so tests can swap in fakes.
type Keyring interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}
