package session

import (
	"testing"
	"time"
)

func TestSessionIsValid(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"expires later", now.Add(10 * time.Minute), true},
		{"expired long ago", now.Add(-10 * time.Minute), false},
		{"expired a moment ago", now.Add(-time.Millisecond), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{Name: "accounts", CreatedAt: now.Add(-time.Hour), ExpiresAt: tt.expires}
			if got := s.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

// A session file holding {"session": null} decodes to a nil pointer,
// which must read as invalid rather than panicking.
func TestSessionIsValidNilReceiver(t *testing.T) {
	t.Parallel()

	var s *Session
	if s.IsValid() {
		t.Error("IsValid() on nil session = true, want false")
	}
}

func TestSessionTTL(t *testing.T) {
	t.Parallel()

	t.Run("expired returns zero", func(t *testing.T) {
		s := &Session{Name: "accounts", ExpiresAt: time.Now().Add(-10 * time.Minute)}
		if got := s.TTL(); got != 0 {
			t.Errorf("TTL() = %v, want 0", got)
		}
	})

	t.Run("live session returns the remainder", func(t *testing.T) {
		s := &Session{Name: "accounts", ExpiresAt: time.Now().Add(10 * time.Minute)}
		if got := s.TTL(); got <= 9*time.Minute || got > 10*time.Minute {
			t.Errorf("TTL() = %v, want just under 10m", got)
		}
	})

	t.Run("near expiry stays positive", func(t *testing.T) {
		s := &Session{Name: "accounts", ExpiresAt: time.Now().Add(time.Second)}
		if got := s.TTL(); got <= 0 || got > time.Second {
			t.Errorf("TTL() = %v, want within (0, 1s]", got)
		}
	})
}
