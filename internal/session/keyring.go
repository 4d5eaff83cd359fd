package session

import (
	"github.com/zalando/go-keyring"
)

// OSKeyring is the Keyring backed by the operating system keychain
// (Keychain on macOS, Secret Service on Linux, Credential Manager on
// Windows).
type OSKeyring struct{}

// NewOSKeyring returns the OS keychain wrapper.
func NewOSKeyring() *OSKeyring {
	return &OSKeyring{}
}

// Set stores a secret.
func (OSKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}

// Get retrieves a secret.
func (OSKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

// Delete removes a secret.
func (OSKeyring) Delete(service, user string) error {
	return keyring.Delete(service, user)
}
