package valicrypto

import (
	"runtime"
	"sync"
)

// SecureBytes wraps a sensitive byte slice (passphrases, decrypted accounts
// data) with mlock where the platform supports it and explicit zeroing.
type SecureBytes struct {
	data   []byte
	locked bool
	mu     sync.Mutex
}

// NewSecureBytes creates a zeroed SecureBytes of the given size.
func NewSecureBytes(size int) (*SecureBytes, error) {
	data := make([]byte, size)

	sb := &SecureBytes{
		data:   data,
		locked: mlock(data),
	}

	// Finalizer clears the memory even when Destroy is never called.
	runtime.SetFinalizer(sb, func(s *SecureBytes) {
		s.Destroy()
	})

	return sb, nil
}

// SecureBytesFromSlice copies data into secure memory. The caller still owns
// (and should zero) the original slice.
func SecureBytesFromSlice(data []byte) (*SecureBytes, error) {
	sb, err := NewSecureBytes(len(data))
	if err != nil {
		return nil, err
	}
	copy(sb.data, data)
	return sb, nil
}

// Bytes returns the underlying slice, or nil after Destroy.
func (s *SecureBytes) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// IsLocked reports whether the memory is mlocked.
func (s *SecureBytes) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Len returns the length of the data, 0 after Destroy.
func (s *SecureBytes) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return 0
	}
	return len(s.data)
}

// Destroy zeros the memory and unlocks it. Safe to call multiple times.
func (s *SecureBytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return
	}

	for i := range s.data {
		s.data[i] = 0
	}

	if s.locked {
		munlock(s.data)
		s.locked = false
	}

	s.data = nil

	runtime.SetFinalizer(s, nil)
}
