package session

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/mrz1836/vali/internal/fileutil"
	"github.com/mrz1836/vali/internal/valicrypto"
)

// Session names come from account book labels and never contain path
// characters, but the manager re-checks at its own boundary.
var sessionNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

var errInvalidSessionName = fmt.Errorf("invalid session name")

const (
	sessionExt      = ".session"
	sessionFileMode = 0o600
	sessionDirMode  = 0o700

	// Random key material for encrypting the cached secret, in bytes.
	sessionKeyBytes = 32
)

// sessionRecord is the on-disk layout: plaintext metadata next to the
// secret encrypted under a key that only the OS keyring holds.
type sessionRecord struct {
	Session         *Session `json:"session"`
	EncryptedSecret []byte   `json:"encrypted_secret"`
}

// DiskManager stores sessions as files under a base directory and keeps
// each session's encryption key in the OS keyring.
type DiskManager struct {
	root   string
	ring   Keyring
	usable bool
	mu     sync.RWMutex
}

// NewManager builds a DiskManager rooted at basePath. A nil keyring
// selects the OS keyring. Availability is probed once up front so later
// calls can fail fast when no keyring daemon is reachable.
func NewManager(basePath string, keyring Keyring) *DiskManager {
	if keyring == nil {
		keyring = NewOSKeyring()
	}
	m := &DiskManager{root: basePath, ring: keyring}
	m.usable = m.ringReachable()
	return m
}

// Available reports whether session caching can be used at all.
func (m *DiskManager) Available() bool {
	return m.usable
}

// StartSession caches secret under name for ttl. The secret is encrypted
// with a fresh random key; the key goes to the keyring, the ciphertext to
// disk. Either both halves land or neither does.
func (m *DiskManager) StartSession(name string, secret []byte, ttl time.Duration) error {
	if !sessionNameRegex.MatchString(name) {
		return errInvalidSessionName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.usable {
		return ErrKeyringUnavailable
	}

	ttl = clampTTL(ttl)

	key := make([]byte, sessionKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("drawing session key: %w", err)
	}
	defer wipeKey(key)

	sealed, err := valicrypto.Encrypt(secret, hex.EncodeToString(key))
	if err != nil {
		return fmt.Errorf("encrypting secret: %w", err)
	}

	ent := m.keyringEntry(name)
	if err := m.ring.Set(ServiceName, ent, base64.StdEncoding.EncodeToString(key)); err != nil {
		return fmt.Errorf("storing session key in keyring: %w", err)
	}

	now := time.Now()
	rec := sessionRecord{
		Session: &Session{
			Name:      name,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		},
		EncryptedSecret: sealed,
	}

	if err := m.writeSessionFile(name, &rec); err != nil {
		// Roll back the keyring half so no orphaned key lingers.
		_ = m.ring.Delete(ServiceName, ent)
		return err
	}
	return nil
}

func (m *DiskManager) writeSessionFile(name string, rec *sessionRecord) error {
	if err := os.MkdirAll(m.root, sessionDirMode); err != nil {
		return fmt.Errorf("creating sessions directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := fileutil.WriteAtomic(m.sessionPath(name), data, sessionFileMode); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}

// GetSession returns the cached secret and metadata for name. Expired or
// damaged sessions are removed on the way out.
func (m *DiskManager) GetSession(name string) ([]byte, *Session, error) {
	if !sessionNameRegex.MatchString(name) {
		return nil, nil, errInvalidSessionName
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.usable {
		return nil, nil, ErrKeyringUnavailable
	}

	rec, err := m.loadSessionFile(name)
	if err != nil {
		return nil, nil, err
	}

	if !rec.Session.IsValid() {
		_ = m.removeSession(name)
		return nil, nil, ErrSessionExpired
	}

	encodedKey, err := m.ring.Get(ServiceName, m.keyringEntry(name))
	if err != nil {
		// The file exists but its key is gone; the session is unusable.
		_ = m.removeSession(name)
		return nil, nil, ErrSessionNotFound
	}

	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		_ = m.removeSession(name)
		return nil, nil, ErrSessionCorrupted
	}
	defer wipeKey(key)

	secret, err := valicrypto.Decrypt(rec.EncryptedSecret, hex.EncodeToString(key))
	if err != nil {
		_ = m.removeSession(name)
		return nil, nil, ErrSessionCorrupted
	}

	return secret, rec.Session, nil
}

// loadSessionFile reads and parses one session file. A parse failure
// removes the file and reports ErrSessionCorrupted; a missing file maps
// to ErrSessionNotFound.
func (m *DiskManager) loadSessionFile(name string) (*sessionRecord, error) {
	//nolint:gosec // G304: name passed sessionNameRegex and the path is rooted below root
	data, err := os.ReadFile(m.sessionPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	rec := new(sessionRecord)
	if err := json.Unmarshal(data, rec); err != nil {
		_ = m.removeSession(name)
		return nil, ErrSessionCorrupted
	}
	return rec, nil
}

// HasValidSession reports whether an unexpired session exists for name,
// without touching the keyring.
func (m *DiskManager) HasValidSession(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.usable {
		return false
	}

	//nolint:gosec // G304: name passed sessionNameRegex and the path is rooted below root
	data, err := os.ReadFile(m.sessionPath(name))
	if err != nil {
		return false
	}
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return false
	}
	return rec.Session.IsValid()
}

// EndSession removes the named session.
func (m *DiskManager) EndSession(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.removeSession(name)
}

// EndAllSessions removes every active session and returns how many went.
func (m *DiskManager) EndAllSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, err := m.activeSessions()
	if err != nil {
		return 0
	}

	removed := 0
	for _, s := range sessions {
		if m.removeSession(s.Name) == nil {
			removed++
		}
	}
	return removed
}

// ListSessions returns the sessions that have not expired yet.
func (m *DiskManager) ListSessions() ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.activeSessions()
}

// Keyring probes go through a goroutine with a deadline so a hung or
// absent keyring daemon cannot stall CLI startup.
const ringProbeTimeout = 3 * time.Second

func (m *DiskManager) ringReachable() bool {
	done := make(chan bool, 1)
	go func() { done <- m.ringRoundTrip() }()

	select {
	case ok := <-done:
		return ok
	case <-time.After(ringProbeTimeout):
		return false
	}
}

// ringRoundTrip round-trips a throwaway value through the keyring.
func (m *DiskManager) ringRoundTrip() bool {
	const svc, user, val = "vali-probe", "probe", "test"

	if err := m.ring.Set(svc, user, val); err != nil {
		return false
	}
	got, err := m.ring.Get(svc, user)
	if err != nil || got != val {
		_ = m.ring.Delete(svc, user)
		return false
	}
	return m.ring.Delete(svc, user) == nil
}

// activeSessions scans the base directory for unexpired session files.
// Callers hold the lock. Entries that fail to read or parse are skipped
// rather than failing the whole listing.
func (m *DiskManager) activeSessions() ([]*Session, error) {
	if !m.usable {
		return nil, ErrKeyringUnavailable
	}

	ents, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing sessions directory: %w", err)
	}

	var sessions []*Session
	for _, ent := range ents {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), sessionExt) {
			continue
		}
		name := strings.TrimSuffix(ent.Name(), sessionExt)

		//nolint:gosec // G304: path derives from our own directory listing
		data, err := os.ReadFile(m.sessionPath(name))
		if err != nil {
			continue
		}
		var rec sessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if rec.Session.IsValid() {
			sessions = append(sessions, rec.Session)
		}
	}
	return sessions, nil
}

// removeSession drops both halves of a session. The keyring delete is
// best effort; a missing file counts as already removed. Callers hold
// the lock.
func (m *DiskManager) removeSession(name string) error {
	_ = m.ring.Delete(ServiceName, m.keyringEntry(name))

	if err := os.Remove(m.sessionPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting session file: %w", err)
	}
	return nil
}

func (m *DiskManager) keyringEntry(name string) string {
	return "book:" + name
}

// sessionPath maps a session name onto its file below the root and
// returns "" if cleaning the joined path would escape it.
func (m *DiskManager) sessionPath(name string) string {
	p := filepath.Clean(filepath.Join(m.root, name+sessionExt))
	if !strings.HasSuffix(p, string(filepath.Separator)+name+sessionExt) {
		return ""
	}
	return p
}

func clampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl < MinTTL:
		return MinTTL
	case ttl > MaxTTL:
		return MaxTTL
	default:
		return ttl
	}
}

// wipeKey wipes key material. runtime.KeepAlive stops the compiler from
// treating the wipe as a dead store.
func wipeKey(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}
