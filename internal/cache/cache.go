// Package cache stores recent balance results between runs.
package cache

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// DefaultStaleness is the cutoff after which a cached balance is offered
// only as a fallback, unless the caller picks a different window.
const DefaultStaleness = 5 * time.Minute

// DefaultMaxAge is how long an entry stays useful at all. Older entries are
// pruned on load.
const DefaultMaxAge = 24 * time.Hour

// Cache is the read/write surface for cached balance results.
type Cache interface {
	// Get returns the entry for a service/account pair, whether it
	// exists, and how old it is.
	Get(serviceID int64, accountID string) (*Entry, bool, time.Duration)

	// Set stores an entry, stamping it with the current time.
	Set(entry Entry)

	// IsStale reports staleness against DefaultStaleness.
	IsStale(serviceID int64, accountID string) bool

	// IsStaleWithDuration reports staleness against a caller-chosen window.
	IsStaleWithDuration(serviceID int64, accountID string, staleness time.Duration) bool

	// Delete drops one entry.
	Delete(serviceID int64, accountID string)

	// Clear drops everything.
	Clear()

	// Size counts the stored entries.
	Size() int

	// All returns every entry in deterministic order.
	All() []Entry

	// Prune drops entries older than maxAge and reports how many went.
	Prune(maxAge time.Duration) int
}

var _ Cache = (*ResultCache)(nil)

// ResultCache keeps balance results keyed by service and account. The
// struct marshals directly to the on-disk JSON form.
type ResultCache struct {
	mu      sync.RWMutex     `json:"-"`
	Entries map[string]Entry `json:"entries"`
}

// Entry is one cached balance lookup.
type Entry struct {
	ServiceID    int64     `json:"service_id"`
	ServiceName  string    `json:"service_name"`
	AccountID    string    `json:"account_id"`
	CustomerName string    `json:"customer_name"`
	Balance      float64   `json:"balance"`
	AmountToPay  float64   `json:"amount_to_pay"`
	Currency     string    `json:"currency"`
	CanPay       bool      `json:"can_pay"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// New creates an empty result cache.
func New() *ResultCache {
	return &ResultCache{Entries: make(map[string]Entry)}
}

// Key builds the map key for a service/account pair.
func Key(serviceID int64, accountID string) string {
	return strconv.FormatInt(serviceID, 10) + ":" + accountID
}

// Get returns the entry for a service/account pair, whether it exists, and
// its age.
func (c *ResultCache) Get(serviceID int64, accountID string) (*Entry, bool, time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.Entries[Key(serviceID, accountID)]
	if !ok {
		return nil, false, 0
	}
	return &entry, true, time.Since(entry.UpdatedAt)
}

// Set stores an entry, stamping it with the current time.
func (c *ResultCache) Set(entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.UpdatedAt = time.Now()
	c.Entries[Key(entry.ServiceID, entry.AccountID)] = entry
}

// IsStale reports staleness against DefaultStaleness.
func (c *ResultCache) IsStale(serviceID int64, accountID string) bool {
	return c.IsStaleWithDuration(serviceID, accountID, DefaultStaleness)
}

// IsStaleWithDuration reports whether the entry is missing or older than
// the given window.
func (c *ResultCache) IsStaleWithDuration(serviceID int64, accountID string, staleness time.Duration) bool {
	_, ok, age := c.Get(serviceID, accountID)
	return !ok || age > staleness
}

// Delete drops one entry.
func (c *ResultCache) Delete(serviceID int64, accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.Entries, Key(serviceID, accountID))
}

// Clear drops everything.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Entries = make(map[string]Entry)
}

// Size counts the stored entries.
func (c *ResultCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.Entries)
}

// All returns every entry ordered by service ID, then account.
func (c *ResultCache) All() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.Entries))
	for _, entry := range c.Entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.ServiceID == b.ServiceID {
			return a.AccountID < b.AccountID
		}
		return a.ServiceID < b.ServiceID
	})
	return entries
}

// Prune drops entries older than maxAge and reports how many went.
func (c *ResultCache) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for key, entry := range c.Entries {
		if !entry.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(c.Entries, key)
		removed++
	}
	return removed
}
