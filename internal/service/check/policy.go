package check

import (
	"time"

	"github.com/mrz1836/vali/internal/cache"
)

// RefreshPolicy decides whether a check can be answered from cache or needs
// a fresh portal round-trip.
type RefreshPolicy struct {
	cache     CacheProvider
	staleness time.Duration
}

// RefreshDecision classifies the cached state of an account.
type RefreshDecision int

const (
	// RefreshRequired means there is nothing cached worth serving; the
	// account must be fetched fresh.
	RefreshRequired RefreshDecision = iota

	// CacheFresh means the cached entry is inside the staleness window and
	// can be served as-is without touching the network.
	CacheFresh

	// CacheStale means a cached entry exists but has aged out. A fresh
	// fetch is preferred; the entry remains usable as a fallback when the
	// fetch fails.
	CacheStale
)

// NewRefreshPolicy creates a policy over the given cache. A non-positive
// staleness falls back to the cache package default.
func NewRefreshPolicy(cacheProvider CacheProvider, staleness time.Duration) *RefreshPolicy {
	if staleness <= 0 {
		staleness = cache.DefaultStaleness
	}
	return &RefreshPolicy{
		cache:     cacheProvider,
		staleness: staleness,
	}
}

// Evaluate classifies the cached state for one service/account pair.
func (p *RefreshPolicy) Evaluate(serviceID int64, accountID string) RefreshDecision {
	_, exists, age := p.cache.Get(serviceID, accountID)
	if !exists {
		return RefreshRequired
	}
	if age <= p.staleness {
		return CacheFresh
	}
	return CacheStale
}

// Staleness returns the window the policy considers fresh.
func (p *RefreshPolicy) Staleness() time.Duration {
	return p.staleness
}
