// Package metrics counts portal calls, token mints, and cache traffic for
// one process run. Everything is an atomic counter; the stats command reads
// the numbers back out.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics is a set of counters safe to bump from any goroutine.
type Metrics struct {
	// Portal API metrics
	portalCallsTotal   atomic.Int64
	portalErrorsTotal  atomic.Int64
	portalLatencyNanos atomic.Int64

	// Token metrics
	tokensMinted    atomic.Int64
	tokenCacheHits  atomic.Int64
	tokenFailures   atomic.Int64
	tokenRefreshes  atomic.Int64
	sessionLaunches atomic.Int64

	// Check metrics
	checksTotal  atomic.Int64
	checksFailed atomic.Int64

	// Result cache metrics
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// Global collects for the whole process. Command code records here.
//
//nolint:gochecknoglobals // One shared collector per process
var Global = &Metrics{}

// RecordPortalCall records a portal API call with its duration and success status.
func (m *Metrics) RecordPortalCall(duration time.Duration, err error) {
	m.portalCallsTotal.Add(1)
	m.portalLatencyNanos.Add(duration.Nanoseconds())

	if err != nil {
		m.portalErrorsTotal.Add(1)
	}
}

// RecordTokenMint records a freshly minted reCAPTCHA token.
func (m *Metrics) RecordTokenMint() {
	m.tokensMinted.Add(1)
}

// RecordTokenCacheHit records a token served from the in-memory cache.
func (m *Metrics) RecordTokenCacheHit() {
	m.tokenCacheHits.Add(1)
}

// RecordTokenFailure records a failed token acquisition.
func (m *Metrics) RecordTokenFailure() {
	m.tokenFailures.Add(1)
}

// RecordTokenRefresh records a forced token refresh.
func (m *Metrics) RecordTokenRefresh() {
	m.tokenRefreshes.Add(1)
}

// RecordSessionLaunch records a browser session launch.
func (m *Metrics) RecordSessionLaunch() {
	m.sessionLaunches.Add(1)
}

// RecordCheck records a balance check outcome.
func (m *Metrics) RecordCheck(err error) {
	m.checksTotal.Add(1)
	if err != nil {
		m.checksFailed.Add(1)
	}
}

// RecordCacheHit records a result cache hit.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a result cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	PortalCallsTotal   int64
	PortalErrorsTotal  int64
	PortalLatencyNanos int64
	TokensMinted       int64
	TokenCacheHits     int64
	TokenFailures      int64
	TokenRefreshes     int64
	SessionLaunches    int64
	ChecksTotal        int64
	ChecksFailed       int64
	CacheHits          int64
	CacheMisses        int64
}

// Snapshot copies every counter at one instant.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		PortalCallsTotal:   m.portalCallsTotal.Load(),
		PortalErrorsTotal:  m.portalErrorsTotal.Load(),
		PortalLatencyNanos: m.portalLatencyNanos.Load(),
		TokensMinted:       m.tokensMinted.Load(),
		TokenCacheHits:     m.tokenCacheHits.Load(),
		TokenFailures:      m.tokenFailures.Load(),
		TokenRefreshes:     m.tokenRefreshes.Load(),
		SessionLaunches:    m.sessionLaunches.Load(),
		ChecksTotal:        m.checksTotal.Load(),
		ChecksFailed:       m.checksFailed.Load(),
		CacheHits:          m.cacheHits.Load(),
		CacheMisses:        m.cacheMisses.Load(),
	}
}

// PortalCallsTotal returns the total number of portal API calls made.
func (m *Metrics) PortalCallsTotal() int64 {
	return m.portalCallsTotal.Load()
}

// PortalErrorsTotal returns the total number of portal API errors.
func (m *Metrics) PortalErrorsTotal() int64 {
	return m.portalErrorsTotal.Load()
}

// PortalLatencyAvgMs is the mean portal call latency in milliseconds,
// zero before any call.
func (m *Metrics) PortalLatencyAvgMs() float64 {
	calls := m.portalCallsTotal.Load()
	if calls == 0 {
		return 0
	}
	nanos := m.portalLatencyNanos.Load()
	return float64(nanos) / float64(calls) / 1e6
}

// TokenCacheHitRate is reused tokens over all token requests as a
// percentage (0-100), zero before any traffic.
func (m *Metrics) TokenCacheHitRate() float64 {
	hits := m.tokenCacheHits.Load()
	minted := m.tokensMinted.Load()
	total := hits + minted
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// CacheHitRate is result cache hits over all lookups as a percentage
// (0-100), zero before any traffic.
func (m *Metrics) CacheHitRate() float64 {
	hits := m.cacheHits.Load()
	misses := m.cacheMisses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Reset zeroes every counter. Tests use it between cases.
func (m *Metrics) Reset() {
	m.portalCallsTotal.Store(0)
	m.portalErrorsTotal.Store(0)
	m.portalLatencyNanos.Store(0)
	m.tokensMinted.Store(0)
	m.tokenCacheHits.Store(0)
	m.tokenFailures.Store(0)
	m.tokenRefreshes.Store(0)
	m.sessionLaunches.Store(0)
	m.checksTotal.Store(0)
	m.checksFailed.Store(0)
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
}
