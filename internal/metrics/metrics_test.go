package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	valierr "github.com/mrz1836/vali/pkg/errors"
)

func TestRecordPortalCall(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordPortalCall(100*time.Millisecond, nil)
	m.RecordPortalCall(50*time.Millisecond, valierr.ErrNetworkError)

	assert.Equal(t, int64(2), m.PortalCallsTotal())
	assert.Equal(t, int64(1), m.PortalErrorsTotal(), "only the failed call counts as an error")
}

func TestRecordCheck(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordCheck(nil)
	m.RecordCheck(valierr.ErrGeneral)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.ChecksTotal)
	assert.Equal(t, int64(1), snap.ChecksFailed)
}

// Both rates share the hits/(hits+other)*100 shape, so one table covers them.
func TestHitRates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hit  func(*Metrics)
		miss func(*Metrics)
		rate func(*Metrics) float64
	}{
		{"result cache", (*Metrics).RecordCacheHit, (*Metrics).RecordCacheMiss, (*Metrics).CacheHitRate},
		{"token cache", (*Metrics).RecordTokenCacheHit, (*Metrics).RecordTokenMint, (*Metrics).TokenCacheHitRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := &Metrics{}

			assert.InDelta(t, 0.0, tt.rate(m), 0.001, "no activity yet")

			tt.hit(m)
			tt.hit(m)
			tt.hit(m)
			tt.miss(m)
			assert.InDelta(t, 75.0, tt.rate(m), 0.001)
		})
	}
}

func TestPortalLatencyAvg(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	assert.InDelta(t, 0.0, m.PortalLatencyAvgMs(), 0.001, "no calls yet")

	m.RecordPortalCall(100*time.Millisecond, nil)
	m.RecordPortalCall(200*time.Millisecond, nil)
	assert.InDelta(t, 150.0, m.PortalLatencyAvgMs(), 1.0)
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordPortalCall(2*time.Millisecond, valierr.ErrNetworkError)
	m.RecordTokenMint()
	m.RecordTokenCacheHit()
	m.RecordTokenFailure()
	m.RecordTokenRefresh()
	m.RecordSessionLaunch()
	m.RecordCheck(nil)
	m.RecordCacheHit()
	m.RecordCacheMiss()

	assert.Equal(t, Snapshot{
		PortalCallsTotal:   1,
		PortalErrorsTotal:  1,
		PortalLatencyNanos: (2 * time.Millisecond).Nanoseconds(),
		TokensMinted:       1,
		TokenCacheHits:     1,
		TokenFailures:      1,
		TokenRefreshes:     1,
		SessionLaunches:    1,
		ChecksTotal:        1,
		CacheHits:          1,
		CacheMisses:        1,
	}, m.Snapshot())
}

func TestReset(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordPortalCall(time.Millisecond, nil)
	m.RecordCacheHit()
	m.RecordTokenMint()
	m.RecordTokenFailure()

	m.Reset()
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestGlobal(t *testing.T) {
	assert.NotNil(t, Global)

	// Leave the shared instance clean for whoever runs next.
	Global.Reset()
}
