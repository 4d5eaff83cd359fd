package check

import (
	"context"
	"time"

	"github.com/mrz1836/vali/internal/cache"
	"github.com/mrz1836/vali/internal/portal"
)

// TokenSource mints reCAPTCHA tokens.
// Satisfied by recaptcha.Provider.
type TokenSource interface {
	// Token returns a token, cached or freshly minted.
	Token(ctx context.Context) (string, error)

	// Refresh discards any cached token and mints a new one.
	Refresh(ctx context.Context) (string, error)

	// Close tears down the browser session.
	Close(ctx context.Context) error
}

// StepsAPI performs GetNextSteps calls.
// Satisfied by portal.Client.
type StepsAPI interface {
	NextSteps(ctx context.Context, request *portal.NextStepsRequest) (*portal.NextStepsResponse, error)
}

// CacheProvider provides result cache operations.
// Adapter for cache.ResultCache; nil means a pure, cacheless check.
type CacheProvider interface {
	Get(serviceID int64, accountID string) (*cache.Entry, bool, time.Duration)
	Set(entry cache.Entry)
}
