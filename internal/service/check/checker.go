// Package check orchestrates balance checks: a reCAPTCHA token from the
// browser, two GetNextSteps calls against the portal, and a parsed result.
// Completed checks never return error values; failures come back as data so
// batch flows keep going.
package check

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mrz1836/vali/internal/cache"
	"github.com/mrz1836/vali/internal/config"
	"github.com/mrz1836/vali/internal/metrics"
	"github.com/mrz1836/vali/internal/portal"
	"github.com/mrz1836/vali/internal/services"
	valierr "github.com/mrz1836/vali/pkg/errors"
)

// DefaultMaxConcurrent bounds batch fan-out when the request does not.
const DefaultMaxConcurrent = 4

// Result error strings. Scripts match on these; changing them is a
// breaking change.
const (
	msgTokenFailed   = "Failed to get reCAPTCHA token"
	msgInvalidFormat = "Invalid response format"
	msgTimeout       = "Request timeout"
	msgNoCachedData  = "No cached data"
)

// errCheckFailed only feeds the failure counter; it never reaches callers.
var errCheckFailed = errors.New("check failed")

// Config holds the configuration for a Checker.
type Config struct {
	// Service is the portal service checks run against by default.
	// Individual requests and batch items may override it.
	Service ServiceDescriptor

	// Tokens mints reCAPTCHA tokens. Required.
	Tokens TokenSource

	// API performs the portal calls. Required.
	API StepsAPI

	// Cache holds recent results. Nil disables caching entirely: no fresh
	// short circuit, no stale fallback.
	Cache CacheProvider

	// Staleness overrides the window a cached result counts as fresh.
	Staleness time.Duration

	// Logger receives debug lines. Nil means discard.
	Logger *config.Logger
}

// Checker runs balance checks against one portal service. Safe for
// concurrent use; all checks share the token provider, whose single-flight
// gate collapses concurrent solves into one browser round-trip.
type Checker struct {
	service   ServiceDescriptor
	tokens    TokenSource
	api       StepsAPI
	cache     CacheProvider
	policy    *RefreshPolicy
	staleness time.Duration
	log       *config.Logger
}

// New creates a Checker.
func New(cfg *Config) (*Checker, error) {
	if cfg == nil || cfg.Tokens == nil || cfg.API == nil {
		return nil, fmt.Errorf("%w: checker needs a token source and a portal client", valierr.ErrInvalidInput)
	}
	if cfg.Service.ID <= 0 {
		return nil, fmt.Errorf("%w: service ID is required", valierr.ErrInvalidInput)
	}

	staleness := cfg.Staleness
	if staleness <= 0 {
		staleness = cache.DefaultStaleness
	}

	c := &Checker{
		service:   cfg.Service,
		tokens:    cfg.Tokens,
		api:       cfg.API,
		cache:     cfg.Cache,
		staleness: staleness,
		log:       cfg.Logger,
	}
	if c.log == nil {
		c.log = config.NullLogger()
	}
	if cfg.Cache != nil {
		c.policy = NewRefreshPolicy(cfg.Cache, staleness)
	}
	return c, nil
}

// Check looks up one account's balance. The returned Result is always
// complete: failures are data (Status "error"), not error returns.
func (c *Checker) Check(ctx context.Context, req *CheckRequest) Result {
	result := c.check(ctx, req)
	if result.OK() {
		metrics.Global.RecordCheck(nil)
	} else {
		metrics.Global.RecordCheck(errCheckFailed)
	}
	return result
}

func (c *Checker) check(ctx context.Context, req *CheckRequest) Result {
	svc := c.service
	if req.Service != nil {
		svc = *req.Service
	}
	step := req.StepOrder
	if step == 0 {
		step = svc.StepOrder
	}
	if step == 0 {
		step = services.DefaultStepOrder
	}

	if req.CachedOnly {
		return c.cachedOnly(svc, req.AccountID)
	}

	if c.policy != nil && !req.ForceRefresh {
		if c.policy.Evaluate(svc.ID, req.AccountID) == CacheFresh {
			if entry, ok, _ := c.cache.Get(svc.ID, req.AccountID); ok {
				c.log.Debug("serving %s/%s from cache", svc.DisplayName(), req.AccountID)
				metrics.Global.RecordCacheHit()
				return resultFromEntry(entry, c.staleness, false)
			}
		}
		metrics.Global.RecordCacheMiss()
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	result := c.fetch(ctx, svc, req.AccountID, step)

	if result.OK() && !result.Stale && c.cache != nil {
		// Keyed by the queried code, not the echoed one, so later lookups
		// for the same input hit.
		c.cache.Set(cache.Entry{
			ServiceID:    svc.ID,
			ServiceName:  svc.DisplayName(),
			AccountID:    req.AccountID,
			CustomerName: result.CustomerName,
			Balance:      result.Balance,
			AmountToPay:  result.AmountToPay,
			Currency:     result.Currency,
			CanPay:       result.CanPay,
		})
	}

	return result
}

// fetch runs the two-call protocol: step metadata with stepOrder 1, then the
// balance submission with the selected step's parameters merged into the
// context. At most one token refresh, triggered only when call 1 is
// rejected for a token reason.
//
//nolint:gocognit,gocyclo // The check protocol is one sequential state machine
func (c *Checker) fetch(ctx context.Context, svc ServiceDescriptor, accountID string, step int) Result {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.log.Error("token acquisition failed: %v", err)
		return c.fail(svc, accountID, msgTokenFailed, nil)
	}

	resp, err := c.api.NextSteps(ctx, c.buildRequest(svc, accountID, token, 1, nil))
	if refreshWorthy(resp, err) {
		c.log.Debug("portal rejected the token, refreshing once")
		token, err = c.tokens.Refresh(ctx)
		if err != nil {
			return c.fail(svc, accountID, msgTokenFailed, nil)
		}
		resp, err = c.api.NextSteps(ctx, c.buildRequest(svc, accountID, token, 1, nil))
	}
	if err != nil {
		return c.fail(svc, accountID, transportMessage(err), nil)
	}
	if !resp.Success {
		return c.fail(svc, accountID, resp.ErrorText(), nil)
	}

	selected, ok := resp.Data.SelectStep(step)
	if !ok {
		c.log.Debug("step %d missing from metadata reply", step)
		return c.fail(svc, accountID, msgInvalidFormat, nil)
	}

	extra := contextEntries(selected.StepParameters)
	resp, err = c.api.NextSteps(ctx, c.buildRequest(svc, accountID, token, step, extra))
	if err != nil {
		return c.fail(svc, accountID, transportMessage(err), nil)
	}
	if !resp.Success {
		return c.fail(svc, accountID, resp.ErrorText(), nil)
	}

	payload, ok := resp.Data.SelectStep(step)
	if !ok {
		return c.fail(svc, accountID, msgInvalidFormat, nil)
	}

	raw := portal.ParamMap(payload.StepParameters)
	balance, err := portal.ParseBalance(raw, accountID)
	if err != nil {
		return c.fail(svc, accountID, msgInvalidFormat, raw)
	}

	return Result{
		Status:       StatusSuccess,
		AccountID:    balance.AccountID,
		ServiceName:  svc.DisplayName(),
		CustomerName: balance.Name,
		Balance:      balance.Debt,
		AmountToPay:  balance.AmountToPay,
		Currency:     balance.Currency,
		CanPay:       balance.CanPay,
		UpdatedAt:    time.Now(),
		RawData:      raw,
	}
}

// CheckAll checks many accounts concurrently. Results come back in item
// order; a failed item never aborts the batch.
func (c *Checker) CheckAll(ctx context.Context, req *BatchRequest) *BatchResult {
	batch := &BatchResult{Results: make([]Result, len(req.Items))}

	maxConcurrent := req.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0

	for i := range req.Items {
		wg.Add(1)

		go func(i int, item BatchItem) {
			defer wg.Done()

			// Acquire semaphore
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				batch.Results[i] = c.canceled(item, ctx.Err())
				return
			}
			defer func() {
				<-sem
			}()

			checkReq := &CheckRequest{
				AccountID:    item.AccountID,
				Service:      item.Service,
				StepOrder:    item.StepOrder,
				ForceRefresh: req.ForceRefresh,
				CachedOnly:   req.CachedOnly,
				Timeout:      req.Timeout,
			}

			batch.Results[i] = c.Check(ctx, checkReq)

			if req.Progress != nil {
				// Held across the callback so updates arrive in order.
				mu.Lock()
				completed++
				req.Progress(ProgressUpdate{
					Completed: completed,
					Total:     len(req.Items),
					AccountID: item.AccountID,
					Label:     item.Label,
				})
				mu.Unlock()
			}
		}(i, req.Items[i])
	}

	wg.Wait()

	return batch
}

// Close tears down the token provider's browser session. Safe to call
// repeatedly.
func (c *Checker) Close(ctx context.Context) error {
	return c.tokens.Close(ctx)
}

// cachedOnly serves a check purely from cache, marked stale regardless of
// age. No network or browser activity at all.
func (c *Checker) cachedOnly(svc ServiceDescriptor, accountID string) Result {
	if c.cache != nil {
		if entry, ok, _ := c.cache.Get(svc.ID, accountID); ok {
			metrics.Global.RecordCacheHit()
			return resultFromEntry(entry, c.staleness, true)
		}
	}
	metrics.Global.RecordCacheMiss()
	return Result{
		Status:      StatusError,
		AccountID:   accountID,
		ServiceName: svc.DisplayName(),
		Error:       msgNoCachedData,
	}
}

// fail builds the error result, first trying the stale-cache fallback: a
// cached entry, however old, beats an error.
func (c *Checker) fail(svc ServiceDescriptor, accountID, msg string, raw map[string]string) Result {
	if c.cache != nil {
		if entry, ok, _ := c.cache.Get(svc.ID, accountID); ok {
			c.log.Debug("check for %s/%s failed (%s), serving stale cache", svc.DisplayName(), accountID, msg)
			result := resultFromEntry(entry, c.staleness, true)
			result.Error = msg
			result.RawData = raw
			return result
		}
	}
	return Result{
		Status:      StatusError,
		AccountID:   accountID,
		ServiceName: svc.DisplayName(),
		Error:       msg,
		RawData:     raw,
	}
}

// canceled is the result for a batch item whose turn never came.
func (c *Checker) canceled(item BatchItem, err error) Result {
	svc := c.service
	if item.Service != nil {
		svc = *item.Service
	}
	msg := msgTimeout
	if !errors.Is(err, context.DeadlineExceeded) && err != nil {
		msg = err.Error()
	}
	return Result{
		Status:      StatusError,
		AccountID:   item.AccountID,
		ServiceName: svc.DisplayName(),
		Error:       msg,
	}
}

// buildRequest assembles one GetNextSteps body. The base context carries
// ROOT_SERVICE_ID and abonentCode; the balance submission extends it with
// the selected step's parameters.
func (c *Checker) buildRequest(svc ServiceDescriptor, accountID, token string, stepOrder int, extra []portal.ContextEntry) *portal.NextStepsRequest {
	entries := make([]portal.ContextEntry, 0, 2+len(extra))
	entries = append(entries,
		portal.ContextEntry{Key: "ROOT_SERVICE_ID", Value: strconv.FormatInt(svc.ID, 10)},
		portal.ContextEntry{Key: "abonentCode", Value: accountID},
	)
	entries = append(entries, extra...)

	return &portal.NextStepsRequest{
		Context:        entries,
		RecaptchaToken: token,
		ServiceID:      svc.ID,
		StepOrder:      stepOrder,
		Origin:         "Payment",
	}
}

// contextEntries converts step parameters into context entries for the
// follow-up call.
func contextEntries(params []portal.StepParameter) []portal.ContextEntry {
	entries := make([]portal.ContextEntry, 0, len(params))
	for _, p := range params {
		entries = append(entries, portal.ContextEntry{Key: p.Key, Value: string(p.Value)})
	}
	return entries
}

// refreshWorthy reports whether a metadata-call outcome should trigger the
// one token refresh: an HTTP 401/403, or a decoded rejection whose message
// blames the token.
func refreshWorthy(resp *portal.NextStepsResponse, err error) bool {
	if err != nil {
		return portal.IsAuthStatus(err)
	}
	return !resp.Success && portal.LooksLikeTokenRejection(resp.ErrorText())
}

// transportMessage maps a transport or decode failure to the result error
// string. HTTP rejections keep their status ("HTTP 403"); timeouts and
// undecodable bodies use the fixed strings callers match on; anything else
// passes through.
func transportMessage(err error) string {
	switch {
	case errors.Is(err, valierr.ErrTimeout):
		return msgTimeout
	case errors.Is(err, valierr.ErrProtocol):
		return msgInvalidFormat
	}
	var httpErr *portal.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Error()
	}
	return err.Error()
}
