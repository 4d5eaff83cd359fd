// Package recaptcha mints reCAPTCHA v3 tokens for the payment portal by
// driving a real browser. The portal's Google integration only hands out
// tokens to a page it served itself, so the provider keeps one browser
// session open, executes grecaptcha on it, and caches the result for the
// short window Google honors it.
package recaptcha

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mrz1836/vali/internal/browser"
	"github.com/mrz1836/vali/internal/config"
	"github.com/mrz1836/vali/internal/metrics"
	valierr "github.com/mrz1836/vali/pkg/errors"
)

const (
	// TokenLifetime is how long a minted token is reused. Google expires
	// v3 tokens at two minutes; 110 seconds leaves headroom for the
	// request that spends the token.
	TokenLifetime = 110 * time.Second

	// DefaultAction is the action tag attached to minted tokens.
	DefaultAction = "payment"

	// DefaultSolveTimeout bounds a single grecaptcha execution.
	DefaultSolveTimeout = 30 * time.Second

	// DefaultSettleDelay is how long the freshly loaded portal page gets to
	// initialize its reCAPTCHA script before the first solve.
	DefaultSettleDelay = 3 * time.Second

	// flightKey collapses concurrent token acquisitions into one solve.
	flightKey = "token"
)

// ErrEmptyToken is returned when grecaptcha resolves without a token.
// Callers usually see it wrapped in a TOKEN_ACQUISITION_FAILED error.
var ErrEmptyToken = errors.New("recaptcha resolved to an empty token")

// Options configure a Provider.
type Options struct {
	// PageURL is the portal page that loads the reCAPTCHA script.
	PageURL string

	// SiteKey pins the reCAPTCHA site key. Empty means start from the
	// portal's published key and auto-detect on solve failure.
	SiteKey string

	// Action is the action tag reported to Google. Empty means payment.
	Action string

	// Headless hides the browser window.
	Headless bool

	// ChromePath overrides the browser binary.
	ChromePath string

	// SolveTimeout bounds a single grecaptcha execution. Zero means the
	// default.
	SolveTimeout time.Duration

	// SettleDelay is the pause after page load before the first solve.
	// Negative means no pause; zero means the default.
	SettleDelay time.Duration

	// Logger receives debug output. Nil means discard.
	Logger *config.Logger
}

// Provider mints and caches reCAPTCHA tokens against a single browser
// session. Safe for concurrent use; concurrent callers needing a fresh
// token share one solve.
type Provider struct {
	driver       browser.Driver
	pageURL      string
	pinnedKey    string
	action       string
	headless     bool
	chromePath   string
	solveTimeout time.Duration
	settleDelay  time.Duration
	log          *config.Logger

	group singleflight.Group

	mu       sync.Mutex
	session  browser.Session
	siteKey  string
	token    string
	issuedAt time.Time
	lifetime time.Duration
}

// NewProvider creates a token provider. The browser is not launched until
// the first token is needed (or EnsureSession is called).
func NewProvider(driver browser.Driver, opts Options) *Provider {
	p := &Provider{
		driver:       driver,
		pageURL:      opts.PageURL,
		pinnedKey:    opts.SiteKey,
		action:       opts.Action,
		headless:     opts.Headless,
		chromePath:   opts.ChromePath,
		solveTimeout: opts.SolveTimeout,
		settleDelay:  opts.SettleDelay,
		log:          opts.Logger,
		lifetime:     TokenLifetime,
	}

	if p.pageURL == "" {
		p.pageURL = config.DefaultPageURL
	}
	if p.action == "" {
		p.action = DefaultAction
	}
	if p.solveTimeout <= 0 {
		p.solveTimeout = DefaultSolveTimeout
	}
	if p.settleDelay == 0 {
		p.settleDelay = DefaultSettleDelay
	}
	if p.log == nil {
		p.log = config.NullLogger()
	}

	p.siteKey = p.initialSiteKey()

	return p
}

// initialSiteKey is the key solving starts from: the pinned key when
// configured, otherwise the portal's published fallback.
func (p *Provider) initialSiteKey() string {
	if p.pinnedKey != "" {
		return p.pinnedKey
	}
	return FallbackSiteKey
}

// EnsureSession launches the browser and loads the portal page. Calling it
// with a session already up is a no-op, so it is safe to call eagerly.
func (p *Provider) EnsureSession(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensureSessionLocked(ctx)
}

func (p *Provider) ensureSessionLocked(ctx context.Context) error {
	if p.session != nil {
		return nil
	}

	p.log.Debug("starting browser (headless=%v)", p.headless)
	sess, err := p.driver.Launch(ctx, browser.Options{
		Headless:   p.headless,
		ChromePath: p.chromePath,
		Logf:       p.log.Debug,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", valierr.ErrSessionFailed, err)
	}
	metrics.Global.RecordSessionLaunch()

	p.log.Debug("loading %s", p.pageURL)
	if err := sess.Navigate(ctx, p.pageURL); err != nil {
		_ = sess.Shutdown(ctx)
		return fmt.Errorf("%w: %w", valierr.ErrSessionFailed, err)
	}

	// Give the reCAPTCHA script time to initialize before the first solve.
	if p.settleDelay > 0 {
		timer := time.NewTimer(p.settleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = sess.Shutdown(ctx)
			return fmt.Errorf("%w: %w", valierr.ErrSessionFailed, ctx.Err())
		case <-timer.C:
		}
	}

	p.session = sess
	p.log.Debug("browser session ready")
	return nil
}

// Token returns a reCAPTCHA token, reusing the cached one while it is
// still inside its lifetime.
func (p *Provider) Token(ctx context.Context) (string, error) {
	if tok, age, ok := p.cachedToken(); ok {
		p.log.Debug("using cached token (%ds old)", int(age.Seconds()))
		metrics.Global.RecordTokenCacheHit()
		return tok, nil
	}
	return p.acquire(ctx)
}

// Refresh discards any cached token and mints a new one. Used when the
// portal rejects a token that has not yet aged out locally.
func (p *Provider) Refresh(ctx context.Context) (string, error) {
	p.mu.Lock()
	p.token = ""
	p.issuedAt = time.Time{}
	p.mu.Unlock()

	metrics.Global.RecordTokenRefresh()
	return p.acquire(ctx)
}

// Close shuts the browser down and forgets all cached state. Safe to call
// more than once, and before any session was started.
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	sess := p.session
	p.session = nil
	p.token = ""
	p.issuedAt = time.Time{}
	p.siteKey = p.initialSiteKey()
	p.mu.Unlock()

	if sess == nil {
		return nil
	}

	p.log.Debug("stopping browser")
	return sess.Shutdown(ctx)
}

// cachedToken returns the cached token, its age, and whether it is still
// usable.
func (p *Provider) cachedToken() (string, time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == "" {
		return "", 0, false
	}
	age := time.Since(p.issuedAt)
	if age >= p.lifetime {
		return "", 0, false
	}
	return p.token, age, true
}

// acquire funnels all mints through one in-flight solve. Callers that
// arrive while a solve is running wait for its result instead of starting
// their own browser round trip.
func (p *Provider) acquire(ctx context.Context) (string, error) {
	v, err, _ := p.group.Do(flightKey, func() (any, error) {
		// A caller that raced a just-finished acquisition reuses its token
		// instead of minting another.
		if tok, _, ok := p.cachedToken(); ok {
			metrics.Global.RecordTokenCacheHit()
			return tok, nil
		}
		return p.solve(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// solve runs grecaptcha on the portal page and caches the result. On
// failure with the fallback key it tries to detect the real site key from
// the page and solves once more.
func (p *Provider) solve(ctx context.Context) (string, error) {
	if err := p.EnsureSession(ctx); err != nil {
		metrics.Global.RecordTokenFailure()
		return "", err
	}

	p.mu.Lock()
	sess, key := p.session, p.siteKey
	p.mu.Unlock()

	p.log.Debug("minting token with site key %s", abbreviateKey(key))
	token, err := p.execute(ctx, sess, key)

	// The published key goes stale when the portal rotates it. Detection is
	// skipped for pinned keys: the operator asked for that exact one.
	if err != nil && p.pinnedKey == "" && key == FallbackSiteKey {
		p.log.Debug("solve failed with fallback key, detecting site key: %v", err)
		detected, detectErr := p.detectSiteKey(ctx, sess)
		if detectErr != nil {
			p.log.Debug("site key detection failed: %v", detectErr)
		} else if detected != key {
			p.log.Debug("retrying with detected site key %s", abbreviateKey(detected))
			p.mu.Lock()
			p.siteKey = detected
			p.mu.Unlock()
			token, err = p.execute(ctx, sess, detected)
		}
	}

	if err != nil {
		metrics.Global.RecordTokenFailure()
		return "", fmt.Errorf("%w: %w", valierr.ErrTokenAcquisition, err)
	}

	p.mu.Lock()
	p.token = token
	p.issuedAt = time.Now()
	p.mu.Unlock()

	metrics.Global.RecordTokenMint()
	p.log.Debug("obtained token (length %d)", len(token))
	return token, nil
}

// execute runs a single grecaptcha execution with the given key.
func (p *Provider) execute(ctx context.Context, sess browser.Session, siteKey string) (string, error) {
	solveCtx, cancel := context.WithTimeout(ctx, p.solveTimeout)
	defer cancel()

	var token string
	if err := sess.Evaluate(solveCtx, solveScript(siteKey, p.action), &token); err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

// solveScript waits for the page's grecaptcha object and executes it. The
// script runs as an async IIFE so the evaluation resolves to the token.
func solveScript(siteKey, action string) string {
	return fmt.Sprintf(`
(async () => {
	for (let i = 0; i < 60; i++) {
		if (typeof grecaptcha !== 'undefined' && typeof grecaptcha.execute === 'function') {
			break;
		}
		await new Promise(r => setTimeout(r, 500));
	}

	if (typeof grecaptcha === 'undefined' || typeof grecaptcha.execute !== 'function') {
		throw new Error('grecaptcha.execute not available');
	}

	const token = await grecaptcha.execute('%s', {action: '%s'});
	return token;
})()
`, siteKey, action)
}

// abbreviateKey shortens a site key for logs. Site keys are not secrets,
// but full keys make log lines needlessly noisy.
func abbreviateKey(key string) string {
	if len(key) <= 20 {
		return key
	}
	return key[:20] + "..."
}
