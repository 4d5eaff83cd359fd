// Package portal implements the TBCPay internal API client. The portal has
// no public API; this speaks the same GetNextSteps endpoint the web payment
// wizard uses, authenticated per-request by a reCAPTCHA v3 token.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/mrz1836/vali/internal/config"
	"github.com/mrz1836/vali/internal/metrics"
	valierr "github.com/mrz1836/vali/pkg/errors"
)

const (
	// DefaultBaseURL is the portal's API host.
	DefaultBaseURL = "https://api.tbcpay.ge"

	// DefaultPageURL is the portal's web frontend, used for the Origin and
	// Referer headers the API expects.
	DefaultPageURL = "https://tbcpay.ge"

	// nextStepsPath is the wizard-advance endpoint everything goes through.
	nextStepsPath = "/api/Service/GetNextSteps"

	// defaultTimeout is the default HTTP request timeout.
	defaultTimeout = 15 * time.Second

	// userAgent matches a plain desktop browser. The API refuses obvious
	// non-browser clients.
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"

	// maxResponseBody bounds how much of a reply is read. Step payloads are
	// a few KB; anything larger is not a step payload.
	maxResponseBody = 1 << 20 // 1MB
)

// HTTPError is a non-200 portal reply.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsAuthStatus reports whether err is a portal HTTP rejection that usually
// means the reCAPTCHA token was not accepted.
func IsAuthStatus(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) {
		return false
	}
	return he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusForbidden
}

// ClientOptions contains optional configuration for the portal client.
type ClientOptions struct {
	// BaseURL overrides the default API host.
	BaseURL string

	// PageURL overrides the web frontend URL used in Origin/Referer.
	PageURL string

	// Timeout overrides the per-request timeout.
	Timeout time.Duration

	// Limiter throttles outbound calls. Nil means the default limiter.
	Limiter *RateLimiter

	// Logger receives request/response debug lines. Nil means discard.
	Logger *config.Logger
}

// Client talks to the portal API. Safe for concurrent use.
type Client struct {
	baseURL    string
	pageURL    string
	httpClient *http.Client
	limiter    *RateLimiter
	log        *config.Logger
}

// NewClient creates a new portal client.
func NewClient(opts *ClientOptions) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		pageURL: DefaultPageURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter: DefaultRateLimiter(),
		log:     config.NullLogger(),
	}

	if opts != nil {
		c.applyOptions(opts)
	}

	return c
}

func (c *Client) applyOptions(opts *ClientOptions) {
	if opts.BaseURL != "" {
		c.baseURL = opts.BaseURL
	}
	if opts.PageURL != "" {
		c.pageURL = opts.PageURL
	}
	if opts.Timeout > 0 {
		c.httpClient.Timeout = opts.Timeout
	}
	if opts.Limiter != nil {
		c.limiter = opts.Limiter
	}
	if opts.Logger != nil {
		c.log = opts.Logger
	}
}

// NextSteps performs one GetNextSteps call. Transport failures map to
// TIMEOUT or NETWORK_ERROR, non-200 replies to HTTPError, and undecodable
// bodies to PROTOCOL_ERROR. A decoded envelope is returned as-is even when
// the portal reports success=false; the caller decides what a rejection
// means for its protocol step.
func (c *Client) NextSteps(ctx context.Context, request *NextStepsRequest) (*NextStepsResponse, error) {
	start := time.Now()
	resp, err := c.nextSteps(ctx, request)
	metrics.Global.RecordPortalCall(time.Since(start), err)
	return resp, err
}

func (c *Client) nextSteps(ctx context.Context, request *NextStepsRequest) (*NextStepsResponse, error) {
	if err := c.limiter.Wait(ctx, c.baseURL); err != nil {
		return nil, fmt.Errorf("%w: %w", valierr.ErrRateLimited, err)
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	url := c.baseURL + nextStepsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	c.log.Debug("POST %s (service %d, step %d)", url, request.ServiceID, request.StepOrder)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %w", valierr.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", valierr.ErrNetworkError, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain body to allow connection reuse
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		httpErr := &HTTPError{StatusCode: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests {
			wait := ParseRetryAfter(resp.Header.Get("Retry-After"))
			c.log.Debug("portal throttled, retry after %s", wait)
			return nil, fmt.Errorf("%w: %w", valierr.ErrRateLimited, httpErr)
		}
		c.log.Debug("portal replied %d", resp.StatusCode)
		return nil, httpErr
	}

	var envelope NextStepsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", valierr.ErrProtocol, err)
	}

	c.log.Debug("portal replied success=%v, errors=%d", envelope.Success, len(envelope.Errors))
	return &envelope, nil
}

// setHeaders applies the browser-shaped headers the portal checks.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Clientid", "Web")
	req.Header.Set("Origin", c.pageURL)
	req.Header.Set("Referer", c.pageURL+"/")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Lang", "en-US")
	req.Header.Set("User-Agent", userAgent)
}

// isTimeout reports whether a transport error was a timeout rather than a
// refusal or DNS failure.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
