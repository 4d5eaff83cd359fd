package recaptcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mrz1836/vali/internal/browser"
	valierr "github.com/mrz1836/vali/pkg/errors"
)

// fakeSession is a scripted browser session. evalFunc decides what each
// Evaluate call returns; the session records everything it saw.
type fakeSession struct {
	mu        sync.Mutex
	navigated []string
	evaluated []string
	shutdowns int

	evalFunc func(js string, out any) error
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
	return nil
}

func (s *fakeSession) Evaluate(_ context.Context, js string, out any) error {
	s.mu.Lock()
	s.evaluated = append(s.evaluated, js)
	fn := s.evalFunc
	s.mu.Unlock()

	if fn == nil {
		return errors.New("fakeSession: no eval script configured")
	}
	return fn(js, out)
}

func (s *fakeSession) Shutdown(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdowns++
	return nil
}

// countEvals counts recorded Evaluate calls whose script contains marker.
func (s *fakeSession) countEvals(marker string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, js := range s.evaluated {
		if strings.Contains(js, marker) {
			n++
		}
	}
	return n
}

// solveCalls counts grecaptcha executions (as opposed to detection probes).
func (s *fakeSession) solveCalls() int {
	return s.countEvals("{action:")
}

type fakeDriver struct {
	mu        sync.Mutex
	launches  int
	session   *fakeSession
	launchErr error
}

func (d *fakeDriver) Launch(_ context.Context, _ browser.Options) (browser.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.launches++
	if d.launchErr != nil {
		return nil, d.launchErr
	}
	return d.session, nil
}

func (d *fakeDriver) launchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launches
}

// writeString stores a token into the Evaluate output parameter.
func writeString(out any, value string) {
	if p, ok := out.(*string); ok {
		*p = value
	}
}

// tokenMintingSession returns a session whose solves succeed with
// sequentially numbered tokens.
func tokenMintingSession() *fakeSession {
	s := &fakeSession{}
	var minted int
	s.evalFunc = func(js string, out any) error {
		if strings.Contains(js, "{action:") {
			minted++
			writeString(out, fmt.Sprintf("token-%d", minted))
		}
		return nil
	}
	return s
}

// newTestProvider wires a provider to the fake driver with settling and
// timeouts collapsed so tests run instantly.
func newTestProvider(driver *fakeDriver, opts Options) *Provider {
	opts.PageURL = "https://portal.test"
	opts.SettleDelay = -1
	if opts.SolveTimeout == 0 {
		opts.SolveTimeout = time.Second
	}
	return NewProvider(driver, opts)
}

func TestTokenLaunchesBrowserAndNavigates(t *testing.T) {
	session := tokenMintingSession()
	driver := &fakeDriver{session: session}
	p := newTestProvider(driver, Options{})

	token, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	if token != "token-1" {
		t.Errorf("token = %q, want token-1", token)
	}
	if driver.launchCount() != 1 {
		t.Errorf("launches = %d, want 1", driver.launchCount())
	}
	if len(session.navigated) != 1 || session.navigated[0] != "https://portal.test" {
		t.Errorf("navigated = %v, want [https://portal.test]", session.navigated)
	}
	if !strings.Contains(session.evaluated[0], FallbackSiteKey) {
		t.Errorf("solve script does not carry the fallback site key")
	}
}

func TestTokenReusesCachedWithinLifetime(t *testing.T) {
	session := tokenMintingSession()
	driver := &fakeDriver{session: session}
	p := newTestProvider(driver, Options{})

	first, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("first Token() error: %v", err)
	}
	second, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("second Token() error: %v", err)
	}

	if first != second {
		t.Errorf("cached token not reused: %q then %q", first, second)
	}
	if got := session.solveCalls(); got != 1 {
		t.Errorf("solves = %d, want 1", got)
	}
}

func TestTokenMintsAgainAfterExpiry(t *testing.T) {
	session := tokenMintingSession()
	driver := &fakeDriver{session: session}
	p := newTestProvider(driver, Options{})

	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("first Token() error: %v", err)
	}

	// Age the cached token past its lifetime.
	p.mu.Lock()
	p.issuedAt = time.Now().Add(-TokenLifetime)
	p.mu.Unlock()

	token, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("second Token() error: %v", err)
	}
	if token != "token-2" {
		t.Errorf("token = %q, want token-2", token)
	}
	if got := session.solveCalls(); got != 2 {
		t.Errorf("solves = %d, want 2", got)
	}
	if driver.launchCount() != 1 {
		t.Errorf("launches = %d, want 1 (session must be reused)", driver.launchCount())
	}
}

func TestRefreshBypassesFreshCache(t *testing.T) {
	session := tokenMintingSession()
	driver := &fakeDriver{session: session}
	p := newTestProvider(driver, Options{})

	first, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	refreshed, err := p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	if first == refreshed {
		t.Errorf("Refresh returned the cached token %q", first)
	}
	if got := session.solveCalls(); got != 2 {
		t.Errorf("solves = %d, want 2", got)
	}
}

func TestConcurrentTokensShareOneSolve(t *testing.T) {
	session := &fakeSession{}
	session.evalFunc = func(js string, out any) error {
		if strings.Contains(js, "{action:") {
			// Hold the solve open long enough for every caller to pile up.
			time.Sleep(50 * time.Millisecond)
			writeString(out, "shared-token")
		}
		return nil
	}
	driver := &fakeDriver{session: session}
	p := newTestProvider(driver, Options{})

	const callers = 8
	var (
		start  = make(chan struct{})
		wg     sync.WaitGroup
		mu     sync.Mutex
		tokens []string
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			token, err := p.Token(context.Background())
			if err != nil {
				t.Errorf("Token() error: %v", err)
				return
			}
			mu.Lock()
			tokens = append(tokens, token)
			mu.Unlock()
		}()
	}

	close(start)
	wg.Wait()

	if len(tokens) != callers {
		t.Fatalf("got %d tokens, want %d", len(tokens), callers)
	}
	for _, tok := range tokens {
		if tok != "shared-token" {
			t.Errorf("token = %q, want shared-token", tok)
		}
	}
	if got := session.solveCalls(); got != 1 {
		t.Errorf("solves = %d, want exactly 1", got)
	}
	if driver.launchCount() != 1 {
		t.Errorf("launches = %d, want exactly 1", driver.launchCount())
	}
}

func TestEnsureSessionIsIdempotent(t *testing.T) {
	session := tokenMintingSession()
	driver := &fakeDriver{session: session}
	p := newTestProvider(driver, Options{})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := p.EnsureSession(ctx); err != nil {
			t.Fatalf("EnsureSession() #%d error: %v", i+1, err)
		}
	}

	if driver.launchCount() != 1 {
		t.Errorf("launches = %d, want 1", driver.launchCount())
	}
	if len(session.navigated) != 1 {
		t.Errorf("navigations = %d, want 1", len(session.navigated))
	}
}

func TestTokenFailsWhenBrowserCannotStart(t *testing.T) {
	driver := &fakeDriver{launchErr: errors.New("chrome executable not found")}
	p := newTestProvider(driver, Options{})

	_, err := p.Token(context.Background())
	if err == nil {
		t.Fatal("Token() succeeded with no browser")
	}
	if !errors.Is(err, valierr.ErrSessionFailed) {
		t.Errorf("error = %v, want SESSION_ERROR", err)
	}
}

func TestSolveFailureWithFallbackKeyTriggersDetection(t *testing.T) {
	const detectedKey = "6LdNewKeyNewKeyNewKeyNewKeyNewKeyNewKey"

	session := &fakeSession{}
	session.evalFunc = func(js string, out any) error {
		switch {
		case strings.Contains(js, "{action:") && strings.Contains(js, FallbackSiteKey):
			return errors.New("Invalid site key")
		case strings.Contains(js, "{action:") && strings.Contains(js, detectedKey):
			writeString(out, "detected-token")
			return nil
		case strings.Contains(js, "document.scripts"):
			writeString(out, detectedKey)
			return nil
		default:
			return nil
		}
	}
	driver := &fakeDriver{session: session}
	p := newTestProvider(driver, Options{})

	token, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	if token != "detected-token" {
		t.Errorf("token = %q, want detected-token", token)
	}

	p.mu.Lock()
	key := p.siteKey
	p.mu.Unlock()
	if key != detectedKey {
		t.Errorf("siteKey = %q, want detected key", key)
	}
	if got := session.solveCalls(); got != 2 {
		t.Errorf("solves = %d, want 2 (fallback then detected)", got)
	}
}

func TestPinnedSiteKeySkipsDetection(t *testing.T) {
	const pinned = "6LdPinnedPinnedPinnedPinnedPinnedPinned"

	session := &fakeSession{}
	session.evalFunc = func(js string, out any) error {
		if strings.Contains(js, "{action:") {
			return errors.New("Invalid site key")
		}
		return nil
	}
	driver := &fakeDriver{session: session}
	p := newTestProvider(driver, Options{SiteKey: pinned})

	_, err := p.Token(context.Background())
	if err == nil {
		t.Fatal("Token() succeeded with a rejected pinned key")
	}
	if !errors.Is(err, valierr.ErrTokenAcquisition) {
		t.Errorf("error = %v, want TOKEN_ACQUISITION_FAILED", err)
	}
	if got := session.countEvals("document.scripts"); got != 0 {
		t.Errorf("detection probes = %d, want 0 for a pinned key", got)
	}
	if got := session.solveCalls(); got != 1 {
		t.Errorf("solves = %d, want 1", got)
	}
}

func TestEmptyTokenIsAnError(t *testing.T) {
	session := &fakeSession{}
	session.evalFunc = func(js string, out any) error {
		// grecaptcha resolved, but to nothing useful. Detection finds no
		// better key, so the failure surfaces.
		return nil
	}
	driver := &fakeDriver{session: session}
	p := newTestProvider(driver, Options{})

	_, err := p.Token(context.Background())
	if err == nil {
		t.Fatal("Token() succeeded with an empty token")
	}
	if !errors.Is(err, valierr.ErrTokenAcquisition) {
		t.Errorf("error = %v, want TOKEN_ACQUISITION_FAILED", err)
	}
	if !errors.Is(err, ErrEmptyToken) {
		t.Errorf("error = %v, want ErrEmptyToken in the chain", err)
	}
}

func TestCloseShutsSessionDownOnce(t *testing.T) {
	session := tokenMintingSession()
	driver := &fakeDriver{session: session}
	p := newTestProvider(driver, Options{})

	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("Token() error: %v", err)
	}

	ctx := context.Background()
	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := p.Close(ctx); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}

	if session.shutdowns != 1 {
		t.Errorf("shutdowns = %d, want 1", session.shutdowns)
	}
}

func TestCloseWithoutSessionIsNoOp(t *testing.T) {
	driver := &fakeDriver{session: &fakeSession{}}
	p := newTestProvider(driver, Options{})

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if driver.launchCount() != 0 {
		t.Errorf("launches = %d, want 0", driver.launchCount())
	}
}

func TestCloseForgetsTokenAndDetectedKey(t *testing.T) {
	session := tokenMintingSession()
	driver := &fakeDriver{session: session}
	p := newTestProvider(driver, Options{})

	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("Token() error: %v", err)
	}

	p.mu.Lock()
	p.siteKey = "6LdRotatedRotatedRotatedRotatedRotated1"
	p.mu.Unlock()

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" {
		t.Errorf("token survived Close: %q", p.token)
	}
	if p.siteKey != FallbackSiteKey {
		t.Errorf("siteKey = %q, want fallback after Close", p.siteKey)
	}
	if p.session != nil {
		t.Error("session survived Close")
	}
}

func TestTokenAfterCloseStartsFreshSession(t *testing.T) {
	session := tokenMintingSession()
	driver := &fakeDriver{session: session}
	p := newTestProvider(driver, Options{})

	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	token, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() after Close error: %v", err)
	}
	if token == "" {
		t.Error("empty token after relaunch")
	}
	if driver.launchCount() != 2 {
		t.Errorf("launches = %d, want 2", driver.launchCount())
	}
}
