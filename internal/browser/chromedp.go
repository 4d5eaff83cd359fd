package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// ChromeDriver launches real Chrome instances over the DevTools protocol.
type ChromeDriver struct{}

// NewChromeDriver returns a Driver backed by a local Chrome or Chromium
// binary.
func NewChromeDriver() *ChromeDriver {
	return &ChromeDriver{}
}

// Compile-time interface checks.
var (
	_ Driver  = (*ChromeDriver)(nil)
	_ Session = (*chromeSession)(nil)
)

// Launch starts a Chrome process with one blank tab. The returned Session
// outlives the Launch context and stays up until Shutdown; ctx bounds only
// the startup handshake.
func (d *ChromeDriver) Launch(ctx context.Context, opts Options) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
	)
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	var ctxOpts []chromedp.ContextOption
	if opts.Logf != nil {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(opts.Logf), chromedp.WithErrorf(opts.Logf))
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	s := &chromeSession{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}

	// chromedp spawns the process on the first Run; do it now so a missing
	// binary fails Launch instead of the first Navigate.
	if err := s.run(ctx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}

	return s, nil
}

// chromeSession wraps a chromedp browser context. All DevTools traffic for
// the session funnels through run.
type chromeSession struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// Navigate loads the given URL and waits for the page load event.
func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// Evaluate runs JavaScript in the page, awaiting promises, and unmarshals
// the result into out.
func (s *chromeSession) Evaluate(ctx context.Context, js string, out any) error {
	return s.run(ctx, chromedp.Evaluate(js, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

// Shutdown closes the browser process and releases the allocator. Later
// calls are no-ops.
func (s *chromeSession) Shutdown(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// Graceful close so Chrome flushes its profile instead of being killed.
	err := chromedp.Cancel(s.browserCtx)
	s.allocCancel()
	return err
}

// run executes DevTools actions against the session, honoring the caller's
// cancellation and deadline while keeping the browser itself alive.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	runCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if d, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		runCtx, dcancel = context.WithDeadline(runCtx, d)
		defer dcancel()
	}

	return chromedp.Run(runCtx, actions...)
}
