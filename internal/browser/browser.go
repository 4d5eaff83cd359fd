// Package browser abstracts the Chrome instance used to mint reCAPTCHA
// tokens. The rest of the codebase talks to a Session and never to the
// DevTools protocol directly, so tests can substitute a scripted
// implementation.
package browser

import (
	"context"
	"errors"
)

// ErrSessionClosed is returned when operating on a session after Shutdown.
var ErrSessionClosed = errors.New("browser session closed")

// Options control how a browser instance is launched.
type Options struct {
	// Headless hides the browser window. Checks run fine headless; turning
	// it off helps when debugging site key detection.
	Headless bool

	// ChromePath overrides the Chrome/Chromium binary discovered on PATH.
	ChromePath string

	// Logf receives DevTools protocol chatter. Nil means discard.
	Logf func(format string, args ...any)
}

// Session is a live browser with one open page.
type Session interface {
	// Navigate loads the given URL and waits for the page load event.
	Navigate(ctx context.Context, url string) error

	// Evaluate runs a JavaScript expression in the page and unmarshals the
	// result into out. Promises are awaited, so an async IIFE resolves to
	// its settled value. A nil out discards the result.
	Evaluate(ctx context.Context, js string, out any) error

	// Shutdown closes the page and the browser process. Safe to call more
	// than once.
	Shutdown(ctx context.Context) error
}

// Driver launches browser sessions.
type Driver interface {
	Launch(ctx context.Context, opts Options) (Session, error)
}
