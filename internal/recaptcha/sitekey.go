package recaptcha

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/mrz1836/vali/internal/browser"
)

// FallbackSiteKey is the portal's published reCAPTCHA v3 site key. Solving
// starts here and switches to a detected key only when this one stops
// working.
const FallbackSiteKey = "6LeYsrYZAAAAAMhY05m7_AIPPftm2v0AgNl2nloP"

// ErrSiteKeyNotFound is returned when no plausible site key appears in the
// page runtime or its HTML.
var ErrSiteKeyNotFound = errors.New("recaptcha site key not found on page")

// siteKeyProbeScript asks the live page for its key: the grecaptcha
// enterprise object exposes it directly, and the loader script embeds it.
const siteKeyProbeScript = `
(() => {
	if (window.grecaptcha && window.grecaptcha.enterprise) {
		return window.grecaptcha.enterprise.sitekey;
	}
	const scripts = Array.from(document.scripts);
	for (const script of scripts) {
		const content = script.innerHTML || script.src;
		const match = content.match(/6[A-Za-z0-9_-]{38,}/);
		if (match) return match[0];
	}
	return null;
})()
`

// outerHTMLScript captures the rendered page for pattern matching.
const outerHTMLScript = `document.documentElement.outerHTML`

// siteKeyPatterns are tried in order against the page HTML. The generic
// key-shaped pattern goes first; the rest anchor on how portals usually
// embed the key.
//
//nolint:gochecknoglobals // Compiled once, read-only
var siteKeyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`6[A-Za-z0-9_-]{38,}`),
	regexp.MustCompile(`(?i)grecaptcha\.execute\(['"]([^"']+)['"]`),
	regexp.MustCompile(`(?i)data-sitekey=['"]([^"']+)['"]`),
	regexp.MustCompile(`(?i)sitekey['"]?\s*:\s*['"]([^"']+)['"]`),
	regexp.MustCompile(`(?i)render['"]?\s*:\s*['"]([^"']+)['"]`),
}

// detectSiteKey extracts the reCAPTCHA site key from the loaded page,
// trying the page runtime first and falling back to HTML scraping.
func (p *Provider) detectSiteKey(ctx context.Context, sess browser.Session) (string, error) {
	var probed string
	if err := sess.Evaluate(ctx, siteKeyProbeScript, &probed); err != nil {
		p.log.Debug("runtime site key probe failed: %v", err)
	} else if validSiteKey(probed) {
		p.log.Debug("detected site key from page runtime: %s", abbreviateKey(probed))
		return probed, nil
	}

	var html string
	if err := sess.Evaluate(ctx, outerHTMLScript, &html); err != nil {
		return "", err
	}

	if key, ok := detectSiteKeyInHTML(html); ok {
		p.log.Debug("detected site key from page HTML: %s", abbreviateKey(key))
		return key, nil
	}

	return "", ErrSiteKeyNotFound
}

// detectSiteKeyInHTML scans page HTML for a reCAPTCHA site key.
func detectSiteKeyInHTML(html string) (string, bool) {
	for _, re := range siteKeyPatterns {
		m := re.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		key := m[0]
		if len(m) > 1 {
			key = m[1]
		}
		if validSiteKey(key) {
			return key, true
		}
	}
	return "", false
}

// validSiteKey filters out regex matches that cannot be real keys.
// reCAPTCHA site keys start with 6 and run about 40 characters.
func validSiteKey(key string) bool {
	return len(key) > 30 && strings.HasPrefix(key, "6")
}
