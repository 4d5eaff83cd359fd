package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/mrz1836/go-sanitize"
)

// Environment variable names.
const (
	EnvHome         = "VALI_HOME"
	EnvAPIURL       = "VALI_API_URL"
	EnvPageURL      = "VALI_PAGE_URL"
	EnvSiteKey      = "VALI_SITE_KEY" // #nosec G101 -- false positive, this is a const name not a credential
	EnvHeadless     = "VALI_HEADLESS"
	EnvOutputFormat = "VALI_OUTPUT_FORMAT"
	EnvVerbose      = "VALI_VERBOSE"
	EnvLogLevel     = "VALI_LOG_LEVEL"
	EnvNoColor      = "NO_COLOR"
	EnvSessionTTL   = "VALI_SESSION_TTL"
)

// ApplyEnvironment overlays environment variables onto cfg. Empty and unset
// variables leave the config untouched, except NO_COLOR which counts on
// presence alone.
func ApplyEnvironment(cfg *Config) {
	overrides := []struct {
		name  string
		apply func(v string)
	}{
		{EnvHome, func(v string) { cfg.Home = v }},
		{EnvAPIURL, func(v string) { cfg.Portal.APIURL = SanitizeURL(v) }},
		{EnvPageURL, func(v string) { cfg.Portal.PageURL = SanitizeURL(v) }},
		{EnvSiteKey, func(v string) { cfg.Recaptcha.SiteKey = strings.TrimSpace(v) }},
		{EnvHeadless, func(v string) { cfg.Browser.Headless = parseBool(v) }},
		{EnvOutputFormat, func(v string) { cfg.Output.DefaultFormat = strings.ToLower(v) }},
		{EnvVerbose, func(v string) { cfg.Output.Verbose = parseBool(v) }},
		{EnvLogLevel, func(v string) { cfg.Logging.Level = strings.ToLower(v) }},
		{EnvSessionTTL, func(v string) {
			if ttl, err := strconv.Atoi(v); err == nil && ttl > 0 {
				cfg.Security.SessionTTLMinutes = ttl
			}
		}},
	}

	for _, o := range overrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(v)
		}
	}

	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// parseBool reads the loose boolean spellings people put in environment
// variables. Anything not recognized as true is false.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "yes", "on":
		return true
	}
	return false
}

// SanitizeURL trims whitespace and strips characters that cannot appear in
// a URL. Portal URLs pasted from a browser tend to pick up trailing junk.
func SanitizeURL(raw string) string {
	return sanitize.URL(strings.TrimSpace(raw))
}

// ErrInsecurePortalURL indicates a portal URL using plain http on a remote host.
var ErrInsecurePortalURL = errors.New("portal URL must use https")

// ErrInvalidPortalURL indicates a malformed or non-http(s) portal URL.
var ErrInvalidPortalURL = errors.New("invalid portal URL")

// ValidatePortalURL checks that a portal URL override is https (plain http is
// allowed only for localhost, for test doubles). Empty is valid and means
// "use the default".
func ValidatePortalURL(raw string) error {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPortalURL, err)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrInsecurePortalURL, raw)
	default:
		return fmt.Errorf("%w: scheme %q", ErrInvalidPortalURL, u.Scheme)
	}
}
