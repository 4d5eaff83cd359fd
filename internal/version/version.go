// Package version talks to the GitHub releases API and compares release
// tags, backing the upgrade command and the background update check.
package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.github.com"
	DefaultTimeout = 30 * time.Second

	// Response bodies are capped so a misbehaving endpoint cannot balloon
	// memory: 1KB is plenty for an error message, 64KB for release JSON.
	maxErrorBodySize    = 1024
	maxResponseBodySize = 64 * 1024
)

var (
	ErrGitHubAPIFailed  = errors.New("GitHub API call failed")
	ErrInvalidOwner     = errors.New("owner is empty")
	ErrInvalidRepo      = errors.New("repo is empty")
	ErrInvalidOwnerRepo = errors.New("owner or repo has invalid characters")
)

// GitHub restricts owner and repo names to alphanumerics, hyphens,
// underscores, and dots.
var validOwnerRepoPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// GitHubRelease is the slice of the releases API payload we care about.
type GitHubRelease struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	Body        string    `json:"body"`
}

// Info is the outcome of an update check.
type Info struct {
	Current string
	Latest  string
	IsNewer bool
}

// Client queries the GitHub API. Zero value is not usable; construct one
// with NewClient.
type Client struct {
	base   string
	client *http.Client
	agent  string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host, typically an
// httptest server.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.base = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient swaps out the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithTimeout overrides the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = timeout
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.agent = userAgent
	}
}

// NewClient returns a Client with defaults applied, then options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		base:   DefaultBaseURL,
		agent:  fmt.Sprintf("vali/dev (%s/%s)", runtime.GOOS, runtime.GOARCH),
		client: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultClient = NewClient() //nolint:gochecknoglobals // shared convenience client

// GetLatestRelease fetches the latest release through the default client.
func GetLatestRelease(ctx context.Context, owner, repo string) (*GitHubRelease, error) {
	return defaultClient.GetLatestRelease(ctx, owner, repo)
}

// CheckForUpdate runs an update check through the default client.
func CheckForUpdate(ctx context.Context, owner, repo, current string) (*Info, error) {
	return defaultClient.CheckForUpdate(ctx, owner, repo, current)
}

func validateOwnerRepo(owner, repo string) error {
	switch {
	case owner == "":
		return ErrInvalidOwner
	case repo == "":
		return ErrInvalidRepo
	case !validOwnerRepoPattern.MatchString(owner), !validOwnerRepoPattern.MatchString(repo):
		return ErrInvalidOwnerRepo
	}
	return nil
}

// GetLatestRelease fetches owner/repo's latest release.
func (c *Client) GetLatestRelease(ctx context.Context, owner, repo string) (*GitHubRelease, error) {
	if err := validateOwnerRepo(owner, repo); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.base, owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", c.agent)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	res, err := c.client.Do(req) //nolint:gosec // URL targets the GitHub releases API
	if err != nil {
		return nil, fmt.Errorf("contacting GitHub: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	return decodeRelease(res)
}

func decodeRelease(res *http.Response) (*GitHubRelease, error) {
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodySize))
		return nil, fmt.Errorf("%w: status %d: %s", ErrGitHubAPIFailed, res.StatusCode, string(body))
	}

	release := new(GitHubRelease)
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBodySize)).Decode(release); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return release, nil
}

// CheckForUpdate fetches the latest release and compares it with current.
func (c *Client) CheckForUpdate(ctx context.Context, owner, repo, current string) (*Info, error) {
	release, err := c.GetLatestRelease(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	latest := NormalizeVersion(release.TagName)
	return &Info{
		Current: current,
		Latest:  latest,
		IsNewer: IsNewerVersion(current, latest),
	}, nil
}

// CompareVersions orders two version strings: 1 when the first is newer,
// -1 when the second is, 0 when equal. Development builds (empty, "dev",
// or a commit hash) sort below every tagged release and equal to each
// other.
func CompareVersions(a, b string) int {
	a, b = strings.TrimPrefix(a, "v"), strings.TrimPrefix(b, "v")

	devA := a == "dev" || a == "" || isCommitHash(a)
	devB := b == "dev" || b == "" || isCommitHash(b)
	switch {
	case devA && devB:
		return 0
	case devA:
		return -1
	case devB:
		return 1
	}

	partsA, partsB := parseVersion(a), parseVersion(b)
	for i := range 3 {
		if diff := partAt(partsA, i) - partAt(partsB, i); diff != 0 {
			if diff > 0 {
				return 1
			}
			return -1
		}
	}
	return 0
}

// partAt treats missing components as zero, so "1.4" compares as "1.4.0".
func partAt(parts []int, i int) int {
	if i < len(parts) {
		return parts[i]
	}
	return 0
}

// parseVersion extracts the numeric dotted components of a version,
// ignoring pre-release and build metadata.
func parseVersion(version string) []int {
	pieces := strings.Split(stripMeta(version), ".")
	nums := make([]int, 0, len(pieces))
	for _, p := range pieces {
		if n, err := strconv.Atoi(p); err == nil {
			nums = append(nums, n)
		}
	}
	return nums
}

// stripMeta cuts everything from the first "-" or "+" on, dropping
// suffixes like -rc1, -dirty, and +build.
func stripMeta(version string) string {
	idx := strings.IndexAny(version, "-+")
	if idx == -1 {
		return version
	}
	return version[:idx]
}

// IsNewerVersion reports whether latest is newer than current.
func IsNewerVersion(current, latest string) bool {
	return CompareVersions(latest, current) > 0
}

// NormalizeVersion trims whitespace, "v" prefixes, and metadata suffixes
// until the version is in its bare dotted form.
func NormalizeVersion(version string) string {
	version = stripMeta(version)
	for {
		next := strings.TrimLeft(strings.TrimSpace(version), "v")
		if next == version {
			return version
		}
		version = next
	}
}

// isCommitHash reports whether s looks like a git commit hash: 7 to 40
// hex characters with at least one letter, so numeric versions like
// "2024010100" do not match. A -dirty suffix is ignored.
func isCommitHash(s string) bool {
	h := strings.TrimSuffix(s, "-dirty")
	if n := len(h); n < 7 || n > 40 {
		return false
	}

	sawLetter := false
	for _, c := range h {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
			sawLetter = true
		default:
			return false
		}
	}
	return sawLetter
}
