package cli

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/vali/internal/output"
	versionpkg "github.com/mrz1836/vali/internal/version"
)

const (
	devVersion = "dev"

	// GitHub coordinates for release lookups and asset downloads.
	upgradeOwner = "mrz1836"
	upgradeRepo  = "vali"

	// maxArchiveBytes caps how much of a release asset gets written to disk.
	maxArchiveBytes = 200 * 1024 * 1024
	fetchTimeout    = 60 * time.Second
)

var (
	// ErrDevVersionNoForce rejects upgrading a development build unless --force is given.
	ErrDevVersionNoForce = errors.New("upgrade of a development build requires --force")
	// ErrDownloadFailed wraps a failed release asset download.
	ErrDownloadFailed = errors.New("release asset download failed")
	// ErrChecksumMismatch means the downloaded archive does not match the published SHA256.
	ErrChecksumMismatch = errors.New("downloaded archive failed SHA256 verification")
	// ErrChecksumNotFound means the checksums file has no entry for the expected archive.
	ErrChecksumNotFound = errors.New("no checksum entry for archive")
	// ErrBinaryNotFoundInArchive means the release archive held no vali executable.
	ErrBinaryNotFoundInArchive = errors.New("release archive contains no vali binary")
	// ErrHTTPStatus reports a non-OK response from the release endpoint.
	ErrHTTPStatus = errors.New("non-OK HTTP status")
)

// upgradeOptions are the parsed flags of the upgrade command.
type upgradeOptions struct {
	force     bool
	checkOnly bool
	goInstall bool
}

func newUpgradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade vali to the latest version",
		Long: `Upgrade vali to the latest release published on GitHub.

The latest release tag is compared against the running build. When a
newer version exists, the matching release archive is downloaded,
checked against its published SHA256, and swapped in place of the
current executable. When the binary path fails, go install is tried as
a fallback (or first, with --use-go-install).`,
		Example: `  # See whether a newer release exists
  vali upgrade --check

  # Upgrade in place
  vali upgrade

  # Upgrade even from a dev or commit build
  vali upgrade --force

  # Install through the Go toolchain instead
  vali upgrade --use-go-install`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := parseUpgradeFlags(cmd)
			if err != nil {
				return err
			}
			return runUpgrade(cmd, opts)
		},
	}

	cmd.Flags().BoolP("force", "f", false, "Upgrade even from a dev or commit build")
	cmd.Flags().Bool("check", false, "Only check whether a newer release exists")
	cmd.Flags().Bool("use-go-install", false, "Install with go install instead of the release binary")

	return cmd
}

func parseUpgradeFlags(cmd *cobra.Command) (upgradeOptions, error) {
	var opts upgradeOptions
	var err error
	if opts.force, err = cmd.Flags().GetBool("force"); err != nil {
		return opts, err
	}
	if opts.checkOnly, err = cmd.Flags().GetBool("check"); err != nil {
		return opts, err
	}
	opts.goInstall, err = cmd.Flags().GetBool("use-go-install")
	return opts, err
}

func runUpgrade(cmd *cobra.Command, opts upgradeOptions) error {
	current := GetCurrentVersion()

	// A dev or commit-hash build has no release to compare against, so
	// refuse early unless the user forces it or only wants the check.
	untagged := current == devVersion || current == "" || isLikelyCommitHash(current)
	if untagged && !opts.force && !opts.checkOnly {
		output.Warn(fmt.Sprintf("Current version appears to be a development build (%s)", current))
		output.Info("Use --force to upgrade anyway")
		return ErrDevVersionNoForce
	}

	output.Infof("Current version: %s", upgradeFormatVersion(current))
	output.Info("Checking GitHub for the latest release...")

	rel, err := versionpkg.GetLatestRelease(cmd.Context(), upgradeOwner, upgradeRepo)
	if err != nil {
		return fmt.Errorf("checking for updates: %w", err)
	}

	latest := strings.TrimPrefix(rel.TagName, "v")
	output.Infof("Latest version: %s", upgradeFormatVersion(latest))

	newer := versionpkg.IsNewerVersion(current, latest)
	if opts.checkOnly {
		if newer {
			output.Warnf("A newer version is available: %s -> %s", upgradeFormatVersion(current), upgradeFormatVersion(latest))
			output.Info("Run 'vali upgrade' to upgrade")
		} else {
			output.Success("Already on the latest version")
		}
		return nil
	}
	if !newer && !opts.force {
		output.Successf("Already on the latest version (%s)", upgradeFormatVersion(current))
		return nil
	}

	if newer {
		output.Infof("Upgrading from %s to %s...", upgradeFormatVersion(current), upgradeFormatVersion(latest))
	} else {
		output.Infof("Force reinstalling version %s...", upgradeFormatVersion(latest))
	}

	if err := installVersion(opts.goInstall, latest); err != nil {
		return err
	}

	output.Successf("Successfully upgraded to version %s", upgradeFormatVersion(latest))
	return nil
}

// installVersion runs the preferred install method and falls back to the
// other one when it fails.
func installVersion(preferGoInstall bool, version string) error {
	if preferGoInstall {
		if err := installViaGoInstall(version); err != nil {
			output.Warn("go install failed, trying the binary download instead...")
			if binErr := installViaBinary(version); binErr != nil {
				return fmt.Errorf("go install and binary download both failed: %w", binErr)
			}
		}
		return nil
	}
	if err := installViaBinary(version); err != nil {
		output.Warn("Binary download failed, trying go install instead...")
		if goErr := installViaGoInstall(version); goErr != nil {
			return fmt.Errorf("binary download and go install both failed: %w", goErr)
		}
	}
	return nil
}

// upgradeFormatVersion normalizes a version for display, with a leading "v".
func upgradeFormatVersion(v string) string {
	switch {
	case v == devVersion || v == "":
		return devVersion
	case strings.HasPrefix(v, "v"):
		return v
	default:
		return "v" + v
	}
}

// isLikelyCommitHash reports whether a version string looks like a git
// commit hash rather than a release tag: 7 to 40 hex characters with at
// least one letter, ignoring a -dirty suffix.
func isLikelyCommitHash(v string) bool {
	v = strings.TrimSuffix(v, "-dirty")
	if len(v) < 7 || len(v) > 40 {
		return false
	}

	letters := false
	for _, c := range v {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
		if c > '9' {
			letters = true
		}
	}
	return letters
}

// GetCurrentVersion returns the version baked into this build, or "dev"
// when none was set.
func GetCurrentVersion() string {
	if buildInfo.Version == "" {
		return devVersion
	}
	return buildInfo.Version
}

func installViaGoInstall(version string) error {
	pkg := fmt.Sprintf("github.com/mrz1836/vali/cmd/vali@v%s", version)
	output.Infof("Running: go install %s", pkg)

	run := exec.CommandContext(context.Background(), "go", "install", pkg) //nolint:gosec // Package path is built from a trusted version string
	run.Stdout = os.Stdout
	run.Stderr = os.Stderr
	if err := run.Run(); err != nil {
		return fmt.Errorf("running go install: %w", err)
	}
	return nil
}

// installViaBinary downloads the release archive for this platform,
// verifies it, and replaces the running executable.
func installViaBinary(version string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating current binary: %w", err)
	}
	if self, err = filepath.EvalSymlinks(self); err != nil {
		return fmt.Errorf("resolving binary symlinks: %w", err)
	}

	workDir, err := os.MkdirTemp("", "vali-upgrade-*")
	if err != nil {
		return fmt.Errorf("creating work directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	archiveName := fmt.Sprintf("%s_%s_%s_%s.tar.gz", upgradeRepo, version, runtime.GOOS, runtime.GOARCH)
	archivePath := filepath.Join(workDir, archiveName)
	if err = fetchAndVerifyArchive(version, archiveName, archivePath); err != nil {
		return err
	}

	extracted, err := extractBinaryFromArchive(archivePath, workDir)
	if err != nil {
		return fmt.Errorf("extracting binary: %w", err)
	}

	return swapBinary(self, extracted)
}

// fetchAndVerifyArchive downloads the checksums file and the archive for
// one release, then checks the archive against its published digest.
func fetchAndVerifyArchive(version, archiveName, archivePath string) error {
	base := fmt.Sprintf("https://github.com/%s/%s/releases/download/v%s", upgradeOwner, upgradeRepo, version)

	output.Info("Fetching release checksums...")
	checksums, err := fetchText(base + fmt.Sprintf("/%s_%s_checksums.txt", upgradeRepo, version))
	if err != nil {
		return fmt.Errorf("downloading checksums: %w", err)
	}

	assetURL := base + "/" + archiveName
	output.Infof("Downloading release archive: %s", assetURL)
	if err := fetchFile(assetURL, archivePath); err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	output.Info("Checking the archive against its published SHA256...")
	return verifyChecksum(archivePath, archiveName, checksums)
}

// swapBinary moves the old executable aside, copies the new one into
// place, and restores the old one when the copy fails.
func swapBinary(target, replacement string) error {
	saved := target + ".backup"
	if err := os.Rename(target, saved); err != nil {
		return fmt.Errorf("parking current binary: %w", err)
	}

	if err := copyFile(replacement, target, 0o755); err != nil {
		_ = os.Rename(saved, target)
		return fmt.Errorf("replacing binary: %w", err)
	}

	_ = os.Remove(saved)
	output.Info("Replaced the binary in place")
	return nil
}

// httpGet issues a GET with the download timeout and fails on any
// non-OK status. The caller owns the response body.
func httpGet(url string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: fetchTimeout}
	res, err := client.Do(req) //nolint:gosec // URL points at the GitHub releases endpoint
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		_ = res.Body.Close()
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, res.StatusCode)
	}
	return res, nil
}

func fetchText(url string) (string, error) {
	res, err := httpGet(url)
	if err != nil {
		return "", err
	}
	defer func() { _ = res.Body.Close() }()

	// Checksums files are tiny, a 1MB cap is generous.
	body, err := io.ReadAll(io.LimitReader(res.Body, 1024*1024))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func fetchFile(url, dest string) error {
	res, err := httpGet(url)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	out, err := os.Create(dest) //nolint:gosec // Destination lives in our temp directory
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, io.LimitReader(res.Body, maxArchiveBytes))
	return err
}

// verifyChecksum digests the file at path and compares it with the entry
// for fileName in the checksums text.
func verifyChecksum(path, fileName, checksums string) error {
	actual, err := fileSHA256(path)
	if err != nil {
		return err
	}

	want := findChecksumEntry(fileName, checksums)
	if want == "" {
		return fmt.Errorf("%w (%s)", ErrChecksumNotFound, fileName)
	}
	if want != actual {
		return fmt.Errorf("%w: want %s, got %s", ErrChecksumMismatch, want, actual)
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // Path lives in our temp directory
	if err != nil {
		return "", fmt.Errorf("opening file for checksum: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digesting file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// findChecksumEntry returns the digest column for fileName in a
// "digest  name" checksums listing, or "" when absent.
func findChecksumEntry(fileName, checksums string) string {
	sc := bufio.NewScanner(strings.NewReader(checksums))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 2 && fields[1] == fileName {
			return fields[0]
		}
	}
	return ""
}

// extractBinaryFromArchive walks a tar.gz archive and writes its vali
// entry into destDir, returning the extracted path.
func extractBinaryFromArchive(archivePath, destDir string) (string, error) {
	f, err := os.Open(archivePath) //nolint:gosec // Path lives in our temp directory
	if err != nil {
		return "", fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("reading archive compression: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return "", ErrBinaryNotFoundInArchive
		}
		if err != nil {
			return "", fmt.Errorf("reading tar entry: %w", err)
		}
		// Release archives may nest the binary under a versioned directory.
		if hdr.Typeflag == tar.TypeReg && filepath.Base(hdr.Name) == "vali" {
			return writeExecutable(tr, destDir)
		}
	}
}

func writeExecutable(r io.Reader, destDir string) (string, error) {
	dest := filepath.Join(destDir, "vali")
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755) //nolint:gosec // The binary must stay executable
	if err != nil {
		return "", fmt.Errorf("creating binary file: %w", err)
	}

	_, copyErr := io.Copy(out, io.LimitReader(r, maxArchiveBytes))
	closeErr := out.Close()
	if copyErr != nil {
		return "", fmt.Errorf("writing binary: %w", copyErr)
	}
	if closeErr != nil {
		return "", fmt.Errorf("closing binary file: %w", closeErr)
	}
	return dest, nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src) //nolint:gosec // Source lives in our temp directory
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm) //nolint:gosec // Permissions chosen by the caller
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, in)
	return err
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	cmd := newUpgradeCmd()
	cmd.GroupID = "config"
	rootCmd.AddCommand(cmd)
}
