package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/vali/internal/session"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage accounts book unlock sessions",
	Long: `Manage accounts book unlock sessions.

When enabled, vali caches the accounts book passphrase for a configurable
time (default: 15 minutes) so batch checks don't prompt on every command.

The cached passphrase is protected by your operating system's keychain:
Keychain on macOS, Secret Service (GNOME Keyring, KWallet) on Linux, and
Credential Manager on Windows. Without a working keychain, sessions stay
disabled and every command prompts for the passphrase.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionStatusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show active sessions and their time left",
	Long:    `Show all active unlock sessions and how long each has until expiry.`,
	Example: `  vali session status`,
	RunE:    runSessionStatus,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionLockCmd = &cobra.Command{
	Use:   "lock",
	Short: "End every active session at once",
	Long: `End all active unlock sessions immediately.

Use this when stepping away from your computer so the accounts book
passphrase is not cached.`,
	Example: `  vali session lock`,
	RunE:    runSessionLock,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	sessionCmd.GroupID = "security"
	sessionCmd.AddCommand(sessionStatusCmd, sessionLockCmd)
	rootCmd.AddCommand(sessionCmd)
}

const keyringMissingNote = "Session caching is not available (keyring unavailable)"

func runSessionStatus(cmd *cobra.Command, _ []string) error {
	cmdCtx := GetCmdContext(cmd)
	mgr := sessionManager(cmdCtx)

	if !mgr.Available() {
		if cmdCtx.Fmt.IsJSON() {
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"available": false,
				"message":   keyringMissingNote,
			})
		}
		outln(cmd.OutOrStdout(), keyringMissingNote)
		return nil
	}

	sessions, err := mgr.ListSessions()
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	if cmdCtx.Fmt.IsJSON() {
		writeSessionStatusJSON(cmd, sessions)
	} else {
		writeSessionStatusText(cmd, sessions)
	}
	return nil
}

func runSessionLock(cmd *cobra.Command, _ []string) error {
	cmdCtx := GetCmdContext(cmd)
	mgr := sessionManager(cmdCtx)

	if !mgr.Available() {
		if cmdCtx.Fmt.IsJSON() {
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"available": false,
				"ended":     0,
				"message":   keyringMissingNote,
			})
		}
		outln(cmd.OutOrStdout(), keyringMissingNote)
		return nil
	}

	ended := mgr.EndAllSessions()
	if cmdCtx.Fmt.IsJSON() {
		return writeJSON(cmd.OutOrStdout(), map[string]int{"ended": ended})
	}
	out(cmd.OutOrStdout(), "Ended %d session(s)\n", ended)
	return nil
}

func writeSessionStatusJSON(cmd *cobra.Command, sessions []*session.Session) {
	type statusEntry struct {
		Name      string `json:"name"`
		CreatedAt string `json:"created_at"`
		ExpiresIn string `json:"expires_in"`
	}

	items := make([]statusEntry, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, statusEntry{
			Name:      s.Name,
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
			ExpiresIn: formatDuration(s.TTL()),
		})
	}

	_ = writeJSON(cmd.OutOrStdout(), struct {
		Available bool          `json:"available"`
		Sessions  []statusEntry `json:"sessions"`
	}{Available: true, Sessions: items})
}

func writeSessionStatusText(cmd *cobra.Command, sessions []*session.Session) {
	w := cmd.OutOrStdout()
	if len(sessions) == 0 {
		outln(w, "No active sessions")
		return
	}

	outln(w, "Active Sessions:")
	for _, s := range sessions {
		out(w, "  %s: expires in %s\n", s.Name, formatDuration(s.TTL()))
	}
}

// formatDuration renders a TTL compactly: "45s" under a minute, "15m"
// on whole minutes, "1m30s" otherwise.
func formatDuration(d time.Duration) string {
	secs := int(d.Seconds())
	mins, rem := secs/60, secs%60
	switch {
	case mins == 0:
		return fmt.Sprintf("%ds", rem)
	case rem == 0:
		return fmt.Sprintf("%dm", mins)
	default:
		return fmt.Sprintf("%dm%ds", mins, rem)
	}
}
