package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/vali/internal/accounts"
	"github.com/mrz1836/vali/internal/output"
	"github.com/mrz1836/vali/internal/session"
	valierr "github.com/mrz1836/vali/pkg/errors"
)

const (
	// accountsFileName is the accounts book file name under the vali home.
	accountsFileName = "accounts.age"

	// bookSessionName is the unlock session name for the accounts book.
	bookSessionName = "accounts"
)

// accountsCmd is the parent command for accounts book operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage saved accounts",
	Long: `Manage the saved accounts book.

The book maps short labels to service/account pairs so checks can be run
as 'vali check home-water' instead of repeating raw account numbers. It is
stored encrypted; the passphrase is prompted on first use and cached in
the OS keyring for a short time when session caching is enabled.`,
}

// accountsAddCmd adds an entry to the book.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountsAddCmd = &cobra.Command{
	Use:   "add <label> <service> <account>",
	Short: "Save an account under a label",
	Long: `Save an account number under a short label.

The service must be a known service name, alias, or numeric ID. The first
add creates the encrypted book and prompts for a new passphrase.`,
	Example: `  vali accounts add home-water water 1234567
  vali accounts add flat7 electricity 770123456`,
	Args: cobra.ExactArgs(3),
	RunE: runAccountsAdd,
}

// accountsListCmd lists saved entries.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List saved accounts",
	Long:    `List all saved accounts sorted by label.`,
	Example: `  vali accounts list
  vali accounts list -o json`,
	Aliases: []string{"ls"},
	RunE:    runAccountsList,
}

// accountsRemoveCmd removes an entry from the book.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountsRemoveCmd = &cobra.Command{
	Use:     "remove <label>",
	Short:   "Remove a saved account",
	Long:    `Remove the saved account with the given label.`,
	Example: `  vali accounts remove home-water`,
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE:    runAccountsRemove,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	accountsCmd.GroupID = "security"
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsRemoveCmd)
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	cmdCtx := GetCmdContext(cmd)
	label, service, accountID := args[0], args[1], args[2]

	if err := accounts.ValidateLabel(label); err != nil {
		if hint := accounts.SuggestLabel(label); hint != "" {
			return valierr.WithSuggestion(err, fmt.Sprintf("try %q instead", hint))
		}
		return err
	}

	svc, ok := cmdCtx.Registry.Lookup(service)
	if !ok {
		return unknownServiceError(cmdCtx, service)
	}

	store := bookStorage(cmdCtx)

	var book *accounts.Book
	var passphrase []byte
	var err error

	if store.Exists() {
		book, passphrase, err = openBook(cmd, cmdCtx)
	} else {
		outln(cmd.ErrOrStderr(), "Creating a new accounts book.")
		passphrase, err = promptNewPassword()
		book = accounts.NewBook()
	}
	if err != nil {
		return err
	}
	defer accounts.ZeroBytes(passphrase)

	entry := accounts.Account{
		Label:     label,
		Service:   svc.Name,
		AccountID: accountID,
		AddedAt:   time.Now().UTC(),
	}
	if err := book.Add(entry); err != nil {
		return err
	}

	if err := store.Save(book, passphrase); err != nil {
		return fmt.Errorf("saving accounts book: %w", err)
	}

	w := cmd.OutOrStdout()
	if cmdCtx.Fmt.IsJSON() {
		return writeJSON(w, entry)
	}
	out(w, "Added %s\n", entry.String())
	return nil
}

func runAccountsList(cmd *cobra.Command, _ []string) error {
	cmdCtx := GetCmdContext(cmd)

	book, passphrase, err := openBook(cmd, cmdCtx)
	if err != nil {
		return err
	}
	accounts.ZeroBytes(passphrase)

	saved := book.List()
	w := cmd.OutOrStdout()

	if cmdCtx.Fmt.IsJSON() {
		payload := struct {
			Accounts []accounts.Account `json:"accounts"`
		}{Accounts: saved}
		return writeJSON(w, payload)
	}

	if len(saved) == 0 {
		outln(w, "No saved accounts. Add one with 'vali accounts add'.")
		return nil
	}

	table := output.NewTable("Label", "Service", "Account", "Added")
	for _, acct := range saved {
		table.AddRow(acct.Label, acct.Service, acct.AccountID, acct.AddedAt.Format("2006-01-02"))
	}
	return table.Render(w)
}

func runAccountsRemove(cmd *cobra.Command, args []string) error {
	cmdCtx := GetCmdContext(cmd)
	label := args[0]

	book, passphrase, err := openBook(cmd, cmdCtx)
	if err != nil {
		return err
	}
	defer accounts.ZeroBytes(passphrase)

	if err := book.Remove(label); err != nil {
		return err
	}

	if err := bookStorage(cmdCtx).Save(book, passphrase); err != nil {
		return fmt.Errorf("saving accounts book: %w", err)
	}

	w := cmd.OutOrStdout()
	if cmdCtx.Fmt.IsJSON() {
		return writeJSON(w, struct {
			Removed string `json:"removed"`
		}{Removed: label})
	}
	out(w, "Removed %s\n", label)
	return nil
}

// accountsPath returns the accounts book file location.
func accountsPath(cmdCtx *CommandContext) string {
	return filepath.Join(cmdCtx.Cfg.Home, accountsFileName)
}

// bookStorage returns the accounts storage, honoring an injected one.
func bookStorage(cmdCtx *CommandContext) accounts.Storage {
	if cmdCtx.Storage != nil {
		return cmdCtx.Storage
	}
	return accounts.NewFileStore(accountsPath(cmdCtx))
}

// sessionManager returns the unlock session manager, creating it on first
// use. Construction probes the OS keyring, so commands that never unlock
// skip the probe.
func sessionManager(cmdCtx *CommandContext) session.Manager {
	if cmdCtx.SessionMgr == nil {
		cmdCtx.SessionMgr = session.NewManager(filepath.Join(cmdCtx.Cfg.Home, "sessions"), nil)
	}
	return cmdCtx.SessionMgr
}

// sessionTTL returns the configured unlock session lifetime, clamped to
// the allowed range.
func sessionTTL(cmdCtx *CommandContext) time.Duration {
	ttl := cmdCtx.Cfg.SessionTTL()
	if ttl <= 0 {
		return session.DefaultTTL
	}
	if ttl < session.MinTTL {
		return session.MinTTL
	}
	if ttl > session.MaxTTL {
		return session.MaxTTL
	}
	return ttl
}

// openBook loads the accounts book, using a cached unlock session when
// available and prompting for the passphrase otherwise. The returned
// passphrase must be zeroed by the caller.
func openBook(cmd *cobra.Command, cmdCtx *CommandContext) (*accounts.Book, []byte, error) {
	store := bookStorage(cmdCtx)
	if !store.Exists() {
		return nil, nil, valierr.WithSuggestion(valierr.ErrAccountsNotFound,
			"no accounts book yet. Create one with 'vali accounts add'")
	}

	sessions := cmdCtx.Cfg.Security.SessionEnabled

	if sessions {
		mgr := sessionManager(cmdCtx)
		if mgr.Available() {
			if passphrase, _, err := mgr.GetSession(bookSessionName); err == nil {
				book, loadErr := store.Load(passphrase)
				if loadErr == nil {
					return book, passphrase, nil
				}
				// The cached passphrase no longer opens the book.
				accounts.ZeroBytes(passphrase)
				_ = mgr.EndSession(bookSessionName)
			}
		}
	}

	passphrase, err := promptPasswordFn("Enter accounts passphrase: ")
	if err != nil {
		return nil, nil, err
	}

	book, err := store.Load(passphrase)
	if err != nil {
		accounts.ZeroBytes(passphrase)
		return nil, nil, err
	}

	if sessions {
		mgr := sessionManager(cmdCtx)
		if mgr.Available() {
			ttl := sessionTTL(cmdCtx)
			if startErr := mgr.StartSession(bookSessionName, passphrase, ttl); startErr == nil {
				out(cmd.ErrOrStderr(), "Passphrase cached for %s. Run 'vali session lock' to clear it.\n",
					formatDuration(ttl))
			} else if cmdCtx.Log != nil {
				cmdCtx.Log.Debug("session start failed: %v", startErr)
			}
		}
	}

	return book, passphrase, nil
}
