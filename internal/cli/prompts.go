package cli

import (
	"bytes"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/mrz1836/vali/internal/accounts"
	valierr "github.com/mrz1836/vali/pkg/errors"
)

// promptPasswordFn is the passphrase prompt used by unlock flows.
// A package variable so tests can substitute a non-interactive reader.
//
//nolint:gochecknoglobals // Swapped out by tests
var promptPasswordFn = promptPassword

// promptPassword prompts for a passphrase with hidden input. Callers zero
// the returned bytes when done.
func promptPassword(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	outln(os.Stderr) // ReadPassword swallows the trailing newline

	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}

	return passphrase, nil
}

// promptNewPassword prompts for a new accounts book passphrase and asks for
// it a second time to catch typos. Callers zero the returned bytes when done.
func promptNewPassword() ([]byte, error) {
	passphrase, err := promptPasswordFn("Enter new accounts passphrase: ")
	if err != nil {
		return nil, err
	}

	if len(passphrase) < 8 {
		accounts.ZeroBytes(passphrase)
		return nil, valierr.WithSuggestion(
			valierr.ErrInvalidInput,
			"passphrase must be at least 8 characters",
		)
	}

	confirm, err := promptPasswordFn("Confirm passphrase: ")
	if err != nil {
		accounts.ZeroBytes(passphrase)
		return nil, err
	}
	defer accounts.ZeroBytes(confirm)

	if !bytes.Equal(passphrase, confirm) {
		accounts.ZeroBytes(passphrase)
		return nil, valierr.WithSuggestion(
			valierr.ErrInvalidInput,
			"passphrase entries do not match",
		)
	}

	return passphrase, nil
}
