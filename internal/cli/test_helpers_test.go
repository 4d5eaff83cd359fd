package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"

	"github.com/mrz1836/vali/internal/accounts"
	"github.com/mrz1836/vali/internal/config"
	"github.com/mrz1836/vali/internal/output"
)

// newTestCmd builds a command carrying a test context wired for book and
// check flows. Sessions are disabled so unlock goes straight to the
// prompt, and home points at a throwaway directory.
func newTestCmd(t *testing.T, store accounts.Storage, format output.Format) (*cobra.Command, *bytes.Buffer) {
	t.Helper()

	cfg := config.Defaults()
	cfg.Home = t.TempDir()
	cfg.Security.SessionEnabled = false

	var buf bytes.Buffer
	cmdCtx := NewCommandContext(cfg, config.NullLogger(), output.NewFormatter(format, &buf))
	cmdCtx.WithStorage(store)

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(&buf)
	cmd.SetErr(&bytes.Buffer{})
	SetCmdContext(cmd, cmdCtx)
	return cmd, &buf
}

// withMockPrompts replaces the passphrase prompt for testing and restores
// it on cleanup. The stub hands out a fresh copy on every call because
// callers zero the bytes they receive.
func withMockPrompts(t *testing.T, password []byte) {
	t.Helper()
	orig := promptPasswordFn
	t.Cleanup(func() { promptPasswordFn = orig })
	promptPasswordFn = func(_ string) ([]byte, error) {
		cp := make([]byte, len(password))
		copy(cp, password)
		return cp, nil
	}
}

// fakeBookStore is an in-memory accounts.Storage for testing.
type fakeBookStore struct {
	book    *accounts.Book
	exists  bool
	loadErr error
	saveErr error
	saved   *accounts.Book // last book passed to Save
}

func (s *fakeBookStore) Save(book *accounts.Book, _ []byte) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = book
	s.book = book
	s.exists = true
	return nil
}

func (s *fakeBookStore) Load(_ []byte) (*accounts.Book, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.book, nil
}

func (s *fakeBookStore) Exists() bool { return s.exists }
func (s *fakeBookStore) Path() string { return "accounts.age" }

var _ accounts.Storage = (*fakeBookStore)(nil)
