package accounts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	valierr "github.com/mrz1836/vali/pkg/errors"
)

func TestNewBook(t *testing.T) {
	t.Parallel()

	book := NewBook()
	assert.Equal(t, 1, book.Version)
	assert.NotNil(t, book.Accounts)
	assert.Equal(t, 0, book.Len())
}

func TestValidateLabel(t *testing.T) {
	t.Parallel()

	// Valid 64-char label
	longValid := "a234567890123456789012345678901234567890123456789012345678901234"
	// Invalid 65-char label
	longInvalid := longValid + "5"

	tests := []struct {
		label   string
		wantErr bool
	}{
		{"home-water", false},
		{"home_electricity", false},
		{"Flat7", false},
		{"a", false},
		{longValid, false},

		{"", true},
		{longInvalid, true},
		{"with space", true},
		{"with.dot", true},
		{"with@symbol", true},
		{"../escape", true},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			err := ValidateLabel(tc.label)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSuggestLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already valid", "home-water", "home-water"},
		{"spaces removed", "home water", "homewater"},
		{"special characters removed", "home@water!", "homewater"},
		{"unicode removed", "homeწყაli", "homeli"},
		{"only special characters", "!@#$%", ""},
		{"empty", "", ""},
		{
			"truncated to 64",
			"a123456789b123456789c123456789d123456789e123456789f123456789wxyz_extra",
			"a123456789b123456789c123456789d123456789e123456789f123456789wxyz",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			suggested := SuggestLabel(tc.input)
			assert.Equal(t, tc.expected, suggested)

			if suggested != "" {
				assert.NoError(t, ValidateLabel(suggested))
			}
		})
	}
}

func TestBook_Add(t *testing.T) {
	t.Parallel()

	t.Run("adds entry and stamps AddedAt", func(t *testing.T) {
		t.Parallel()
		book := NewBook()

		err := book.Add(Account{Label: "home-water", Service: "water", AccountID: "730512"})
		require.NoError(t, err)
		require.Equal(t, 1, book.Len())

		acct, err := book.Resolve("home-water")
		require.NoError(t, err)
		assert.Equal(t, "water", acct.Service)
		assert.Equal(t, "730512", acct.AccountID)
		assert.False(t, acct.AddedAt.IsZero())
	})

	t.Run("preserves explicit AddedAt", func(t *testing.T) {
		t.Parallel()
		book := NewBook()
		added := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

		err := book.Add(Account{Label: "home-water", Service: "water", AccountID: "730512", AddedAt: added})
		require.NoError(t, err)

		acct, err := book.Resolve("home-water")
		require.NoError(t, err)
		assert.Equal(t, added, acct.AddedAt)
	})

	t.Run("duplicate label rejected case-insensitively", func(t *testing.T) {
		t.Parallel()
		book := NewBook()

		require.NoError(t, book.Add(Account{Label: "home-water", Service: "water", AccountID: "730512"}))

		err := book.Add(Account{Label: "Home-Water", Service: "water", AccountID: "999999"})
		assert.ErrorIs(t, err, valierr.ErrAccountExists)
		assert.Equal(t, 1, book.Len())
	})

	t.Run("invalid label", func(t *testing.T) {
		t.Parallel()
		book := NewBook()

		err := book.Add(Account{Label: "home water", Service: "water", AccountID: "730512"})
		assert.ErrorIs(t, err, valierr.ErrInvalidInput)
	})

	t.Run("invalid account number", func(t *testing.T) {
		t.Parallel()
		book := NewBook()

		err := book.Add(Account{Label: "home-water", Service: "water", AccountID: "7305 12"})
		assert.ErrorIs(t, err, valierr.ErrInvalidInput)
	})

	t.Run("empty service", func(t *testing.T) {
		t.Parallel()
		book := NewBook()

		err := book.Add(Account{Label: "home-water", Service: "  ", AccountID: "730512"})
		assert.ErrorIs(t, err, valierr.ErrInvalidInput)
	})
}

func TestBook_Remove(t *testing.T) {
	t.Parallel()

	t.Run("removes entry", func(t *testing.T) {
		t.Parallel()
		book := NewBook()
		require.NoError(t, book.Add(Account{Label: "home-water", Service: "water", AccountID: "730512"}))
		require.NoError(t, book.Add(Account{Label: "home-power", Service: "electricity", AccountID: "445566"}))

		err := book.Remove("home-water")
		require.NoError(t, err)
		assert.Equal(t, 1, book.Len())

		_, err = book.Resolve("home-water")
		assert.ErrorIs(t, err, valierr.ErrAccountNotFound)

		_, err = book.Resolve("home-power")
		assert.NoError(t, err)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		book := NewBook()

		err := book.Remove("nonexistent")
		assert.ErrorIs(t, err, valierr.ErrAccountNotFound)
	})
}

func TestBook_Resolve(t *testing.T) {
	t.Parallel()

	book := NewBook()
	require.NoError(t, book.Add(Account{Label: "home-water", Service: "water", AccountID: "730512"}))

	t.Run("exact match", func(t *testing.T) {
		t.Parallel()
		acct, err := book.Resolve("home-water")
		require.NoError(t, err)
		assert.Equal(t, "home-water", acct.Label)
	})

	t.Run("case-insensitive match", func(t *testing.T) {
		t.Parallel()
		acct, err := book.Resolve("HOME-WATER")
		require.NoError(t, err)
		assert.Equal(t, "home-water", acct.Label)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		_, err := book.Resolve("office-water")
		assert.ErrorIs(t, err, valierr.ErrAccountNotFound)
	})
}

func TestBook_List(t *testing.T) {
	t.Parallel()

	book := NewBook()
	require.NoError(t, book.Add(Account{Label: "zz-office", Service: "water", AccountID: "1"}))
	require.NoError(t, book.Add(Account{Label: "aa-home", Service: "electricity", AccountID: "2"}))
	require.NoError(t, book.Add(Account{Label: "mm-garage", Service: "water", AccountID: "3"}))

	list := book.List()
	require.Len(t, list, 3)
	assert.Equal(t, "aa-home", list[0].Label)
	assert.Equal(t, "mm-garage", list[1].Label)
	assert.Equal(t, "zz-office", list[2].Label)

	// Mutating the returned slice must not affect the book
	list[0].Label = "mutated"
	acct, err := book.Resolve("aa-home")
	require.NoError(t, err)
	assert.Equal(t, "aa-home", acct.Label)
}

func TestAccount_String(t *testing.T) {
	t.Parallel()

	acct := Account{Label: "home-water", Service: "water", AccountID: "730512"}
	assert.Equal(t, "home-water (water/730512)", acct.String())
}
