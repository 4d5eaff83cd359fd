// Package accounts manages the saved accounts book: labeled utility
// account numbers stored in a single age-encrypted file so checks can
// be run by label instead of raw service/account pairs.
package accounts

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mrz1836/go-sanitize"

	valierr "github.com/mrz1836/vali/pkg/errors"
)

const (
	// bookVersion is the accounts book file format version.
	bookVersion = 1

	// maxLabelLength is the maximum length of an account label.
	maxLabelLength = 64
)

var (
	// ErrInvalidLabel indicates the account label is invalid.
	ErrInvalidLabel = valierr.WithSuggestion(valierr.ErrInvalidInput, "label must be 1-64 alphanumeric characters, underscores, or hyphens")

	// ErrInvalidAccountID indicates the account number is invalid.
	ErrInvalidAccountID = valierr.WithSuggestion(valierr.ErrInvalidInput, "account number must be 1-32 letters, digits, or hyphens")

	// ErrInvalidService indicates the service name is empty.
	ErrInvalidService = valierr.WithSuggestion(valierr.ErrInvalidInput, "service name must not be empty")

	// labelRegex validates account labels: alphanumeric + underscore + hyphen, 1-64 chars.
	labelRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

	// accountIDRegex validates account numbers. Portal account numbers are
	// numeric, but custom services may use alphanumeric identifiers.
	accountIDRegex = regexp.MustCompile(`^[0-9A-Za-z-]{1,32}$`)
)

// Account is a single labeled account entry in the book.
type Account struct {
	// Label is the unique identifier for this entry.
	Label string `json:"label"`

	// Service is the service registry name or alias the account belongs to.
	Service string `json:"service"`

	// AccountID is the subscriber/account number at the provider.
	AccountID string `json:"account_id"`

	// AddedAt is when the entry was added.
	AddedAt time.Time `json:"added_at"`
}

// Book holds all saved accounts. It is serialized as JSON and encrypted
// as a whole, so labels and account numbers never touch disk in clear.
type Book struct {
	// Version is the book file format version.
	Version int `json:"version"`

	// Accounts contains all saved entries in insertion order.
	Accounts []Account `json:"accounts"`
}

// NewBook creates an empty accounts book.
func NewBook() *Book {
	return &Book{
		Version:  bookVersion,
		Accounts: []Account{},
	}
}

// ValidateLabel checks if an account label is valid.
func ValidateLabel(label string) error {
	if !labelRegex.MatchString(label) {
		return ErrInvalidLabel
	}
	return nil
}

// SuggestLabel provides a sanitized version of an invalid label.
// It uses sanitize.PathName to clean the input, keeping only ASCII
// alphanumeric characters, hyphens, and underscores. The result is
// truncated to 64 characters. Returns empty string if the input cannot
// be sanitized to a valid label.
func SuggestLabel(label string) string {
	suggested := sanitize.PathName(label)
	if suggested == "" {
		return ""
	}
	if len(suggested) > maxLabelLength {
		suggested = suggested[:maxLabelLength]
	}
	return suggested
}

// Add appends a new entry to the book. Labels are unique
// case-insensitively.
func (b *Book) Add(acct Account) error {
	if err := ValidateLabel(acct.Label); err != nil {
		return err
	}
	if strings.TrimSpace(acct.Service) == "" {
		return ErrInvalidService
	}
	if !accountIDRegex.MatchString(acct.AccountID) {
		return ErrInvalidAccountID
	}

	if _, err := b.Resolve(acct.Label); err == nil {
		return valierr.WithDetails(valierr.ErrAccountExists, map[string]string{
			"label": acct.Label,
		})
	}

	if acct.AddedAt.IsZero() {
		acct.AddedAt = time.Now().UTC()
	}

	b.Accounts = append(b.Accounts, acct)
	return nil
}

// Remove deletes the entry with the given label.
func (b *Book) Remove(label string) error {
	for i, acct := range b.Accounts {
		if strings.EqualFold(acct.Label, label) {
			b.Accounts = append(b.Accounts[:i], b.Accounts[i+1:]...)
			return nil
		}
	}

	return valierr.WithDetails(valierr.ErrAccountNotFound, map[string]string{
		"label": label,
	})
}

// Resolve looks up an entry by label (case-insensitive).
func (b *Book) Resolve(label string) (Account, error) {
	for _, acct := range b.Accounts {
		if strings.EqualFold(acct.Label, label) {
			return acct, nil
		}
	}

	return Account{}, valierr.WithDetails(valierr.ErrAccountNotFound, map[string]string{
		"label": label,
	})
}

// List returns all entries sorted by label.
func (b *Book) List() []Account {
	accounts := make([]Account, len(b.Accounts))
	copy(accounts, b.Accounts)

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Label < accounts[j].Label
	})

	return accounts
}

// Len returns the number of saved entries.
func (b *Book) Len() int {
	return len(b.Accounts)
}

// String returns a display form of the account entry.
func (a Account) String() string {
	return fmt.Sprintf("%s (%s/%s)", a.Label, a.Service, a.AccountID)
}

// ZeroBytes zeros out a byte slice.
func ZeroBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
