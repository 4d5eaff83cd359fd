package accounts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mrz1836/vali/internal/fileutil"
	"github.com/mrz1836/vali/internal/valicrypto"
	valierr "github.com/mrz1836/vali/pkg/errors"
)

const (
	// bookFilePermissions is the permission mode for the accounts book file.
	bookFilePermissions = 0o600

	// bookDirPermissions is the permission mode for the accounts directory.
	bookDirPermissions = 0o750

	// maxBookFileSize bounds how large a book file is read. An accounts
	// book bigger than this is not an accounts book.
	maxBookFileSize = 4 << 20 // 4MB
)

// Storage defines the interface for accounts book persistence.
type Storage interface {
	// Save encrypts and writes the book to storage.
	// The passphrase should be zeroed by the caller after this call returns.
	Save(book *Book, passphrase []byte) error

	// Load reads and decrypts the book from storage.
	// The passphrase should be zeroed by the caller after this call returns.
	Load(passphrase []byte) (*Book, error)

	// Exists checks if a book file exists.
	Exists() bool

	// Path returns the book file path.
	Path() string
}

// FileStore implements Storage using a single age-encrypted file.
type FileStore struct {
	path string
}

// Compile-time check that FileStore implements Storage.
var _ Storage = (*FileStore)(nil)

// NewFileStore creates a new file-based accounts store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save encrypts and writes the book to storage. The whole book is
// encrypted as one unit, so no entry data is readable without the
// passphrase. The passphrase should be zeroed by the caller after this
// call returns.
func (s *FileStore) Save(book *Book, passphrase []byte) error {
	data, err := json.MarshalIndent(book, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling accounts book: %w", err)
	}

	encrypted, err := valicrypto.Encrypt(data, string(passphrase))
	if err != nil {
		return fmt.Errorf("encrypting accounts book: %w", err)
	}

	if err := fileutil.EnsureDir(filepath.Dir(s.path), bookDirPermissions); err != nil {
		return fmt.Errorf("creating accounts directory: %w", err)
	}

	if err := fileutil.WriteAtomic(s.path, encrypted, bookFilePermissions); err != nil {
		return fmt.Errorf("writing accounts book: %w", err)
	}

	return nil
}

// Load reads and decrypts the book from storage.
// The passphrase should be zeroed by the caller after this call returns.
func (s *FileStore) Load(passphrase []byte) (*Book, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, valierr.ErrAccountsNotFound
	}

	data, err := fileutil.ReadLimited(s.path, maxBookFileSize)
	if err != nil {
		return nil, fmt.Errorf("reading accounts book: %w", err)
	}

	plaintext, err := valicrypto.Decrypt(data, string(passphrase))
	if err != nil {
		return nil, valierr.ErrDecryptionFailed
	}

	var book Book
	if err := json.Unmarshal(plaintext, &book); err != nil {
		return nil, fmt.Errorf("parsing accounts book: %w", err)
	}

	// Ensure slice is initialized
	if book.Accounts == nil {
		book.Accounts = []Account{}
	}

	return &book, nil
}

// Exists checks if a book file exists.
func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Path returns the book file path.
func (s *FileStore) Path() string {
	return s.path
}
