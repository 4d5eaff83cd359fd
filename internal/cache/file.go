package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mrz1836/vali/internal/fileutil"
)

const (
	cacheFileMode = 0o640
	cacheDirMode  = 0o750

	// maxCacheFileSize bounds how large a cache file is read. A result
	// cache bigger than this is not a result cache.
	maxCacheFileSize = 8 << 20 // 8MB
)

// ErrCorruptCache marks a cache file that did not parse as JSON.
var ErrCorruptCache = errors.New("cache file is corrupted")

// FileStorage persists the result cache at a single file path.
type FileStorage struct {
	path string
}

// NewFileStorage returns storage backed by the file at path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Save writes the cache to disk through a temp file, so a crash mid-write
// never leaves a half-written cache behind.
func (fs *FileStorage) Save(rc *ResultCache) error {
	data, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}

	if err := fileutil.EnsureDir(filepath.Dir(fs.path), cacheDirMode); err != nil {
		return fmt.Errorf("cache directory: %w", err)
	}

	return fileutil.WriteAtomic(fs.path, data, cacheFileMode)
}

// Load reads the cache from disk. A missing file yields an empty cache; a
// corrupted one is quarantined so the next save starts clean.
func (fs *FileStorage) Load() (*ResultCache, error) {
	data, err := fileutil.ReadLimited(fs.path, maxCacheFileSize)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}

	var rc ResultCache
	if err := json.Unmarshal(data, &rc); err != nil {
		return New(), fs.quarantine(err)
	}

	if rc.Entries == nil {
		rc.Entries = make(map[string]Entry)
	}
	return &rc, nil
}

// quarantine moves a malformed cache file aside, keeping it for inspection
// without letting it break every subsequent load.
func (fs *FileStorage) quarantine(parseErr error) error {
	aside := fmt.Sprintf("%s.corrupt.%d", fs.path, time.Now().UTC().UnixNano())
	if err := os.Rename(fs.path, aside); err != nil {
		return fmt.Errorf("%w: %w (quarantine failed: %w)", ErrCorruptCache, parseErr, err)
	}
	return fmt.Errorf("%w: %w (moved to %s)", ErrCorruptCache, parseErr, aside)
}

// Delete removes the cache file. A missing file is not an error.
func (fs *FileStorage) Delete() error {
	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting cache file: %w", err)
	}
	return nil
}

// Exists reports whether the cache file exists.
func (fs *FileStorage) Exists() bool {
	_, err := os.Stat(fs.path)
	return err == nil
}

// Path tells where the cache lives on disk.
func (fs *FileStorage) Path() string {
	return fs.path
}
