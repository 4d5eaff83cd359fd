// Package fileutil provides filesystem helpers for robust file operations.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrEmptyPath indicates an empty file path was provided.
var ErrEmptyPath = errors.New("path is empty")

// ErrFileTooLarge indicates a file exceeded the read size limit.
var ErrFileTooLarge = errors.New("file exceeds size limit")

// WriteAtomic writes data to path with the provided permissions, going
// through a fsynced temp file in the same directory followed by a rename.
// A crash mid-write never leaves a truncated file behind.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return ErrEmptyPath
	}

	tmpPath, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	syncDir(filepath.Dir(path))
	return nil
}

// writeTemp stages data in a temp file next to path and flushes it to
// disk. On any failure the temp file is cleaned up.
func writeTemp(path string, data []byte, perm os.FileMode) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	name := f.Name()

	err = func() error {
		if _, werr := f.Write(data); werr != nil {
			return fmt.Errorf("writing temp file: %w", werr)
		}
		if cherr := f.Chmod(perm); cherr != nil {
			return fmt.Errorf("setting temp file permissions: %w", cherr)
		}
		if serr := f.Sync(); serr != nil {
			return fmt.Errorf("syncing temp file: %w", serr)
		}
		return nil
	}()

	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing temp file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// syncDir makes a completed rename durable on filesystems that need the
// directory flushed too. Failures are ignored; the data file is safe.
func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // G304: dir derives from a caller-validated path
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// EnsureDir creates dir (and parents) with the given permissions when missing.
func EnsureDir(dir string, perm os.FileMode) error {
	if dir == "" {
		return ErrEmptyPath
	}
	if err := os.MkdirAll(dir, perm); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return nil
}

// ReadLimited reads a file, refusing anything larger than maxBytes. The cap
// keeps a corrupted or swapped file from ballooning memory on load. Missing
// files surface as the raw os error so callers can test os.ErrNotExist.
func ReadLimited(path string, maxBytes int64) ([]byte, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	f, err := os.Open(path) //nolint:gosec // G304: path is validated by caller, not from user input
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if info.Size() > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFileTooLarge, info.Size(), maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}
