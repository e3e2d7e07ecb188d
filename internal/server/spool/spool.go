// Package spool implements the transient local byte storage between intake
// and transfer. The intake handler writes each upload exactly once; the
// worker later opens it read-only and streams it into object storage. Keys
// are the records' storage keys, so the spool layout mirrors the bucket.
package spool

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// stagingDir holds uploads that have been received but whose record does not
// exist yet. Concurrent submissions for the same name each stage their own
// file; only the one that wins the record insert is promoted to its key.
const stagingDir = ".staging"

type Store struct {
	root string
}

// New creates the spool root directory if needed and returns a Store
// rooted there.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Write streams r into the spool file for key, creating parent directories
// as needed, and returns the number of bytes written.
func (s *Store) Write(key string, r io.Reader) (int64, error) {
	path := s.path(key)

	if err := os.MkdirAll(filepath.Dir(path), 0o770); err != nil {
		return 0, fmt.Errorf("mkdir for %s: %w", key, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", key, err)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		_ = os.Remove(path)
		return 0, fmt.Errorf("write %s: %w", key, err)
	}

	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", key, err)
	}

	return n, nil
}

// Stage streams r into a uniquely named file in the staging area and returns
// its path and the number of bytes written. Staged bytes become readable
// under a key only through Promote; until then no other writer can touch
// them.
func (s *Store) Stage(r io.Reader) (string, int64, error) {
	dir := filepath.Join(s.root, stagingDir)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", 0, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create staging file: %w", err)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return "", 0, fmt.Errorf("write staging file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", 0, fmt.Errorf("close staging file: %w", err)
	}

	return f.Name(), n, nil
}

// Promote moves a staged file to its final key, creating parent directories
// as needed.
func (s *Store) Promote(staged, key string) error {
	path := s.path(key)

	if err := os.MkdirAll(filepath.Dir(path), 0o770); err != nil {
		return fmt.Errorf("mkdir for %s: %w", key, err)
	}
	if err := os.Rename(staged, path); err != nil {
		return fmt.Errorf("promote %s: %w", key, err)
	}
	return nil
}

// Discard deletes a staged file that lost its record-insert race or turned
// out invalid. Discarding an absent file is not an error.
func (s *Store) Discard(staged string) error {
	err := os.Remove(staged)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard %s: %w", staged, err)
	}
	return nil
}

// Open returns the spooled bytes for key. A missing file is reported with an
// error satisfying os.IsNotExist, which the worker treats as unrecoverable.
func (s *Store) Open(key string) (io.ReadCloser, error) {
	return os.Open(s.path(key))
}

// Remove deletes the spool file for key. Removing an absent file is not an
// error.
func (s *Store) Remove(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}
