package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Digest storage errors.
var (
	ErrNoDigest      = errors.New("auth: no stored digest")
	ErrInvalidDigest = errors.New("auth: stored digest is malformed")
)

// DigestStore persists a passphrase digest at rest. The store holds exactly
// one digest; writing replaces any previous value.
type DigestStore struct {
	path string
}

// NewDigestStore returns a store backed by the given file path.
func NewDigestStore(path string) *DigestStore {
	return &DigestStore{path: path}
}

// Save writes the digest with owner-only permissions. The write is atomic:
// a temp file in the same directory is renamed over the target.
func (s *DigestStore) Save(digest string) error {
	if len(digest) != DigestLen {
		return ErrInvalidDigest
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create secret directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".digest-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("set digest permissions: %w", err)
	}
	if _, err := tmp.WriteString(digest + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write digest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close digest file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace digest file: %w", err)
	}
	return nil
}

// Load reads the stored digest. Returns ErrNoDigest if none has been saved.
func (s *DigestStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoDigest
		}
		return "", fmt.Errorf("read digest file: %w", err)
	}

	digest := strings.TrimSpace(string(data))
	if len(digest) != DigestLen {
		return "", ErrInvalidDigest
	}
	return digest, nil
}
