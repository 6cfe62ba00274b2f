package token

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoToken is returned when neither the environment nor the token file
// provides a refresh token.
var ErrNoToken = errors.New("token: no refresh token configured")

// Store persists the rotated refresh token to disk. Pixiv rotates the
// refresh token on every exchange, so losing a write means the next restart
// starts from a dead credential.
type Store struct {
	path string
}

// NewStore creates a Store backed by path (e.g. ~/.pixiv/refresh_token).
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads the current refresh token from disk. Whitespace is trimmed.
// A missing file returns ErrNoToken.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("token: read %s: %w", s.path, err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// Save atomically replaces the token file: write to a temp file in the same
// directory, fsync, then rename. Mode 0600 — the token grants full account
// access.
func (s *Store) Save(tok string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("token: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".refresh_token-*")
	if err != nil {
		return fmt.Errorf("token: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("token: chmod temp: %w", err)
	}
	if _, err := tmp.WriteString(tok); err != nil {
		tmp.Close()
		return fmt.Errorf("token: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("token: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("token: close temp: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("token: rename: %w", err)
	}
	return nil
}
