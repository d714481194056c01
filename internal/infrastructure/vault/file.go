// Package vault persists the session cache subset (user, auth flag, access
// token) under a single durable key. Whatever the backing store, the cache is
// explicitly untrusted: every loaded value must be revalidated against the
// profile endpoint before the session counts as authenticated.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/deckhaven/sessionkit/internal/core/domain"
)

// StorageKey is the single durable key every adapter stores under.
const StorageKey = "auth-storage"

// FileVault stores the session cache as a JSON file, written atomically via
// temp-file rename.
type FileVault struct {
	mu   sync.Mutex
	path string
}

// NewFileVault returns a vault backed by the file at path.
func NewFileVault(path string) *FileVault {
	return &FileVault{path: path}
}

func (v *FileVault) Load(_ context.Context) (*domain.PersistedSession, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	raw, err := os.ReadFile(v.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault: read %s: %w", v.path, err)
	}

	var s domain.PersistedSession
	if err := json.Unmarshal(raw, &s); err != nil {
		// A corrupt cache is the same as no cache.
		return nil, nil
	}
	return &s, nil
}

func (v *FileVault) Save(_ context.Context, s *domain.PersistedSession) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("vault: marshal session: %w", err)
	}

	dir := filepath.Dir(v.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("vault: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, StorageKey+"-*")
	if err != nil {
		return fmt.Errorf("vault: create temp: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("vault: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("vault: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), v.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("vault: rename: %w", err)
	}
	return nil
}

func (v *FileVault) Clear(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := os.Remove(v.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("vault: remove %s: %w", v.path, err)
	}
	return nil
}
