// Package creds persists reusable authentication state between runs so a
// warm run can skip the interactive login handshake. The cached blob is
// opaque to this package; staleness is judged by write time alone.
package creds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultMaxAge is the staleness cutoff for cached state. Remote sessions
// rarely survive longer than this server-side.
const DefaultMaxAge = 8 * time.Hour

// envelope is the on-disk format.
type envelope struct {
	SavedAt time.Time `json:"saved_at"`
	State   []byte    `json:"state"`
}

// FileCache stores authentication state in a single mode-0600 JSON file.
type FileCache struct {
	path   string
	maxAge time.Duration
}

// NewFileCache creates a cache at path. maxAge <= 0 means DefaultMaxAge.
func NewFileCache(path string, maxAge time.Duration) *FileCache {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &FileCache{path: path, maxAge: maxAge}
}

// Load returns the cached state, or nil when the cache is empty or stale.
// A stale cache is cleared on read.
func (c *FileCache) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential cache: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("credential cache corrupt: %w", err)
	}
	if time.Since(env.SavedAt) > c.maxAge {
		_ = os.Remove(c.path)
		return nil, nil
	}
	return env.State, nil
}

// Save writes the state atomically with owner-only permissions.
func (c *FileCache) Save(_ context.Context, state []byte) error {
	data, err := json.Marshal(envelope{SavedAt: time.Now(), State: state})
	if err != nil {
		return fmt.Errorf("failed to encode credential cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace credential cache: %w", err)
	}
	return nil
}

// Clear removes the cached state. Clearing an empty cache is not an error.
func (c *FileCache) Clear(_ context.Context) error {
	err := os.Remove(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
