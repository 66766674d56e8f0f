package creds

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	c := NewFileCache(path, time.Hour)
	ctx := context.Background()

	state := []byte(`{"cookies":[{"name":"ASP.NET_SessionId","value":"abc"}]}`)
	if err := c.Save(ctx, state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(got, state) {
		t.Errorf("state mismatch: %s", got)
	}
}

func TestLoadMissingCacheIsEmpty(t *testing.T) {
	c := NewFileCache(filepath.Join(t.TempDir(), "absent.json"), time.Hour)
	got, err := c.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing cache, got %q", got)
	}
}

func TestStaleCacheIsClearedOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	c := NewFileCache(path, time.Millisecond)
	ctx := context.Background()

	if err := c.Save(ctx, []byte("state")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	got, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got != nil {
		t.Errorf("stale state returned: %q", got)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("stale cache file not removed")
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	c := NewFileCache(path, time.Hour)

	if err := c.Save(context.Background(), []byte("secret")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected 0600 permissions, got %o", perm)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	c := NewFileCache(path, time.Hour)
	ctx := context.Background()

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("clearing an empty cache must succeed: %v", err)
	}
	if err := c.Save(ctx, []byte("state")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	got, err := c.Load(ctx)
	if err != nil || got != nil {
		t.Errorf("cache not cleared: %q (%v)", got, err)
	}
}

func TestCorruptCacheReportsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("not json"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	c := NewFileCache(path, time.Hour)
	if _, err := c.Load(context.Background()); err == nil {
		t.Fatal("expected corrupt cache to be reported")
	}
}
