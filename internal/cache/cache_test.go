package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"riq/internal/logging"
	"riq/internal/repoident"
)

func testIdentity() repoident.Identity {
	return repoident.Identity{Root: "/tmp/repo", Name: "repo", Hash: "ab12cd34ef56ab78"}
}

func TestKeyNormalizesChangeText(t *testing.T) {
	id := testIdentity()

	a := Key(id, "Add  Tenant\tIsolation")
	b := Key(id, "add tenant isolation")
	if a != b {
		t.Errorf("keys should match after normalization: %q vs %q", a, b)
	}

	c := Key(id, "add audit logging")
	if a == c {
		t.Error("different changes should produce different keys")
	}

	factsKey := Key(id, "")
	if factsKey == a {
		t.Error("facts-only key should differ from change keys")
	}
	if len(factsKey) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(factsKey))
	}
}

func TestNormalizeChange(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Add tenant isolation", "add tenant isolation"},
		{"  add   TENANT\n\tisolation  ", "add tenant isolation"},
		{"single", "single"},
	}
	for _, tt := range tests {
		if got := NormalizeChange(tt.in); got != tt.want {
			t.Errorf("NormalizeChange(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMemoryCacheBasics(t *testing.T) {
	mc := NewMemoryCache(0)

	if _, found := mc.Get("missing"); found {
		t.Error("expected miss on empty cache")
	}

	mc.Set("k1", []byte("v1"), time.Minute)
	got, found := mc.Get("k1")
	if !found {
		t.Fatal("expected hit after Set")
	}
	if string(got) != "v1" {
		t.Errorf("got %q, want v1", got)
	}

	mc.Set("k1", []byte("v2"), time.Minute)
	got, _ = mc.Get("k1")
	if string(got) != "v2" {
		t.Errorf("Set should overwrite, got %q", got)
	}

	mc.Invalidate("k1")
	if _, found := mc.Get("k1"); found {
		t.Error("expected miss after Invalidate")
	}

	mc.Set("a", []byte("1"), time.Minute)
	mc.Set("b", []byte("2"), time.Minute)
	if mc.Size() != 2 {
		t.Errorf("Size = %d, want 2", mc.Size())
	}
	mc.Clear()
	if mc.Size() != 0 {
		t.Errorf("Size after Clear = %d, want 0", mc.Size())
	}
}

func TestMemoryCacheLazyExpiry(t *testing.T) {
	mc := NewMemoryCache(0)
	mc.Set("stale", []byte("old"), -time.Second)

	if mc.Size() != 1 {
		t.Fatalf("expired entry should linger until read, Size = %d", mc.Size())
	}
	if _, found := mc.Get("stale"); found {
		t.Error("expired entry should read as a miss")
	}
	if mc.Size() != 0 {
		t.Errorf("expired entry should be deleted on read, Size = %d", mc.Size())
	}
}

func TestMemoryCacheEviction(t *testing.T) {
	mc := NewMemoryCache(2)
	mc.Set("a", []byte("1"), time.Minute)
	mc.Set("b", []byte("2"), time.Minute)

	// Overwriting an existing key at capacity must not evict.
	mc.Set("a", []byte("1b"), time.Minute)
	if mc.Size() != 2 {
		t.Errorf("Size after overwrite = %d, want 2", mc.Size())
	}

	mc.Set("c", []byte("3"), time.Minute)
	if mc.Size() > 2 {
		t.Errorf("Size after eviction = %d, want <= 2", mc.Size())
	}
	if _, found := mc.Get("c"); !found {
		t.Error("newest entry should survive eviction")
	}
}

func TestMemoryCacheEvictionPrefersExpired(t *testing.T) {
	mc := NewMemoryCache(2)
	mc.Set("live", []byte("1"), time.Minute)
	mc.Set("stale", []byte("2"), -time.Second)

	mc.Set("new", []byte("3"), time.Minute)
	if _, found := mc.Get("live"); !found {
		t.Error("live entry should survive when an expired one can be evicted")
	}
	if _, found := mc.Get("new"); !found {
		t.Error("inserted entry should be present")
	}
}

func TestDiskCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riq.db")
	dc, err := OpenDisk(path, true)
	if err != nil {
		t.Fatalf("OpenDisk failed: %v", err)
	}
	defer func() { _ = dc.Close() }()

	t.Run("miss on empty cache", func(t *testing.T) {
		_, _, found, err := dc.Get("nope")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if found {
			t.Error("expected miss")
		}
	})

	t.Run("small payload stored raw", func(t *testing.T) {
		if err := dc.Set("small", KindFacts, []byte(`{"ok":true}`), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, expiresAt, found, err := dc.Get("small")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !found {
			t.Fatal("expected hit")
		}
		if string(got) != `{"ok":true}` {
			t.Errorf("payload mismatch: %q", got)
		}
		if !expiresAt.After(time.Now()) {
			t.Error("expiry should be in the future")
		}
	})

	t.Run("large payload compressed", func(t *testing.T) {
		payload := bytes.Repeat([]byte("a"), 4096)
		if err := dc.Set("big", KindImpact, payload, time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, _, found, err := dc.Get("big")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !found {
			t.Fatal("expected hit")
		}
		if !bytes.Equal(got, payload) {
			t.Error("decompressed payload should match original")
		}

		// Stored size reflects the compressed blob, far below 4096 for
		// a run of identical bytes.
		_, storedBytes, err := dc.Stats()
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if storedBytes >= 4096 {
			t.Errorf("stored bytes = %d, expected compression below 4096", storedBytes)
		}
	})

	t.Run("expired row is a miss and deleted", func(t *testing.T) {
		if err := dc.Set("stale", KindFacts, []byte("old"), -time.Second); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		_, _, found, err := dc.Get("stale")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if found {
			t.Error("expired row should be a miss")
		}
		entries, _, err := dc.Stats()
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if entries != 2 {
			t.Errorf("expired row should be deleted on read, entries = %d", entries)
		}
	})

	t.Run("set overwrites", func(t *testing.T) {
		if err := dc.Set("small", KindFacts, []byte(`{"ok":false}`), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, _, _, err := dc.Get("small")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != `{"ok":false}` {
			t.Errorf("expected overwritten payload, got %q", got)
		}
	})

	t.Run("prune removes only expired rows", func(t *testing.T) {
		if err := dc.Set("stale2", KindFacts, []byte("old"), -time.Second); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		removed, err := dc.Prune()
		if err != nil {
			t.Fatalf("Prune failed: %v", err)
		}
		if removed != 1 {
			t.Errorf("Prune removed %d rows, want 1", removed)
		}
		entries, _, _ := dc.Stats()
		if entries != 2 {
			t.Errorf("live rows should survive prune, entries = %d", entries)
		}
	})

	t.Run("clear removes everything", func(t *testing.T) {
		if err := dc.Clear(); err != nil {
			t.Fatalf("Clear failed: %v", err)
		}
		entries, _, _ := dc.Stats()
		if entries != 0 {
			t.Errorf("entries after Clear = %d, want 0", entries)
		}
	})
}

func TestDiskCacheReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riq.db")

	dc, err := OpenDisk(path, false)
	if err != nil {
		t.Fatalf("OpenDisk failed: %v", err)
	}
	if err := dc.Set("persist", KindFacts, []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := dc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	dc2, err := OpenDisk(path, false)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = dc2.Close() }()

	got, _, found, err := dc2.Get("persist")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found || string(got) != "v" {
		t.Errorf("entry should survive reopen, found=%v payload=%q", found, got)
	}
}

func TestCacheFacadeWriteThroughAndPromotion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riq.db")
	opts := Options{
		Enabled:          true,
		TTLSeconds:       3600,
		MaxMemoryEntries: 16,
		Path:             path,
		Compression:      true,
	}

	c := New(opts, logging.Nop())
	key := Key(testIdentity(), "add tenant isolation")
	c.Set(key, KindImpact, []byte(`{"bucket":"M"}`))

	got, found := c.Get(key)
	if !found || string(got) != `{"bucket":"M"}` {
		t.Fatalf("expected memory hit, found=%v payload=%q", found, got)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A fresh facade has cold memory; the hit must come through the disk
	// tier and then be promoted.
	c2 := New(opts, logging.Nop())
	defer func() { _ = c2.Close() }()

	got, found = c2.Get(key)
	if !found || string(got) != `{"bucket":"M"}` {
		t.Fatalf("expected disk hit after restart, found=%v payload=%q", found, got)
	}

	stats := c2.Stats()
	if stats.Hits != 1 {
		t.Errorf("Hits = %d, want 1", stats.Hits)
	}
	if stats.MemoryEntries != 1 {
		t.Errorf("disk hit should promote into memory, MemoryEntries = %d", stats.MemoryEntries)
	}
	if stats.DiskEntries != 1 {
		t.Errorf("DiskEntries = %d, want 1", stats.DiskEntries)
	}
	if stats.DiskError != "" {
		t.Errorf("unexpected disk error: %s", stats.DiskError)
	}
}

func TestCacheDisabled(t *testing.T) {
	c := New(Options{Enabled: false, TTLSeconds: 3600}, logging.Nop())
	defer func() { _ = c.Close() }()

	c.Set("k", KindFacts, []byte("v"))
	if _, found := c.Get("k"); found {
		t.Error("disabled cache should always miss")
	}

	stats := c.Stats()
	if stats.Enabled {
		t.Error("Stats should report disabled")
	}
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("disabled cache should not count, hits=%d misses=%d", stats.Hits, stats.Misses)
	}
}

func TestCacheFailsOpenWithoutDisk(t *testing.T) {
	// Parent of the database path is a regular file, so the disk tier
	// cannot be created.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write blocker: %v", err)
	}

	opts := Options{
		Enabled:    true,
		TTLSeconds: 3600,
		Path:       filepath.Join(blocker, "sub", "riq.db"),
	}
	c := New(opts, logging.Nop())
	defer func() { _ = c.Close() }()

	c.Set("k", KindFacts, []byte("v"))
	got, found := c.Get("k")
	if !found || string(got) != "v" {
		t.Fatalf("memory tier should keep working, found=%v payload=%q", found, got)
	}

	stats := c.Stats()
	if stats.DiskError == "" {
		t.Error("Stats should surface the disk failure")
	}
	if !strings.Contains(stats.DiskError, "CACHE_UNAVAILABLE") {
		t.Errorf("DiskError should carry the stable code, got %q", stats.DiskError)
	}
}
