package cache

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackscan/pkg/errors"
	"github.com/matzehuels/stackscan/pkg/findings"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	// Get always returns miss
	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("NullCache.Get should always return miss")
	}
	if data != nil {
		t.Error("NullCache.Get should return nil data")
	}

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}

	// Still a miss after Set
	_, hit, _ = c.Get(ctx, "key")
	if hit {
		t.Error("NullCache should not store data")
	}

	if n, err := c.Clear(ctx); n != 0 || err != nil {
		t.Errorf("Clear() = %d, %v", n, err)
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	h2 := Hash([]byte("hello"))
	if h1 != h2 {
		t.Error("Hash should be deterministic")
	}

	h3 := Hash([]byte("world"))
	if h1 == h3 {
		t.Error("Different inputs should produce different hashes")
	}

	// SHA-256 produces 64 hex chars
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}

// exercise runs the shared contract checks against a backend.
func exercise(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	if _, hit, err := c.Get(ctx, "missing"); hit || err != nil {
		t.Fatalf("Get(missing) = %v, %v", hit, err)
	}

	for _, k := range []string{"a", "b", "c"} {
		if err := c.Set(ctx, k, []byte("value-"+k), 0); err != nil {
			t.Fatalf("Set(%s) error = %v", k, err)
		}
	}
	data, hit, err := c.Get(ctx, "b")
	if err != nil || !hit || string(data) != "value-b" {
		t.Fatalf("Get(b) = %q, %v, %v", data, hit, err)
	}

	if err := c.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete error = %v", err)
	}
	if err := c.Delete(ctx, "b"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}

	st, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error = %v", err)
	}
	if st.Entries != 2 || st.Bytes <= 0 {
		t.Errorf("Stats() = %+v, want 2 entries", st)
	}

	n, err := c.Clear(ctx)
	if err != nil || n != 2 {
		t.Errorf("Clear() = %d, %v; want 2", n, err)
	}
	if _, hit, _ := c.Get(ctx, "a"); hit {
		t.Error("entry survived Clear")
	}
	if st, _ := c.Stats(ctx); st.Entries != 0 {
		t.Errorf("Stats() after Clear = %+v", st)
	}
}

func TestFileCache(t *testing.T) {
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	exercise(t, c)
}

func TestMemoryCache(t *testing.T) {
	c, err := NewMemoryCache(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	exercise(t, c)
}

func TestTieredBackfill(t *testing.T) {
	ctx := context.Background()
	l1, _ := NewMemoryCache(1 << 20)
	l2, _ := NewFileCache(t.TempDir())
	c := NewTiered(l1, l2, time.Minute)
	defer c.Close()

	if err := l2.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if data, hit, _ := c.Get(ctx, "k"); !hit || string(data) != "v" {
		t.Fatalf("Get(k) = %q, %v", data, hit)
	}
	if _, hit, _ := l1.Get(ctx, "k"); !hit {
		t.Error("L2 hit was not backfilled into L1")
	}

	st, _ := c.Stats(ctx)
	if st.Backend != "tiered+file" || st.Entries != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestFileCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	path := c.path("k")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, hit, err := c.Get(ctx, "k")
	if hit || !errors.Is(err, errors.ErrCodeCacheCorrupt) {
		t.Errorf("Get() = %v, %v; want CACHE_CORRUPT", hit, err)
	}
}

func TestResultsRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	r := NewResults(c, nil)

	if _, hit := r.Lookup(ctx, "fp1"); hit {
		t.Fatal("empty cache reported a hit")
	}

	set := &findings.Set{
		Resource: "api",
		Focus:    "security",
		Source:   findings.SourceAgent,
		Findings: []findings.Finding{{Resource: "api", Severity: findings.High, Category: "security", Description: "x"}},
	}
	if err := r.Store(ctx, "fp1", set); err != nil {
		t.Fatal(err)
	}

	got, hit := r.Lookup(ctx, "fp1")
	if !hit {
		t.Fatal("Lookup() missed after Store")
	}
	if got.Source != findings.SourceCache || got.Fingerprint != "fp1" || len(got.Findings) != 1 {
		t.Errorf("Lookup() = %+v", got)
	}
	if got.Findings[0].Severity != findings.High {
		t.Errorf("Severity = %v", got.Findings[0].Severity)
	}

	if _, hit := r.Lookup(ctx, "fp2"); hit {
		t.Error("different fingerprint must miss")
	}
}

func TestResultsCorruptIsMiss(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	var buf bytes.Buffer
	r := NewResults(c, log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel}))

	if err := c.Set(ctx, ResultKey("fp"), []byte("not an envelope"), 0); err != nil {
		t.Fatal(err)
	}
	if _, hit := r.Lookup(ctx, "fp"); hit {
		t.Error("corrupt entry reported as hit")
	}
	if !bytes.Contains(buf.Bytes(), []byte("corrupt cache entry")) {
		t.Errorf("corruption not logged: %q", buf.String())
	}
	if _, ok, _ := c.Get(ctx, ResultKey("fp")); ok {
		t.Error("corrupt entry was not removed")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		opts    Options
		backend string
		wantErr bool
	}{
		{Options{Dir: t.TempDir()}, "file", false},
		{Options{Backend: "memory"}, "memory", false},
		{Options{Backend: "none"}, "none", false},
		{Options{Backend: "file", Dir: t.TempDir(), L1: true}, "tiered+file", false},
		{Options{Backend: "redis"}, "", true},
		{Options{Backend: "etcd"}, "", true},
	}
	for _, tt := range tests {
		c, err := Open(ctx, tt.opts)
		if (err != nil) != tt.wantErr {
			t.Errorf("Open(%+v) error = %v", tt.opts, err)
			continue
		}
		if err != nil {
			continue
		}
		st, _ := c.Stats(ctx)
		if st.Backend != tt.backend {
			t.Errorf("Open(%+v) backend = %q, want %q", tt.opts, st.Backend, tt.backend)
		}
		_ = c.Close()
	}
}
