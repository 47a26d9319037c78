package cache

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/sourcecheck/internal/model"
)

func TestCacheKey(t *testing.T) {
	a := CacheKey("https://example.com/a")
	b := CacheKey("https://example.com/b")

	if a == b {
		t.Error("Expected different keys for different URLs")
	}
	if !strings.HasPrefix(a, "sourcecheck:v1:") {
		t.Errorf("Unexpected key prefix: %s", a)
	}
	if a != CacheKey("https://example.com/a") {
		t.Error("Expected keys to be stable")
	}
}

func TestMemoryCache_NoExpiration(t *testing.T) {
	c := NewMemoryCache(NoExpiration, 0)

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok := c.Get("k")
	if !ok || string(got) != "v" {
		t.Fatalf("Expected hit, got %q %v", got, ok)
	}

	_ = c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("Expected miss after delete")
	}
}

func TestMemoryCache_TTL(t *testing.T) {
	c := NewMemoryCache(NoExpiration, 0)
	_ = c.Set("short", []byte("v"), 20*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	if _, ok := c.Get("short"); ok {
		t.Error("Expected entry to expire")
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := NewMemoryCache(NoExpiration, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Set("same", []byte("value"), 0)
			if v, ok := c.Get("same"); ok && string(v) != "value" {
				t.Errorf("Unexpected value %q", v)
			}
		}()
	}
	wg.Wait()

	if c.Len() != 1 {
		t.Errorf("Expected a single entry, got %d", c.Len())
	}
}

func TestDiskCache_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, 0)

	key := CacheKey("https://example.com/page")
	if err := c.Set(key, []byte("content"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := NewDiskCache(dir, 0).Get(key)
	if !ok || !bytes.Equal(got, []byte("content")) {
		t.Fatalf("Expected persisted entry, got %q %v", got, ok)
	}

	if err := c.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := c.Delete(key); err != nil {
		t.Errorf("Expected deleting a missing entry to succeed, got %v", err)
	}
}

func TestDiskCache_Expired(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Millisecond)
	_ = c.Set("k", []byte("v"), 0)

	time.Sleep(10 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("Expected expired entry to miss")
	}
}

func TestLayeredCache_PromotesFromDisk(t *testing.T) {
	dir := t.TempDir()
	_ = NewDiskCache(dir, 0).Set("k", []byte("from-disk"), 0)

	c := NewLayeredCache(NoExpiration, dir, 0)
	got, ok := c.Get("k")
	if !ok || string(got) != "from-disk" {
		t.Fatalf("Expected disk hit, got %q %v", got, ok)
	}

	if v, ok := c.memory.Get("k"); !ok || string(v) != "from-disk" {
		t.Error("Expected entry promoted to memory")
	}
}

func TestNew(t *testing.T) {
	if _, ok := New(model.CacheConfig{Enabled: false}).(NopCache); !ok {
		t.Error("Expected NopCache when disabled")
	}
	if _, ok := New(model.CacheConfig{Enabled: true}).(*MemoryCache); !ok {
		t.Error("Expected MemoryCache without a disk dir")
	}
	if _, ok := New(model.CacheConfig{Enabled: true, DiskDir: t.TempDir()}).(*LayeredCache); !ok {
		t.Error("Expected LayeredCache with a disk dir")
	}
}

func TestNew_DiskTTLApplied(t *testing.T) {
	dir := t.TempDir()
	c := New(model.CacheConfig{Enabled: true, DiskDir: dir, DiskTTL: time.Hour})

	before := time.Now()
	if err := c.Set("k", []byte("v"), NoExpiration); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	data, err := os.ReadFile(NewDiskCache(dir, 0).path("k"))
	if err != nil {
		t.Fatalf("Expected disk entry: %v", err)
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("Bad entry: %v", err)
	}
	if entry.ExpiresAt.IsZero() {
		t.Fatal("Expected disk entry to carry the disk TTL")
	}
	if entry.ExpiresAt.Before(before.Add(59*time.Minute)) || entry.ExpiresAt.After(time.Now().Add(time.Hour)) {
		t.Errorf("Expected expiry about an hour out, got %v", entry.ExpiresAt)
	}

	if v, ok := c.(*LayeredCache).memory.Get("k"); !ok || string(v) != "v" {
		t.Error("Expected memory entry kept")
	}
}
