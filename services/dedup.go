package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
)

const (
	DefaultDedupWindow    = 30 * time.Second
	DefaultDedupRetention = 120 * time.Second
	defaultDedupCapacity  = 4096
)

// MemoryDedupWindow suppresses repeated presentation of the same alert key.
// A key is presented when it was not presented within the window. Entries
// older than the retention are pruned on every lookup; the LRU bound caps
// memory if keys arrive faster than they expire.
type MemoryDedupWindow struct {
	window    time.Duration
	retention time.Duration
	cache     *lru.Cache
	mutex     sync.Mutex
}

func NewMemoryDedupWindow(window, retention time.Duration, capacity int) (*MemoryDedupWindow, error) {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if retention < window {
		retention = window
	}
	if capacity <= 0 {
		capacity = defaultDedupCapacity
	}

	cache, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup cache: %w", err)
	}

	return &MemoryDedupWindow{
		window:    window,
		retention: retention,
		cache:     cache,
	}, nil
}

func (d *MemoryDedupWindow) ShouldPresent(ctx context.Context, key string, now time.Time) (bool, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.prune(now)

	if v, ok := d.cache.Peek(key); ok {
		if now.Sub(v.(time.Time)) < d.window {
			return false, nil
		}
	}

	d.cache.Add(key, now)
	return true, nil
}

// Prune drops entries older than the retention and reports how many went
func (d *MemoryDedupWindow) Prune(now time.Time) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.prune(now)
}

func (d *MemoryDedupWindow) prune(now time.Time) int {
	removed := 0
	for _, key := range d.cache.Keys() {
		v, ok := d.cache.Peek(key)
		if !ok {
			continue
		}
		if now.Sub(v.(time.Time)) > d.retention {
			d.cache.Remove(key)
			removed++
		}
	}
	return removed
}

func (d *MemoryDedupWindow) Len() int {
	return d.cache.Len()
}

// RedisDedupWindow shares the dedup table between consumer instances. The
// window is enforced by key expiry, so Redis server time decides it.
type RedisDedupWindow struct {
	client *redis.Client
	window time.Duration
	prefix string
}

func NewRedisDedupWindow(client *redis.Client, window time.Duration) *RedisDedupWindow {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &RedisDedupWindow{
		client: client,
		window: window,
		prefix: "vesselwatch:dedup:",
	}
}

func (d *RedisDedupWindow) ShouldPresent(ctx context.Context, key string, now time.Time) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, now.UnixMilli(), d.window).Result()
	if err != nil {
		return true, fmt.Errorf("failed to check dedup key: %w", err)
	}
	return ok, nil
}

// Prune is a no-op; Redis expires keys on its own
func (d *RedisDedupWindow) Prune(now time.Time) int {
	return 0
}

// FallbackDedupWindow prefers the shared table and falls back to a local one
// while Redis is unreachable.
type FallbackDedupWindow struct {
	primary  *RedisDedupWindow
	fallback *MemoryDedupWindow
}

func NewFallbackDedupWindow(primary *RedisDedupWindow, fallback *MemoryDedupWindow) *FallbackDedupWindow {
	return &FallbackDedupWindow{primary: primary, fallback: fallback}
}

func (d *FallbackDedupWindow) ShouldPresent(ctx context.Context, key string, now time.Time) (bool, error) {
	ok, err := d.primary.ShouldPresent(ctx, key, now)
	if err == nil {
		return ok, nil
	}
	logrus.Warnf("Shared dedup table unavailable, using local window: %v", err)
	return d.fallback.ShouldPresent(ctx, key, now)
}

func (d *FallbackDedupWindow) Prune(now time.Time) int {
	return d.fallback.Prune(now)
}
