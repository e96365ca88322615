package pool

import (
	"context"
	"sync"
	"time"

	"github.com/intellex-clms/tenantdb/pkg/tenantlog"
)

// CachedEntry is a resolved tenant database with the time it was stored.
type CachedEntry struct {
	Value    TenantDatabase
	StoredAt time.Time
}

// MetadataCache keeps resolved tenant databases for a fixed TTL.
// Expiry only forgets the metadata; pools and connections are untouched.
type MetadataCache struct {
	cache *sync.Map

	// Cleanup management
	mu            sync.Mutex
	cleanupCancel context.CancelFunc
	cleanupDone   chan struct{}

	ttl         time.Duration
	checkPeriod time.Duration

	now func() time.Time
}

func NewMetadataCache(ttl, checkPeriod time.Duration) *MetadataCache {
	if checkPeriod <= 0 {
		checkPeriod = ttl
	}
	return &MetadataCache{
		cache:       &sync.Map{},
		ttl:         ttl,
		checkPeriod: checkPeriod,
		now:         time.Now,
	}
}

// Get returns the entry for key unless it is missing or stale.
// Stale entries are dropped on the way.
func (c *MetadataCache) Get(key string) (TenantDatabase, bool) {
	value, exists := c.cache.Load(key)
	if !exists {
		return TenantDatabase{}, false
	}

	entry := value.(CachedEntry)
	if c.now().Sub(entry.StoredAt) > c.ttl {
		c.cache.CompareAndDelete(key, value)
		return TenantDatabase{}, false
	}

	return entry.Value, true
}

func (c *MetadataCache) Set(key string, value TenantDatabase) {
	c.cache.Store(key, CachedEntry{
		Value:    value,
		StoredAt: c.now(),
	})
}

func (c *MetadataCache) Remove(key string) {
	c.cache.Delete(key)
}

// Clear removes all cached entries
func (c *MetadataCache) Clear() {
	c.cache.Range(func(key, value any) bool {
		c.cache.Delete(key)
		return true
	})
}

// Len counts entries, stale ones included.
func (c *MetadataCache) Len() int {
	n := 0
	c.cache.Range(func(key, value any) bool {
		n++
		return true
	})
	return n
}

// StartWatchdog sweeps stale entries every check period until StopWatchdog.
// Calling it on a running cache is a no-op.
func (c *MetadataCache) StartWatchdog() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cleanupCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cleanupCancel = cancel
	c.cleanupDone = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				tenantlog.Zero.Debug().Msg("metadata cache watchdog stopped")
				return
			case <-ticker.C:
				c.cleanupStaleEntries()
			}
		}
	}(c.cleanupDone)
}

// StopWatchdog stops the sweeping goroutine and waits for it to exit.
func (c *MetadataCache) StopWatchdog() {
	c.mu.Lock()
	cancel, done := c.cleanupCancel, c.cleanupDone
	c.cleanupCancel, c.cleanupDone = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// cleanupStaleEntries removes entries that are older than ttl
func (c *MetadataCache) cleanupStaleEntries() {
	now := c.now()
	removedCount := 0
	totalCount := 0

	c.cache.Range(func(key, value any) bool {
		totalCount++

		if entry, ok := value.(CachedEntry); ok && now.Sub(entry.StoredAt) > c.ttl {
			if c.cache.CompareAndDelete(key, value) {
				removedCount++
			}
		}
		return true
	})

	tenantlog.Zero.Debug().
		Int("removed_entries", removedCount).
		Int("remaining_entries", totalCount-removedCount).
		Dur("ttl", c.ttl).
		Msg("metadata cache cleanup completed")
}
