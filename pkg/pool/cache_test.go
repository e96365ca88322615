package pool

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
)

func newTestCache(clock *fakeClock) *MetadataCache {
	c := NewMetadataCache(time.Minute, 12*time.Second)
	c.now = clock.Now
	return c
}

func TestMetadataCacheSetGet(t *testing.T) {
	assert := assert.New(t)

	cache := newTestCache(newFakeClock())
	info := TenantDatabase{DatabaseName: "tenant_acme", Host: "h1"}

	_, ok := cache.Get("tenant_db_acme")
	assert.False(ok)

	cache.Set("tenant_db_acme", info)

	got, ok := cache.Get("tenant_db_acme")
	assert.True(ok)
	assert.Equal(info, got)
}

func TestMetadataCacheExpiresAfterTTL(t *testing.T) {
	assert := assert.New(t)

	clock := newFakeClock()
	cache := newTestCache(clock)
	cache.Set("tenant_db_acme", TenantDatabase{DatabaseName: "tenant_acme", Host: "h1"})

	clock.Advance(time.Minute)
	_, ok := cache.Get("tenant_db_acme")
	assert.True(ok, "entry exactly TTL old is still fresh")

	clock.Advance(time.Second)
	_, ok = cache.Get("tenant_db_acme")
	assert.False(ok)
	assert.Equal(0, cache.Len(), "stale entry is dropped on read")
}

func TestMetadataCacheRemoveAndClear(t *testing.T) {
	assert := assert.New(t)

	cache := newTestCache(newFakeClock())
	for i := 0; i < 5; i++ {
		cache.Set(fmt.Sprintf("tenant_db_%d", i), TenantDatabase{DatabaseName: fmt.Sprintf("tenant_%d", i)})
	}
	assert.Equal(5, cache.Len())

	cache.Remove("tenant_db_0")
	assert.Equal(4, cache.Len())

	cache.Clear()
	assert.Equal(0, cache.Len())
}

func TestMetadataCacheCleanupStaleEntries(t *testing.T) {
	assert := assert.New(t)

	clock := newFakeClock()
	cache := newTestCache(clock)

	cache.Set("tenant_db_old", TenantDatabase{DatabaseName: "tenant_old"})
	clock.Advance(45 * time.Second)
	cache.Set("tenant_db_new", TenantDatabase{DatabaseName: "tenant_new"})
	clock.Advance(30 * time.Second)

	cache.cleanupStaleEntries()

	assert.Equal(1, cache.Len())
	_, ok := cache.Get("tenant_db_new")
	assert.True(ok)
}

func TestMetadataCacheWatchdog(t *testing.T) {
	defer leaktest.Check(t)()

	cache := NewMetadataCache(20*time.Millisecond, 5*time.Millisecond)
	cache.StartWatchdog()
	defer cache.StopWatchdog()

	// second start is a no-op
	cache.StartWatchdog()

	cache.Set("tenant_db_acme", TenantDatabase{DatabaseName: "tenant_acme"})

	assert.Eventually(t, func() bool {
		return cache.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMetadataCacheStopWatchdogIdempotent(t *testing.T) {
	cache := NewMetadataCache(time.Minute, time.Second)

	cache.StopWatchdog()
	cache.StartWatchdog()
	cache.StopWatchdog()
	cache.StopWatchdog()
}

func TestMetadataCacheConcurrentAccess(t *testing.T) {
	cache := newTestCache(newFakeClock())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("tenant_db_%d", i%4)
			cache.Set(key, TenantDatabase{DatabaseName: key})
			_, _ = cache.Get(key)
			cache.cleanupStaleEntries()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, cache.Len())
}
