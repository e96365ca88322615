package pool

import (
	"context"
	"time"

	"github.com/intellex-clms/tenantdb/pkg/tenantlog"
)

// Start launches the health check and idle cleanup loops along with the
// metadata cache watchdog. They run until Close or ctx is done.
func (m *Manager) Start(ctx context.Context) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.cancel != nil || m.closed.Load() {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.cache.StartWatchdog()

	m.loops.Add(2)
	go m.runEvery(ctx, "health check", m.cfg.HealthCheckInterval(), func(context.Context) {
		m.PerformHealthCheck()
	})
	go m.runEvery(ctx, "idle cleanup", m.cfg.CleanupInterval(), func(ctx context.Context) {
		_ = m.CleanupIdleConnections(ctx)
	})

	tenantlog.Zero.Info().
		Dur("health_check_interval", m.cfg.HealthCheckInterval()).
		Dur("cleanup_interval", m.cfg.CleanupInterval()).
		Dur("cache_check_period", m.cfg.CacheCheckPeriod()).
		Msg("connection manager started")
}

func (m *Manager) runEvery(ctx context.Context, name string, interval time.Duration, tick func(ctx context.Context)) {
	defer m.loops.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			tenantlog.Zero.Debug().Str("loop", name).Msg("monitor loop stopped")
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// Close stops the background loops and drains every pool. Free connections
// are closed now, acquired ones when they are released. Later calls are
// no-ops and the manager rejects further acquisitions.
func (m *Manager) Close(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	m.lifecycleMu.Lock()
	cancel := m.cancel
	m.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.loops.Wait()
	m.cache.StopWatchdog()

	held := 0
	pools := m.pools.Snapshot()
	for _, p := range pools {
		held += p.close(ctx)
	}

	tenantlog.Zero.Info().
		Int("pools", len(pools)).
		Int("still_acquired", held).
		Msg("connection manager closed")
	return nil
}
