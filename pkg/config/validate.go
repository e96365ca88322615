package config

import (
	"errors"
	"fmt"

	"github.com/intellex-clms/tenantdb/pkg/tenantlog"
)

// Validate checks that all values are usable. It expects defaults to have
// been applied.
func (m *Manager) Validate() error {
	switch m.Backend {
	case BackendMongoDB, BackendPostgreSQL:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendMongoDB, BackendPostgreSQL, m.Backend)
	}

	if len(m.Hosts) == 0 {
		return errors.New("mongo_hosts must list at least one host")
	}
	for i, h := range m.Hosts {
		if h == "" {
			return fmt.Errorf("mongo_hosts[%d] is empty", i)
		}
	}

	if m.MaxPoolSize < 1 {
		return errors.New("max_pool_size must be >= 1")
	}
	if m.MinPoolSize < 0 {
		return errors.New("min_pool_size must be >= 0")
	}
	if m.MinPoolSize > m.MaxPoolSize {
		return fmt.Errorf("min_pool_size (%d) cannot exceed max_pool_size (%d)", m.MinPoolSize, m.MaxPoolSize)
	}

	if m.RetryAttempts < 1 {
		return errors.New("retry_attempts must be >= 1")
	}
	if m.RetryDelayMs < 0 {
		return errors.New("retry_delay_ms must be >= 0")
	}
	if m.ConnectionIdleTimeoutMs < 0 {
		return errors.New("connection_idle_timeout_ms must be >= 0")
	}
	if m.CacheTTLSec < 1 {
		return errors.New("cache_ttl_sec must be >= 1")
	}
	if m.MaxLeaseMs < 0 {
		return errors.New("max_lease_ms must be >= 0")
	}
	if m.HealthCheckIntervalMs < 1 || m.CleanupIntervalMs < 1 {
		return errors.New("health_check_interval_ms and cleanup_interval_ms must be >= 1")
	}

	if !tenantlog.ValidLevel(m.LogLevel) {
		return fmt.Errorf("unknown log_level %q", m.LogLevel)
	}
	return nil
}
