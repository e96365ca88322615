package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/intellex-clms/tenantdb/pkg/tenantlog"
)

const (
	BackendMongoDB    = "mongodb"
	BackendPostgreSQL = "postgresql"
)

// Manager configures the tenant connection manager. Every field is optional;
// zero values are replaced by defaults on load.
type Manager struct {
	LogLevel      string `json:"log_level" toml:"log_level" yaml:"log_level"`
	LogFile       string `json:"log_file" toml:"log_file" yaml:"log_file"`
	PrettyLogging bool   `json:"pretty_logging" toml:"pretty_logging" yaml:"pretty_logging"`

	Backend string   `json:"backend" toml:"backend" yaml:"backend"`
	Hosts   []string `json:"mongo_hosts" toml:"mongo_hosts" yaml:"mongo_hosts"`

	MaxPoolSize int `json:"max_pool_size" toml:"max_pool_size" yaml:"max_pool_size"`
	MinPoolSize int `json:"min_pool_size" toml:"min_pool_size" yaml:"min_pool_size"`

	ConnectionIdleTimeoutMs  int64 `json:"connection_idle_timeout_ms" toml:"connection_idle_timeout_ms" yaml:"connection_idle_timeout_ms"`
	CacheTTLSec              int64 `json:"cache_ttl_sec" toml:"cache_ttl_sec" yaml:"cache_ttl_sec"`
	RetryAttempts            int   `json:"retry_attempts" toml:"retry_attempts" yaml:"retry_attempts"`
	RetryDelayMs             int64 `json:"retry_delay_ms" toml:"retry_delay_ms" yaml:"retry_delay_ms"`
	ServerSelectionTimeoutMs int64 `json:"server_selection_timeout_ms" toml:"server_selection_timeout_ms" yaml:"server_selection_timeout_ms"`
	AcquireTimeoutMs         int64 `json:"acquire_timeout_ms" toml:"acquire_timeout_ms" yaml:"acquire_timeout_ms"`
	MaxLeaseMs               int64 `json:"max_lease_ms" toml:"max_lease_ms" yaml:"max_lease_ms"`

	HealthCheckIntervalMs int64 `json:"health_check_interval_ms" toml:"health_check_interval_ms" yaml:"health_check_interval_ms"`
	CleanupIntervalMs     int64 `json:"cleanup_interval_ms" toml:"cleanup_interval_ms" yaml:"cleanup_interval_ms"`

	Credentials Credentials `json:"credentials" toml:"credentials" yaml:"credentials"`

	MetricsAddr string   `json:"metrics_addr" toml:"metrics_addr" yaml:"metrics_addr"`
	WarmTenants []string `json:"warm_tenants" toml:"warm_tenants" yaml:"warm_tenants"`
}

// Credentials are shared by every tenant database on every host.
type Credentials struct {
	User       string `json:"user" toml:"user" yaml:"user"`
	Password   string `json:"password" toml:"password" yaml:"password"`
	AuthSource string `json:"auth_source" toml:"auth_source" yaml:"auth_source"`
	SSLMode    string `json:"sslmode" toml:"sslmode" yaml:"sslmode"`
}

// LoadManagerCfg reads, defaults and validates the config at cfgPath.
func LoadManagerCfg(cfgPath string) (*Manager, error) {
	file, err := os.Open(cfgPath)
	if err != nil {
		return nil, err
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	cfg := &Manager{}
	if err := initConfig(file, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", cfgPath, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tenantlog.Zero.Debug().
		Str("path", cfgPath).
		Str("config", cfg.String()).
		Msg("running config")
	return cfg, nil
}

// String renders the config as JSON with the password masked.
func (m *Manager) String() string {
	masked := *m
	if masked.Credentials.Password != "" {
		masked.Credentials.Password = "********"
	}
	configBytes, err := json.Marshal(masked)
	if err != nil {
		return fmt.Sprintf("%+v", masked)
	}
	return string(configBytes)
}

func (m *Manager) ConnectionIdleTimeout() time.Duration {
	return time.Duration(m.ConnectionIdleTimeoutMs) * time.Millisecond
}

func (m *Manager) CacheTTL() time.Duration {
	return time.Duration(m.CacheTTLSec) * time.Second
}

// CacheCheckPeriod is how often stale cache entries are swept: a fifth of
// the TTL.
func (m *Manager) CacheCheckPeriod() time.Duration {
	return m.CacheTTL() / 5
}

func (m *Manager) RetryDelay() time.Duration {
	return time.Duration(m.RetryDelayMs) * time.Millisecond
}

func (m *Manager) ServerSelectionTimeout() time.Duration {
	return time.Duration(m.ServerSelectionTimeoutMs) * time.Millisecond
}

func (m *Manager) AcquireTimeout() time.Duration {
	return time.Duration(m.AcquireTimeoutMs) * time.Millisecond
}

// MaxLease is zero when forced reclaim of long-held connections is off.
func (m *Manager) MaxLease() time.Duration {
	return time.Duration(m.MaxLeaseMs) * time.Millisecond
}

func (m *Manager) HealthCheckInterval() time.Duration {
	return time.Duration(m.HealthCheckIntervalMs) * time.Millisecond
}

func (m *Manager) CleanupInterval() time.Duration {
	return time.Duration(m.CleanupIntervalMs) * time.Millisecond
}
