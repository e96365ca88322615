package config

// Default values for optional configuration fields.
const (
	DefaultBackend                  = BackendMongoDB
	DefaultHost                     = "localhost:27017"
	DefaultMaxPoolSize              = 10
	DefaultMinPoolSize              = 2
	DefaultConnectionIdleTimeoutMs  = 300000
	DefaultCacheTTLSec              = 60
	DefaultRetryAttempts            = 3
	DefaultRetryDelayMs             = 1000
	DefaultServerSelectionTimeoutMs = 5000
	DefaultAcquireTimeoutMs         = 5000
	DefaultHealthCheckIntervalMs    = 60000
	DefaultCleanupIntervalMs        = 300000
	DefaultSSLMode                  = "prefer"
	DefaultLogLevel                 = "info"
)

// ApplyDefaults fills every zero field with its default.
func (m *Manager) ApplyDefaults() {
	if m.LogLevel == "" {
		m.LogLevel = DefaultLogLevel
	}
	if m.Backend == "" {
		m.Backend = DefaultBackend
	}
	if len(m.Hosts) == 0 {
		m.Hosts = []string{DefaultHost}
	}

	// Pool sizing
	if m.MaxPoolSize == 0 {
		m.MaxPoolSize = DefaultMaxPoolSize
	}
	if m.MinPoolSize == 0 {
		m.MinPoolSize = min(DefaultMinPoolSize, m.MaxPoolSize)
	}

	// Timeouts and retries
	if m.ConnectionIdleTimeoutMs == 0 {
		m.ConnectionIdleTimeoutMs = DefaultConnectionIdleTimeoutMs
	}
	if m.CacheTTLSec == 0 {
		m.CacheTTLSec = DefaultCacheTTLSec
	}
	if m.RetryAttempts == 0 {
		m.RetryAttempts = DefaultRetryAttempts
	}
	if m.RetryDelayMs == 0 {
		m.RetryDelayMs = DefaultRetryDelayMs
	}
	if m.ServerSelectionTimeoutMs == 0 {
		m.ServerSelectionTimeoutMs = DefaultServerSelectionTimeoutMs
	}
	if m.AcquireTimeoutMs == 0 {
		m.AcquireTimeoutMs = DefaultAcquireTimeoutMs
	}

	// Monitor
	if m.HealthCheckIntervalMs == 0 {
		m.HealthCheckIntervalMs = DefaultHealthCheckIntervalMs
	}
	if m.CleanupIntervalMs == 0 {
		m.CleanupIntervalMs = DefaultCleanupIntervalMs
	}

	if m.Backend == BackendPostgreSQL && m.Credentials.SSLMode == "" {
		m.Credentials.SSLMode = DefaultSSLMode
	}
}
