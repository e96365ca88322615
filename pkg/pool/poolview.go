package pool

import "time"

// Statistics is a point-in-time view of one tenant pool.
type Statistics struct {
	PoolKey string `json:"pool_key"`

	TotalConnections    int `json:"total_connections"`
	ActiveConnections   int `json:"active_connections"`
	AcquiredConnections int `json:"acquired_connections"`
	FreeConnections     int `json:"free_connections"`
	PendingConnections  int `json:"pending_connections"`

	// QueueResidualSize is how many more connections may be acquired
	// before callers start waiting.
	QueueResidualSize int `json:"queue_residual_size"`
	MaxPoolSize       int `json:"max_pool_size"`
	MinPoolSize       int `json:"min_pool_size"`

	Acquisitions   int64         `json:"acquisitions"`
	AcquireWaitP50 time.Duration `json:"acquire_wait_p50"`
	AcquireWaitP99 time.Duration `json:"acquire_wait_p99"`
}
