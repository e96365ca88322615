package pool

import (
	"context"
	"time"

	"github.com/intellex-clms/tenantdb/pkg/conn"
)

// Pool is the set of connections serving one tenant database.
type Pool interface {
	Key() string

	Acquire(ctx context.Context) (*PooledConnection, error)
	Release(pc *PooledConnection) error
	Discard(ctx context.Context, pc *PooledConnection) error

	Cleanup(ctx context.Context) error

	ForEach(cb func(pc *PooledConnection) error) error
	View() Statistics
}

type PoolIterator interface {
	ForEachPool(cb func(p Pool) error) error
}

// ConnectionAllocFn opens one connection to the database named poolKey.
type ConnectionAllocFn func(ctx context.Context, poolKey string) (conn.Conn, error)

// TenantDatabase is what a tenant resolves to.
type TenantDatabase struct {
	DatabaseName string `json:"db_name"`
	Host         string `json:"host"`
}

// PoolKey names both a tenant's pool and its logical database.
func PoolKey(tenantID string) string {
	return "tenant_" + tenantID
}

func cacheKey(tenantID string) string {
	return "tenant_db_" + tenantID
}

// PooledConnection is a connection owned by exactly one tenant pool.
// Acquisition fields are guarded by the owning pool's mutex.
type PooledConnection struct {
	conn.Conn

	pool *tenantPool

	acquired bool
	removed  bool
	lastUsed time.Time
	leasedAt time.Time
}

func (pc *PooledConnection) PoolKey() string {
	return pc.pool.key
}

func (pc *PooledConnection) Acquired() bool {
	pc.pool.mu.Lock()
	defer pc.pool.mu.Unlock()
	return pc.acquired
}

func (pc *PooledConnection) LastUsed() time.Time {
	pc.pool.mu.Lock()
	defer pc.pool.mu.Unlock()
	return pc.lastUsed
}

// Release hands the connection back to its pool.
func (pc *PooledConnection) Release() error {
	return pc.pool.Release(pc)
}
