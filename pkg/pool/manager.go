package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/intellex-clms/tenantdb/pkg/config"
	"github.com/intellex-clms/tenantdb/pkg/conn"
	"github.com/intellex-clms/tenantdb/pkg/models/tperror"
	"github.com/intellex-clms/tenantdb/pkg/tenantlog"
	"github.com/sethvargo/go-retry"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const warmConcurrency = 8

// Manager multiplexes tenant connections across the configured hosts.
// It owns one pool per tenant and a TTL cache of resolved databases.
type Manager struct {
	cfg      config.Manager
	limits   poolLimits
	dialer   conn.Dialer
	observer Observer

	pools *poolMap
	hosts *HostRotation
	cache *MetadataCache

	creating  singleflight.Group
	resolving singleflight.Group

	closed *atomic.Bool

	dialAttempts *atomic.Int64
	dialFailures *atomic.Int64

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	loops       sync.WaitGroup

	now func() time.Time
}

type Option func(*Manager)

// WithObserver replaces the default LogObserver.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

func withClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
		m.cache.now = now
	}
}

// NewManager builds a manager over a copy of cfg with defaults applied.
// An invalid configuration is rejected before any pool state is built.
func NewManager(cfg *config.Manager, dialer conn.Dialer, opts ...Option) (*Manager, error) {
	c := *cfg
	c.Hosts = append([]string(nil), cfg.Hosts...)
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:          c,
		limits:       limitsFromConfig(&c),
		dialer:       dialer,
		observer:     LogObserver{},
		pools:        newPoolMap(),
		hosts:        NewHostRotation(c.Hosts),
		cache:        NewMetadataCache(c.CacheTTL(), c.CacheCheckPeriod()),
		closed:       atomic.NewBool(false),
		dialAttempts: atomic.NewInt64(0),
		dialFailures: atomic.NewInt64(0),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) checkOpen() error {
	if m.closed.Load() {
		return tperror.New(tperror.TENANT_MANAGER_CLOSED, "connection manager is closed")
	}
	return nil
}

// GetConnection acquires a connection from the tenant's pool, creating the
// pool on first use. The caller must release it.
func (m *Manager) GetConnection(ctx context.Context, tenantID string) (*PooledConnection, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if tenantID == "" {
		return nil, tperror.New(tperror.TENANT_INVALID_TENANT, "tenant id is empty")
	}

	p, err := m.pool(ctx, PoolKey(tenantID))
	if err != nil {
		return nil, err
	}
	return p.Acquire(ctx)
}

// Release hands pc back to its pool.
func (m *Manager) Release(pc *PooledConnection) error {
	if pc == nil {
		return tperror.New(tperror.TENANT_UNEXPECTED, "release of nil connection")
	}
	return pc.pool.Release(pc)
}

// WithConnection runs fn with a connection of tenantID and releases it
// however fn returns.
func (m *Manager) WithConnection(ctx context.Context, tenantID string, fn func(ctx context.Context, pc *PooledConnection) error) (err error) {
	pc, err := m.GetConnection(ctx, tenantID)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := pc.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	return fn(ctx, pc)
}

func (m *Manager) pool(ctx context.Context, key string) (*tenantPool, error) {
	if p, ok := m.pools.Load(key); ok {
		return p, nil
	}

	ch := m.creating.DoChan(key, func() (any, error) {
		if p, ok := m.pools.Load(key); ok {
			return p, nil
		}

		// creation is shared, so one caller giving up must not fail the rest
		p, err := m.createConnectionPool(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}

		if m.closed.Load() {
			p.close(context.WithoutCancel(ctx))
			return nil, tperror.New(tperror.TENANT_MANAGER_CLOSED, "connection manager is closed")
		}

		actual, loaded := m.pools.LoadOrStore(key, p)
		if loaded {
			p.close(context.WithoutCancel(ctx))
		}

		// Close may have taken its snapshot before the store
		if m.closed.Load() {
			actual.close(context.WithoutCancel(ctx))
			return nil, tperror.New(tperror.TENANT_MANAGER_CLOSED, "connection manager is closed")
		}
		return actual, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*tenantPool), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) createConnectionPool(ctx context.Context, key string) (*tenantPool, error) {
	p := newTenantPool(key, m.limits, m.createNewConnection, m.now)
	if err := p.initialize(ctx); err != nil {
		tenantlog.Zero.Error().
			Err(err).
			Str("pool", key).
			Msg("failed to create connection pool")
		return nil, err
	}

	tenantlog.Zero.Info().
		Str("pool", key).
		Int("min_pool_size", m.limits.MinSize).
		Int("max_pool_size", m.limits.MaxSize).
		Msg("created connection pool")
	return p, nil
}

// createNewConnection dials database poolKey, drawing the next host for every
// attempt and sleeping a fixed delay between attempts.
func (m *Manager) createNewConnection(ctx context.Context, poolKey string) (conn.Conn, error) {
	attempts := max(m.cfg.RetryAttempts, 1)
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(m.cfg.RetryDelay()))

	var (
		ret     conn.Conn
		lastErr error
		attempt int
	)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		host := m.hosts.Next()
		m.dialAttempts.Inc()

		onError := func(err error) {
			m.observer.OnConnectionError(ConnectionErrorEvent{
				PoolKey: poolKey,
				Host:    host,
				Err:     err,
			})
		}

		dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ServerSelectionTimeout())
		defer cancel()

		c, err := m.dialer.Dial(dialCtx, host, poolKey, onError)
		if err != nil {
			m.dialFailures.Inc()
			lastErr = err
			tenantlog.Zero.Error().
				Err(err).
				Str("pool", poolKey).
				Str("host", host).
				Int("attempt", attempt).
				Msg("connection attempt failed")
			return retry.RetryableError(err)
		}

		tenantlog.Zero.Debug().
			Str("pool", poolKey).
			Str("host", host).
			Str("conn", c.ID()).
			Int("attempt", attempt).
			Msg("connected")
		ret = c
		return nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, tperror.Wrap(lastErr, tperror.TENANT_CONNECTION_ERROR,
			fmt.Sprintf("failed to connect to %s after %d attempts", poolKey, attempt))
	}
	return ret, nil
}

// SwitchToTenantDatabase resolves the database and host serving tenantID.
// Results are cached for the configured TTL.
func (m *Manager) SwitchToTenantDatabase(ctx context.Context, tenantID string) (TenantDatabase, error) {
	key := cacheKey(tenantID)
	if info, ok := m.cache.Get(key); ok {
		tenantlog.Zero.Debug().
			Str("tenant", tenantID).
			Str("db", info.DatabaseName).
			Msg("using cached tenant database")
		return info, nil
	}

	ch := m.resolving.DoChan(key, func() (any, error) {
		if info, ok := m.cache.Get(key); ok {
			return info, nil
		}
		return m.resolve(context.WithoutCancel(ctx), tenantID, key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return TenantDatabase{}, res.Err
		}
		return res.Val.(TenantDatabase), nil
	case <-ctx.Done():
		return TenantDatabase{}, ctx.Err()
	}
}

func (m *Manager) resolve(ctx context.Context, tenantID, key string) (TenantDatabase, error) {
	pc, err := m.GetConnection(ctx, tenantID)
	if err != nil {
		tenantlog.Zero.Error().
			Err(err).
			Str("tenant", tenantID).
			Msg("failed to switch to tenant database")
		return TenantDatabase{}, tperror.Wrap(err, tperror.TENANT_RESOLVE_ERROR,
			fmt.Sprintf("unable to connect to database for tenant %s", tenantID))
	}

	info := TenantDatabase{
		DatabaseName: pc.DatabaseName(),
		Host:         pc.Host(),
	}
	m.cache.Set(key, info)

	if err := pc.Release(); err != nil {
		tenantlog.Zero.Warn().Err(err).Str("tenant", tenantID).Msg("failed to release resolving connection")
	}

	tenantlog.Zero.Info().
		Str("tenant", tenantID).
		Str("db", info.DatabaseName).
		Str("host", info.Host).
		Msg("switched to tenant database")
	return info, nil
}

// Warm resolves every tenant once so that their pools exist before traffic
// arrives.
func (m *Manager) Warm(ctx context.Context, tenantIDs ...string) error {
	seen := make(map[string]struct{}, len(tenantIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	for _, id := range tenantIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		g.Go(func() error {
			_, err := m.SwitchToTenantDatabase(gctx, id)
			return err
		})
	}
	return g.Wait()
}

// PerformHealthCheck reports every pool's connection counts to the observer.
func (m *Manager) PerformHealthCheck() {
	for _, p := range m.pools.Snapshot() {
		st := p.View()
		m.observer.OnHealthCheck(HealthCheckEvent{
			PoolKey:           st.PoolKey,
			ActiveConnections: st.ActiveConnections,
			TotalConnections:  st.TotalConnections,
		})
	}
}

// CleanupIdleConnections runs cleanup on every pool in turn. A failing pool
// does not stop the others.
func (m *Manager) CleanupIdleConnections(ctx context.Context) error {
	var errs []error
	for _, p := range m.pools.Snapshot() {
		if err := p.Cleanup(ctx); err != nil {
			tenantlog.Zero.Error().
				Err(err).
				Str("pool", p.Key()).
				Msg("failed to clean up pool")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// View returns statistics of every pool ordered by pool key.
func (m *Manager) View() []Statistics {
	pools := m.pools.Snapshot()
	ret := make([]Statistics, 0, len(pools))
	for _, p := range pools {
		ret = append(ret, p.View())
	}
	return ret
}

func (m *Manager) ForEachPool(cb func(p Pool) error) error {
	for _, p := range m.pools.Snapshot() {
		if err := cb(p); err != nil {
			return err
		}
	}
	return nil
}

var _ PoolIterator = &Manager{}

// DialCounters reports how many dials were attempted and how many failed.
func (m *Manager) DialCounters() (attempts, failures int64) {
	return m.dialAttempts.Load(), m.dialFailures.Load()
}

func (m *Manager) Config() config.Manager {
	return m.cfg
}
