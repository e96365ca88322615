package pool

import (
	"context"
	"sync"
	"time"

	"github.com/caio/go-tdigest"
	"github.com/intellex-clms/tenantdb/pkg/config"
	"github.com/intellex-clms/tenantdb/pkg/conn"
	"github.com/intellex-clms/tenantdb/pkg/connstate"
	"github.com/intellex-clms/tenantdb/pkg/models/tperror"
	"github.com/intellex-clms/tenantdb/pkg/tenantlog"
	"golang.org/x/sync/errgroup"
)

type poolLimits struct {
	MaxSize        int
	MinSize        int
	IdleTimeout    time.Duration
	MaxLease       time.Duration
	AcquireTimeout time.Duration
}

func limitsFromConfig(cfg *config.Manager) poolLimits {
	return poolLimits{
		MaxSize:        cfg.MaxPoolSize,
		MinSize:        cfg.MinPoolSize,
		IdleTimeout:    cfg.ConnectionIdleTimeout(),
		MaxLease:       cfg.MaxLease(),
		AcquireTimeout: cfg.AcquireTimeout(),
	}
}

/* pool for single tenant database */

type tenantPool struct {
	mu    sync.Mutex
	conns []*PooledConnection

	// connections being dialed on behalf of this pool
	pending int
	closed  bool

	queue chan struct{}

	alloc ConnectionAllocFn

	key    string
	limits poolLimits

	acquisitions int64
	waits        *tdigest.TDigest

	now func() time.Time
}

var _ Pool = &tenantPool{}

func newTenantPool(key string, limits poolLimits, allocFn ConnectionAllocFn, now func() time.Time) *tenantPool {
	waits, _ := tdigest.New()

	ret := &tenantPool{
		key:    key,
		limits: limits,
		alloc:  allocFn,
		waits:  waits,
		now:    now,
	}

	ret.queue = make(chan struct{}, limits.MaxSize)
	for tok := 0; tok < limits.MaxSize; tok++ {
		ret.queue <- struct{}{}
	}

	tenantlog.Zero.Debug().
		Str("pool", key).
		Int("tokens", limits.MaxSize).
		Msg("initialized pool queue with tokens")

	return ret
}

func (p *tenantPool) Key() string {
	return p.key
}

// initialize opens the minimum number of connections in parallel.
// Either all of them are kept or none is.
func (p *tenantPool) initialize(ctx context.Context) error {
	opened := make([]conn.Conn, p.limits.MinSize)

	g, gctx := errgroup.WithContext(ctx)
	for i := range opened {
		g.Go(func() error {
			c, err := p.alloc(gctx, p.key)
			if err != nil {
				return err
			}
			opened[i] = c
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, c := range opened {
			if c == nil {
				continue
			}
			if cerr := c.Close(context.WithoutCancel(ctx)); cerr != nil {
				tenantlog.Zero.Error().Err(cerr).Str("pool", p.key).Msg("failed to close connection of failed pool")
			}
		}
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range opened {
		p.conns = append(p.conns, p.wrap(c))
	}
	return nil
}

func (p *tenantPool) wrap(c conn.Conn) *PooledConnection {
	return &PooledConnection{
		Conn:     c,
		pool:     p,
		lastUsed: p.now(),
	}
}

func (p *tenantPool) takeToken(ctx context.Context) error {
	select {
	case <-p.queue:
		return nil
	default:
	}

	tenantlog.Zero.Debug().
		Str("pool", p.key).
		Msg("all connections of pool are acquired, waiting")

	timer := time.NewTimer(p.limits.AcquireTimeout)
	defer timer.Stop()

	select {
	case <-p.queue:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return tperror.Newf(tperror.TENANT_POOL_EXHAUSTED,
			"pool %s: all %d connections are acquired", p.key, p.limits.MaxSize)
	}
}

func (p *tenantPool) markAcquiredLocked(pc *PooledConnection, start time.Time) {
	now := p.now()
	pc.acquired = true
	pc.lastUsed = now
	pc.leasedAt = now

	p.acquisitions++
	_ = p.waits.Add(float64(now.Sub(start)) / float64(time.Millisecond))
}

func (p *tenantPool) removeLocked(pc *PooledConnection) {
	for i, c := range p.conns {
		if c == pc {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			break
		}
	}
	pc.removed = true
}

// evictForGrowthLocked picks a free connection that is not ready when the
// pool has no room for one more.
func (p *tenantPool) evictForGrowthLocked() *PooledConnection {
	if len(p.conns)+p.pending < p.limits.MaxSize {
		return nil
	}
	for _, pc := range p.conns {
		if !pc.acquired && !pc.State().Acquirable() {
			p.removeLocked(pc)
			return pc
		}
	}
	return nil
}

// Acquire returns the first free ready connection, or dials a new one.
func (p *tenantPool) Acquire(ctx context.Context) (*PooledConnection, error) {
	start := p.now()

	if err := p.takeToken(ctx); err != nil {
		return nil, err
	}

	var victim *PooledConnection

	/* reuse cached connection, if any */
	{
		p.mu.Lock()

		if p.closed {
			p.queue <- struct{}{}
			p.mu.Unlock()
			return nil, tperror.Newf(tperror.TENANT_MANAGER_CLOSED, "pool %s is closed", p.key)
		}

		for _, pc := range p.conns {
			if pc.acquired || !pc.State().Acquirable() {
				continue
			}
			p.markAcquiredLocked(pc, start)
			p.mu.Unlock()

			tenantlog.Zero.Debug().
				Str("pool", p.key).
				Str("conn", pc.ID()).
				Str("host", pc.Host()).
				Msg("reuse free connection")
			return pc, nil
		}

		victim = p.evictForGrowthLocked()
		p.pending++
		p.mu.Unlock()
	}

	if victim != nil {
		p.closeConn(ctx, victim, "evicted to make room for a new connection")
	}

	// do not hold the lock while a new connection is dialed
	c, err := p.alloc(ctx, p.key)

	p.mu.Lock()
	p.pending--
	if err != nil {
		// return acquired token
		p.queue <- struct{}{}
		p.mu.Unlock()
		return nil, err
	}
	if p.closed {
		p.queue <- struct{}{}
		p.mu.Unlock()

		if cerr := c.Close(context.WithoutCancel(ctx)); cerr != nil {
			tenantlog.Zero.Error().Err(cerr).Str("pool", p.key).Msg("failed to close connection of closed pool")
		}
		return nil, tperror.Newf(tperror.TENANT_MANAGER_CLOSED, "pool %s is closed", p.key)
	}

	pc := p.wrap(c)
	p.markAcquiredLocked(pc, start)
	p.conns = append(p.conns, pc)
	total := len(p.conns)
	p.mu.Unlock()

	tenantlog.Zero.Debug().
		Str("pool", p.key).
		Str("conn", pc.ID()).
		Str("host", pc.Host()).
		Int("total", total).
		Msg("acquired new connection")
	return pc, nil
}

// Release marks pc free. Connections of a closed pool are closed instead.
func (p *tenantPool) Release(pc *PooledConnection) error {
	p.mu.Lock()

	if pc.pool != p {
		p.mu.Unlock()
		return tperror.Newf(tperror.TENANT_UNEXPECTED,
			"connection %s does not belong to pool %s", pc.ID(), p.key)
	}

	if pc.removed && !pc.acquired {
		// reclaimed or discarded while held, its token is already back
		p.mu.Unlock()
		tenantlog.Zero.Debug().
			Str("pool", p.key).
			Str("conn", pc.ID()).
			Msg("release of a connection that was already removed from pool")
		return nil
	}

	if !pc.acquired {
		p.mu.Unlock()
		return tperror.Newf(tperror.TENANT_DOUBLE_RELEASE,
			"connection %s of pool %s is not acquired", pc.ID(), p.key)
	}

	/* acquired tok, release it */
	pc.acquired = false
	pc.lastUsed = p.now()
	p.queue <- struct{}{}

	closed := p.closed
	if closed {
		p.removeLocked(pc)
	}
	p.mu.Unlock()

	if closed {
		p.closeConn(context.Background(), pc, "released after pool was closed")
	}
	return nil
}

// Discard closes pc and removes it from the pool, returning its token if it
// was acquired.
func (p *tenantPool) Discard(ctx context.Context, pc *PooledConnection) error {
	p.mu.Lock()
	if pc.pool != p {
		p.mu.Unlock()
		return tperror.Newf(tperror.TENANT_UNEXPECTED,
			"connection %s does not belong to pool %s", pc.ID(), p.key)
	}
	if pc.removed {
		// double free
		p.mu.Unlock()
		return nil
	}
	if pc.acquired {
		pc.acquired = false
		p.queue <- struct{}{}
	}
	p.removeLocked(pc)
	p.mu.Unlock()

	tenantlog.Zero.Debug().
		Str("pool", p.key).
		Str("conn", pc.ID()).
		Str("host", pc.Host()).
		Msg("discard connection from pool")

	/* do not hold mutex while closing connection */
	return pc.Close(ctx)
}

// Cleanup drops idle free connections and connections leased for too long,
// then tops the pool back up to its minimum size.
func (p *tenantPool) Cleanup(ctx context.Context) error {
	now := p.now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}

	var idle, reclaimed []*PooledConnection
	kept := make([]*PooledConnection, 0, len(p.conns))
	for _, pc := range p.conns {
		switch {
		case !pc.acquired && now.Sub(pc.lastUsed) > p.limits.IdleTimeout:
			idle = append(idle, pc)
		case pc.acquired && p.limits.MaxLease > 0 && now.Sub(pc.leasedAt) > p.limits.MaxLease:
			pc.acquired = false
			p.queue <- struct{}{}
			reclaimed = append(reclaimed, pc)
		default:
			kept = append(kept, pc)
		}
	}
	for _, pc := range idle {
		pc.removed = true
	}
	for _, pc := range reclaimed {
		pc.removed = true
	}
	p.conns = kept

	need := p.limits.MinSize - (len(p.conns) + p.pending)
	if need > 0 {
		p.pending += need
	} else {
		need = 0
	}
	p.mu.Unlock()

	for _, pc := range idle {
		p.closeConn(ctx, pc, "idle timeout")
	}
	for _, pc := range reclaimed {
		tenantlog.Zero.Warn().
			Str("pool", p.key).
			Str("conn", pc.ID()).
			Dur("max_lease", p.limits.MaxLease).
			Msg("connection held past max lease, reclaiming")
		p.closeConn(ctx, pc, "lease expired")
	}

	if need == 0 {
		return nil
	}
	return p.refill(ctx, need)
}

// refill dials n connections in parallel. The caller has already counted
// them as pending. Successful dials are kept even if some fail, as long as
// the pool stays within its maximum size.
func (p *tenantPool) refill(ctx context.Context, n int) error {
	opened := make([]conn.Conn, n)

	var g errgroup.Group
	for i := range opened {
		g.Go(func() error {
			c, err := p.alloc(ctx, p.key)
			if err != nil {
				return err
			}
			opened[i] = c
			return nil
		})
	}
	err := g.Wait()

	var surplus []conn.Conn

	p.mu.Lock()
	p.pending -= n
	closed := p.closed

	// acquires may have dialed while the refill was in flight
	room := p.limits.MaxSize - (len(p.conns) + p.pending)
	for _, c := range opened {
		if c == nil {
			continue
		}
		if closed || room <= 0 {
			surplus = append(surplus, c)
			continue
		}
		p.conns = append(p.conns, p.wrap(c))
		room--
	}
	total := len(p.conns)
	p.mu.Unlock()

	for _, c := range surplus {
		if cerr := c.Close(ctx); cerr != nil {
			tenantlog.Zero.Error().Err(cerr).Str("pool", p.key).Msg("failed to close surplus connection")
		}
	}
	if closed {
		return nil
	}

	tenantlog.Zero.Debug().
		Str("pool", p.key).
		Int("requested", n).
		Int("surplus", len(surplus)).
		Int("total", total).
		Err(err).
		Msg("refilled pool")
	return err
}

// close marks the pool closed and closes its free connections. Acquired
// connections are closed as they are released. It returns how many
// connections were still acquired.
func (p *tenantPool) close(ctx context.Context) int {
	p.mu.Lock()
	p.closed = true

	var free []*PooledConnection
	held := make([]*PooledConnection, 0, len(p.conns))
	for _, pc := range p.conns {
		if pc.acquired {
			held = append(held, pc)
		} else {
			pc.removed = true
			free = append(free, pc)
		}
	}
	p.conns = held
	p.mu.Unlock()

	for _, pc := range free {
		p.closeConn(ctx, pc, "pool closed")
	}
	return len(held)
}

func (p *tenantPool) closeConn(ctx context.Context, pc *PooledConnection, reason string) {
	if err := pc.Close(ctx); err != nil {
		tenantlog.Zero.Error().
			Err(err).
			Str("pool", p.key).
			Str("conn", pc.ID()).
			Str("reason", reason).
			Msg("failed to close connection")
		return
	}
	tenantlog.Zero.Debug().
		Str("pool", p.key).
		Str("conn", pc.ID()).
		Str("reason", reason).
		Msg("closed connection")
}

func (p *tenantPool) ForEach(cb func(pc *PooledConnection) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pc := range p.conns {
		if err := cb(pc); err != nil {
			return err
		}
	}
	return nil
}

func (p *tenantPool) View() Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Statistics{
		PoolKey:            p.key,
		TotalConnections:   len(p.conns),
		PendingConnections: p.pending,
		QueueResidualSize:  len(p.queue),
		MaxPoolSize:        p.limits.MaxSize,
		MinPoolSize:        p.limits.MinSize,
		Acquisitions:       p.acquisitions,
	}
	for _, pc := range p.conns {
		if pc.State() == connstate.Connected {
			st.ActiveConnections++
		}
		if pc.acquired {
			st.AcquiredConnections++
		} else {
			st.FreeConnections++
		}
	}
	if p.waits.Count() > 0 {
		st.AcquireWaitP50 = time.Duration(p.waits.Quantile(0.5) * float64(time.Millisecond))
		st.AcquireWaitP99 = time.Duration(p.waits.Quantile(0.99) * float64(time.Millisecond))
	}
	return st
}
