package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/intellex-clms/tenantdb/pkg/config"
	"github.com/intellex-clms/tenantdb/pkg/conn"
	"github.com/intellex-clms/tenantdb/pkg/connstate"
	"go.uber.org/atomic"
)

type fakeConn struct {
	id   string
	host string
	db   string

	state  *atomic.Int32
	closes *atomic.Int32
}

var _ conn.Conn = &fakeConn{}

func newFakeConn(id, host, db string) *fakeConn {
	return &fakeConn{
		id:     id,
		host:   host,
		db:     db,
		state:  atomic.NewInt32(int32(connstate.Connected)),
		closes: atomic.NewInt32(0),
	}
}

func (c *fakeConn) ID() string           { return c.id }
func (c *fakeConn) Host() string         { return c.host }
func (c *fakeConn) DatabaseName() string { return c.db }

func (c *fakeConn) State() connstate.State {
	return connstate.State(c.state.Load())
}

func (c *fakeConn) setState(s connstate.State) {
	c.state.Store(int32(s))
}

func (c *fakeConn) Ping(ctx context.Context) error {
	return nil
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.closes.Inc()
	c.setState(connstate.Disconnected)
	return nil
}

type dialRecord struct {
	host     string
	database string
	at       time.Time
}

// fakeDialer hands out fakeConns and records every dial. fail, when set,
// decides whether the n-th dial (counting from zero) fails.
type fakeDialer struct {
	mu       sync.Mutex
	dials    []dialRecord
	conns    []*fakeConn
	handlers []conn.ErrorHandler

	fail  func(n int, host string) error
	delay time.Duration
}

var _ conn.Dialer = &fakeDialer{}

func (d *fakeDialer) Dial(ctx context.Context, host, database string, onError conn.ErrorHandler) (conn.Conn, error) {
	d.mu.Lock()
	n := len(d.dials)
	d.dials = append(d.dials, dialRecord{host: host, database: database, at: time.Now()})
	fail := d.fail
	delay := d.delay
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fail != nil {
		if err := fail(n, host); err != nil {
			return nil, err
		}
	}

	c := newFakeConn(fmt.Sprintf("conn-%d", n), host, database)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns = append(d.conns, c)
	d.handlers = append(d.handlers, onError)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *fakeDialer) records() []dialRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dialRecord(nil), d.dials...)
}

func (d *fakeDialer) opened() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

func (d *fakeDialer) alloc(host string) ConnectionAllocFn {
	return func(ctx context.Context, poolKey string) (conn.Conn, error) {
		return d.Dial(ctx, host, poolKey, nil)
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig(hosts ...string) *config.Manager {
	return &config.Manager{
		Hosts:                    hosts,
		MaxPoolSize:              5,
		MinPoolSize:              2,
		ConnectionIdleTimeoutMs:  1000,
		CacheTTLSec:              60,
		RetryAttempts:            3,
		RetryDelayMs:             1,
		ServerSelectionTimeoutMs: 1000,
		AcquireTimeoutMs:         50,
	}
}

func testLimits() poolLimits {
	return poolLimits{
		MaxSize:        3,
		MinSize:        2,
		IdleTimeout:    time.Second,
		AcquireTimeout: 50 * time.Millisecond,
	}
}

// countingObserver records notifications for assertions.
type countingObserver struct {
	mu           sync.Mutex
	errors       []ConnectionErrorEvent
	healthChecks []HealthCheckEvent
}

func (o *countingObserver) OnConnectionError(ev ConnectionErrorEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, ev)
}

func (o *countingObserver) OnHealthCheck(ev HealthCheckEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.healthChecks = append(o.healthChecks, ev)
}

func (o *countingObserver) connectionErrors() []ConnectionErrorEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ConnectionErrorEvent(nil), o.errors...)
}

func (o *countingObserver) healthCheckEvents() []HealthCheckEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]HealthCheckEvent(nil), o.healthChecks...)
}
