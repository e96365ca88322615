package pool

import "github.com/intellex-clms/tenantdb/pkg/tenantlog"

// ConnectionErrorEvent reports an error raised by an established connection.
type ConnectionErrorEvent struct {
	PoolKey string
	Host    string
	Err     error
}

// HealthCheckEvent is emitted once per pool on every health check tick.
type HealthCheckEvent struct {
	PoolKey           string
	ActiveConnections int
	TotalConnections  int
}

// Observer receives manager notifications. Implementations are called
// synchronously from driver callbacks and the monitor loop, so they must
// return quickly.
type Observer interface {
	OnConnectionError(ev ConnectionErrorEvent)
	OnHealthCheck(ev HealthCheckEvent)
}

// LogObserver writes every notification to the process log.
type LogObserver struct{}

var _ Observer = LogObserver{}

func (LogObserver) OnConnectionError(ev ConnectionErrorEvent) {
	tenantlog.Zero.Error().
		Err(ev.Err).
		Str("pool", ev.PoolKey).
		Str("host", ev.Host).
		Msg("error in connection pool")
}

func (LogObserver) OnHealthCheck(ev HealthCheckEvent) {
	tenantlog.Zero.Info().
		Str("pool", ev.PoolKey).
		Int("active", ev.ActiveConnections).
		Int("total", ev.TotalConnections).
		Msg("health check")
}

// ObserverFuncs adapts plain functions. Nil fields are skipped.
type ObserverFuncs struct {
	ConnectionError func(ev ConnectionErrorEvent)
	HealthCheck     func(ev HealthCheckEvent)
}

var _ Observer = ObserverFuncs{}

func (o ObserverFuncs) OnConnectionError(ev ConnectionErrorEvent) {
	if o.ConnectionError != nil {
		o.ConnectionError(ev)
	}
}

func (o ObserverFuncs) OnHealthCheck(ev HealthCheckEvent) {
	if o.HealthCheck != nil {
		o.HealthCheck(ev)
	}
}

// MultiObserver fans notifications out in order.
type MultiObserver []Observer

var _ Observer = MultiObserver{}

func (m MultiObserver) OnConnectionError(ev ConnectionErrorEvent) {
	for _, o := range m {
		o.OnConnectionError(ev)
	}
}

func (m MultiObserver) OnHealthCheck(ev HealthCheckEvent) {
	for _, o := range m {
		o.OnHealthCheck(ev)
	}
}
