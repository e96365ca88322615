package conn

import (
	"context"

	"github.com/intellex-clms/tenantdb/pkg/connstate"
	"go.uber.org/atomic"
)

// Conn is one live connection to a tenant's logical database.
type Conn interface {
	ID() string
	Host() string
	DatabaseName() string

	State() connstate.State

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ErrorHandler receives errors raised by an established connection.
// It is called from the driver's goroutines and must not block.
type ErrorHandler func(err error)

// Dialer opens connections to database on host.
type Dialer interface {
	Dial(ctx context.Context, host, database string, onError ErrorHandler) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, host, database string, onError ErrorHandler) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, host, database string, onError ErrorHandler) (Conn, error) {
	return f(ctx, host, database, onError)
}

// stateHolder tracks a connection's readiness across driver callbacks.
type stateHolder struct {
	v *atomic.Int32
}

func newStateHolder(s connstate.State) stateHolder {
	return stateHolder{v: atomic.NewInt32(int32(s))}
}

func (h stateHolder) load() connstate.State {
	return connstate.State(h.v.Load())
}

func (h stateHolder) store(s connstate.State) {
	h.v.Store(int32(s))
}

// transition moves from one state to another only if the current state
// still matches from.
func (h stateHolder) transition(from, to connstate.State) bool {
	return h.v.CompareAndSwap(int32(from), int32(to))
}
