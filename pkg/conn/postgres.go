package conn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/intellex-clms/tenantdb/pkg/config"
	"github.com/intellex-clms/tenantdb/pkg/connstate"
	"github.com/intellex-clms/tenantdb/pkg/tenantlog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/tracelog"
)

// PostgresDialer opens tenant databases on PostgreSQL hosts.
type PostgresDialer struct {
	Credentials    config.Credentials
	ConnectTimeout time.Duration
	TraceLevel     tracelog.LogLevel
}

var _ Dialer = &PostgresDialer{}

type postgresConn struct {
	id       string
	host     string
	database string

	conn  *pgx.Conn
	state stateHolder
}

var _ Conn = &postgresConn{}

func (d *PostgresDialer) Dial(ctx context.Context, host, database string, onError ErrorHandler) (Conn, error) {
	pc := &postgresConn{
		id:       uuid.NewString(),
		host:     host,
		database: database,
		state:    newStateHolder(connstate.Connecting),
	}

	cfg, err := pgx.ParseConfig(BuildPostgresURI(host, database, d.Credentials))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	cfg.ConnectTimeout = d.ConnectTimeout
	cfg.Tracer = &tracelog.TraceLog{
		Logger:   &tenantlog.ZeroTraceLogger{},
		LogLevel: d.TraceLevel,
	}
	cfg.OnPgError = pc.pgErrorHandler(onError)

	c, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		pc.state.store(connstate.Errored)
		return nil, fmt.Errorf("connect %s/%s: %w", host, database, err)
	}

	pc.conn = c
	pc.state.transition(connstate.Connecting, connstate.Connected)

	tenantlog.Zero.Debug().
		Str("conn", pc.id).
		Str("host", host).
		Str("db", database).
		Msg("postgres connection established")
	return pc, nil
}

// sessionFatal reports whether pgErr leaves the session unusable. Statement
// level errors such as constraint violations do not.
func sessionFatal(pgErr *pgconn.PgError) bool {
	switch pgErr.Severity {
	case "FATAL", "PANIC":
		return true
	}
	/* connection exception or operator intervention */
	return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
}

func (c *postgresConn) pgErrorHandler(onError ErrorHandler) pgconn.PgErrorHandler {
	return func(_ *pgconn.PgConn, pgErr *pgconn.PgError) bool {
		if !sessionFatal(pgErr) {
			return true
		}
		if c.state.transition(connstate.Connected, connstate.Errored) && onError != nil {
			onError(pgErr)
		}
		return pgErr.Severity != "FATAL" && pgErr.Severity != "PANIC"
	}
}

func (c *postgresConn) ID() string {
	return c.id
}

func (c *postgresConn) Host() string {
	return c.host
}

func (c *postgresConn) DatabaseName() string {
	return c.database
}

func (c *postgresConn) State() connstate.State {
	if c.conn.IsClosed() && c.state.load() == connstate.Connected {
		c.state.store(connstate.Disconnected)
	}
	return c.state.load()
}

// Conn exposes the driver connection to callers that type-assert on it.
func (c *postgresConn) Conn() *pgx.Conn {
	return c.conn
}

func (c *postgresConn) Ping(ctx context.Context) error {
	if err := c.conn.Ping(ctx); err != nil {
		c.state.transition(connstate.Connected, connstate.Errored)
		return err
	}
	c.state.transition(connstate.Errored, connstate.Connected)
	return nil
}

func (c *postgresConn) Close(ctx context.Context) error {
	c.state.store(connstate.Disconnecting)
	err := c.conn.Close(ctx)
	c.state.store(connstate.Disconnected)
	return err
}
