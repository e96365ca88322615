package conn

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/intellex-clms/tenantdb/pkg/config"
	"github.com/intellex-clms/tenantdb/pkg/connstate"
	"github.com/intellex-clms/tenantdb/pkg/tenantlog"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDialer opens one mongo client per pooled connection.
type MongoDialer struct {
	Credentials            config.Credentials
	ServerSelectionTimeout time.Duration
}

var _ Dialer = &MongoDialer{}

type mongoConn struct {
	id       string
	host     string
	database string

	client *mongo.Client
	state  stateHolder
}

var _ Conn = &mongoConn{}

// Dial connects and pings the primary, so a returned Conn is connected.
func (d *MongoDialer) Dial(ctx context.Context, host, database string, onError ErrorHandler) (Conn, error) {
	c := &mongoConn{
		id:       uuid.NewString(),
		host:     host,
		database: database,
		state:    newStateHolder(connstate.Connecting),
	}

	opts := options.Client().
		ApplyURI(BuildMongoURI(host, database, d.Credentials)).
		SetServerSelectionTimeout(d.ServerSelectionTimeout).
		SetServerMonitor(c.serverMonitor(onError))

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		c.state.store(connstate.Errored)
		return nil, fmt.Errorf("connect %s/%s: %w", host, database, err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		c.state.store(connstate.Errored)
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping %s/%s: %w", host, database, err)
	}

	c.client = client
	c.state.transition(connstate.Connecting, connstate.Connected)

	tenantlog.Zero.Debug().
		Str("conn", c.id).
		Str("host", host).
		Str("db", database).
		Msg("mongo connection established")
	return c, nil
}

// serverMonitor reports heartbeat failures after the connection is up and
// recovers the state once heartbeats succeed again.
func (c *mongoConn) serverMonitor(onError ErrorHandler) *event.ServerMonitor {
	return &event.ServerMonitor{
		ServerHeartbeatFailed: func(e *event.ServerHeartbeatFailedEvent) {
			if c.state.transition(connstate.Connected, connstate.Errored) && onError != nil {
				onError(e.Failure)
			}
		},
		ServerHeartbeatSucceeded: func(*event.ServerHeartbeatSucceededEvent) {
			c.state.transition(connstate.Errored, connstate.Connected)
		},
	}
}

func (c *mongoConn) ID() string {
	return c.id
}

func (c *mongoConn) Host() string {
	return c.host
}

func (c *mongoConn) DatabaseName() string {
	return c.database
}

func (c *mongoConn) State() connstate.State {
	return c.state.load()
}

// Database exposes the bound database to callers that type-assert on it.
func (c *mongoConn) Database() *mongo.Database {
	return c.client.Database(c.database)
}

func (c *mongoConn) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		c.state.transition(connstate.Connected, connstate.Errored)
		return err
	}
	c.state.transition(connstate.Errored, connstate.Connected)
	return nil
}

func (c *mongoConn) Close(ctx context.Context) error {
	c.state.store(connstate.Disconnecting)
	err := c.client.Disconnect(ctx)
	c.state.store(connstate.Disconnected)
	return err
}
