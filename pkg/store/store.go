// Package store provides document persistence for the pipeline services:
// a MongoDB client wrapper, a generic per-aggregate DAO, the persistent
// event outbox, consumer idempotence records, and the versioned migration
// manager. Each service owns a disjoint set of collections inside its own
// database.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Config holds document store connection settings.
type Config struct {
	// URI is the MongoDB connection string.
	URI string `mapstructure:"uri" validate:"required"`

	// Database is the service's database name.
	Database string `mapstructure:"database" validate:"required"`

	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// Client wraps a MongoDB client scoped to one service database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect establishes a connection and verifies it with a ping.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to document store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping document store: %w", err)
	}

	return &Client{
		client: client,
		db:     client.Database(cfg.Database),
	}, nil
}

// Ping verifies the connection is still serving, for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Database returns the underlying service database.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Collection returns a handle to the named collection.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.db.Collection(name)
}

// Close disconnects from the document store.
func (c *Client) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from document store: %w", err)
	}
	return nil
}
