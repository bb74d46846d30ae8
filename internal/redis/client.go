// Package redis provides the shared Redis connection and the token lock that
// serializes detection scans across service instances.
package redis

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

const dialTimeout = 5 * time.Second

// Config holds Redis connection settings
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client wraps the Redis connection used by the locker and health checks
type Client struct {
	rdb    *redis.Client
	logger ectologger.Logger
}

// NewClient connects to Redis and verifies the connection before returning
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.addr(), err)
	}

	logger.Infof("Connected to Redis at %s", cfg.addr())

	return &Client{rdb: rdb, logger: logger}, nil
}

// Ping reports whether Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the connection
func (c *Client) Close() error {
	return c.rdb.Close()
}
