// Package redis is the Redis request/reply transport: participants push a
// ready envelope onto the coordinator's inbox list and block on a private
// reply list until the coordinator answers.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultInbox is the list the coordinator listens on.
	DefaultInbox = "quorumgate:inbox"
	// DefaultReplyTTL bounds how long an unread reply survives.
	DefaultReplyTTL = time.Minute

	// pollBlock is how long a BRPOP waits before the loop re-checks its context.
	pollBlock = 2 * time.Second
)

// ReplyPrefix is the key prefix of every reply list created for inbox. The
// coordinator routes addresses with this prefix back to Redis.
func ReplyPrefix(inbox string) string {
	return inbox + ":reply:"
}

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

// DefaultConfig returns connection defaults. Every parked participant holds a
// connection in BRPOP, so the pool is sized for the coordinator side only.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:         addr,
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// Connect opens a client and verifies it with a ping.
func Connect(cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
