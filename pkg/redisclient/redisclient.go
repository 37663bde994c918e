package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alim08/landing/pkg/logger"
	"github.com/alim08/landing/pkg/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

const (
	stateClosed int32 = iota
	stateOpen
	stateHalfOpen

	failureThreshold = 5
	openCooldown     = 30 * time.Second
)

type Client struct {
	rdb *redis.Client
	// Circuit breaker state
	failureCount int64
	lastFailure  int64
	state        int32
}

// New constructs a Client from a redis:// URL with pool defaults
func New(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	opt.PoolSize = 20
	opt.MinIdleConns = 5
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.IdleTimeout = 5 * time.Minute
	return &Client{rdb: redis.NewClient(opt)}, nil
}

// withMetrics wraps operations with metrics collection
func (c *Client) withMetrics(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RedisOperationDuration.WithLabelValues(operation, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RedisErrors.WithLabelValues(operation).Inc()
	}
	return err
}

// allow reports whether a call may go through. An open breaker lets one
// trial call through after the cooldown.
func (c *Client) allow() bool {
	if atomic.LoadInt32(&c.state) != stateOpen {
		return true
	}
	last := time.Unix(atomic.LoadInt64(&c.lastFailure), 0)
	if time.Since(last) < openCooldown {
		return false
	}
	return atomic.CompareAndSwapInt32(&c.state, stateOpen, stateHalfOpen)
}

// record updates the breaker with the outcome of a call
func (c *Client) record(err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		n := atomic.AddInt64(&c.failureCount, 1)
		atomic.StoreInt64(&c.lastFailure, time.Now().Unix())
		if n >= failureThreshold || atomic.LoadInt32(&c.state) == stateHalfOpen {
			if atomic.SwapInt32(&c.state, stateOpen) != stateOpen {
				logger.Log.Warn("circuit breaker opened", zap.String("operation", "redis"), zap.Error(err))
			}
		}
		return
	}
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, stateClosed)
}

// Allow implements a fixed-window counter: it returns false once key has
// been hit more than limit times within window.
func (c *Client) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	var count int64
	err := c.withMetrics("rate_limit", func() error {
		if !c.allow() {
			return ErrCircuitBreakerOpen
		}
		n, err := c.rdb.Incr(ctx, key).Result()
		if err == nil && n == 1 {
			err = c.rdb.Expire(ctx, key, window).Err()
		}
		c.record(err)
		count = n
		return err
	})
	if err != nil {
		return false, err
	}
	return count <= int64(limit), nil
}

// Publish sends msg on channel, retrying transient failures with backoff
func (c *Client) Publish(ctx context.Context, channel string, msg interface{}) error {
	return c.withMetrics("publish", func() error {
		if !c.allow() {
			return ErrCircuitBreakerOpen
		}

		op := func() error {
			ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
			err := c.rdb.Publish(ctx, channel, msg).Err()
			c.record(err)
			return err
		}
		return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx))
	})
}

// Subscribe creates a pub/sub subscription
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.withMetrics("ping", func() error {
		return c.rdb.Ping(ctx).Err()
	})
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}
