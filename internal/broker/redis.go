package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cory-johannsen/battleship/internal/config"
)

// Client is a Broker backed by a single shared Redis connection pool.
// All methods are safe for concurrent use by many sessions.
type Client struct {
	rdb             *redis.Client
	pingMaxElapsed  time.Duration
	pingMaxInterval time.Duration
	logger          *zap.Logger
}

// NewClient creates a Client for the configured Redis instance. No connection
// is made until the first command; call Ping to establish reachability.
//
// Precondition: logger must be non-nil.
func NewClient(cfg config.RedisConfig, logger *zap.Logger) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Client{
		rdb:             rdb,
		pingMaxElapsed:  cfg.PingMaxElapsed,
		pingMaxInterval: cfg.PingMaxInterval,
		logger:          logger,
	}
}

// Ping probes Redis with capped exponential backoff until it answers or the
// elapsed-time budget runs out.
//
// Postcondition: Returns true if Redis answered PING, false otherwise.
func (c *Client) Ping(ctx context.Context) bool {
	return c.PingErr(ctx) == nil
}

// PingErr is Ping with the failure reason. The error wraps ErrUnreachable.
func (c *Client) PingErr(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = c.pingMaxInterval
	b.MaxElapsedTime = c.pingMaxElapsed

	attempt := 0
	op := func() error {
		attempt++
		err := c.rdb.Ping(ctx).Err()
		if err != nil {
			c.logger.Warn("redis ping failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return nil
}

// Health performs a single PING bounded by ctx, for periodic keep-alive checks.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// PopTail implements Queue with RPOP.
func (c *Client) PopTail(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.RPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("rpop %s: %w", key, err)
	}
	return v, true, nil
}

// PushHead implements Queue with LPUSH.
func (c *Client) PushHead(ctx context.Context, key, value string) error {
	if err := c.rdb.LPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", key, err)
	}
	return nil
}

// RemoveOne implements Queue with LREM count 1.
func (c *Client) RemoveOne(ctx context.Context, key, value string) (int64, error) {
	n, err := c.rdb.LRem(ctx, key, 1, value).Result()
	if err != nil {
		return 0, fmt.Errorf("lrem %s: %w", key, err)
	}
	return n, nil
}

// Publish implements PubSub.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// NumSub implements PubSub with PUBSUB NUMSUB.
func (c *Client) NumSub(ctx context.Context, channel string) (int64, error) {
	counts, err := c.rdb.PubSubNumSub(ctx, channel).Result()
	if err != nil {
		return 0, fmt.Errorf("pubsub numsub %s: %w", channel, err)
	}
	return counts[channel], nil
}

// Subscribe implements PubSub. It waits for the subscribe confirmation so the
// caller can rely on receiving every message published after it returns.
func (c *Client) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := c.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	s := &redisSubscription{
		ps:   ps,
		out:  make(chan []byte),
		quit: make(chan struct{}),
	}
	go s.forward(ps.Channel())
	return s, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan []byte
	quit chan struct{}
	once sync.Once
}

func (s *redisSubscription) forward(in <-chan *redis.Message) {
	defer close(s.out)
	for {
		select {
		case <-s.quit:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- []byte(msg.Payload):
			case <-s.quit:
				return
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.out
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.quit)
		err = s.ps.Close()
	})
	return err
}
