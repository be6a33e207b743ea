package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/canteenhq/canteen"
)

type client struct {
	conn *Connection
}

// NewClient returns the shared-cache client bound to the singleton
// connection. Call OpenConnection first.
func NewClient() *Client {
	return &Client{client{conn: connection}}
}

// Client implements canteen.Cache, canteen.Limiter and canteen.PubSub over
// the shared Redis instance.
type Client struct {
	client
}

// keyNotFound will detect whether error signifies key not found by Redis.
func (c client) keyNotFound(err error) bool {
	return err == redis.Nil
}

// Ping tests connectivity for redis (PONG should be returned).
func (c client) Ping(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	return c.conn.Client.Ping(ctx).Err()
}

// Set executes the redis Set command.
func (c client) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if c.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	// No caching if expiration < 0.
	if expiration < 0 {
		return nil
	}
	return c.conn.Client.Set(ctx, key, value, expiration).Err()
}

// Get executes the redis Get command.
func (c client) Get(ctx context.Context, key string) (bool, string, error) {
	if c.conn == nil {
		return false, "", fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	s, err := c.conn.Client.Get(ctx, key).Result()
	// Convert key not found into returning false and nil err.
	r := err == nil
	if c.keyNotFound(err) {
		err = nil
	}
	return r, s, err
}

// SetStruct serializes value to JSON and executes the redis Set command.
func (c client) SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if c.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	if expiration < 0 {
		return nil
	}
	ba, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.conn.Client.Set(ctx, key, ba, expiration).Err()
}

// GetStruct executes the redis Get command and deserializes into target.
func (c client) GetStruct(ctx context.Context, key string, target interface{}) (bool, error) {
	if c.conn == nil {
		return false, fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	if target == nil {
		return false, fmt.Errorf("target can't be nil")
	}
	ba, err := c.conn.Client.Get(ctx, key).Bytes()
	if err == nil {
		err = json.Unmarshal(ba, target)
	}
	r := err == nil
	if c.keyNotFound(err) {
		err = nil
	}
	return r, err
}

// Delete executes the redis Del command. Missing keys are tolerated.
func (c client) Delete(ctx context.Context, keys []string) error {
	if c.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	err := c.conn.Client.Del(ctx, keys...).Err()
	if c.keyNotFound(err) {
		err = nil
	}
	return err
}

// Observe implements the sliding-window attempt counter over a sorted set.
// One pipelined batch: prune entries older than now-window, read the
// cardinality, add this attempt, refresh the TTL. The returned count is the
// cardinality read before this attempt was added.
func (c client) Observe(ctx context.Context, key string, now float64, window time.Duration) (int64, error) {
	if c.conn == nil {
		return 0, fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	windowStart := now - window.Seconds()

	pipe := c.conn.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatFloat(windowStart, 'f', -1, 64))
	card := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: now, Member: strconv.FormatFloat(now, 'f', -1, 64)})
	pipe.Expire(ctx, key, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return card.Val(), nil
}

// Publish sends payload to all live subscribers of channel.
func (c client) Publish(ctx context.Context, channel string, payload string) error {
	if c.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	return c.conn.Client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a subscription on channel. Messages published before the
// subscription is live are not delivered.
func (c client) Subscribe(ctx context.Context, channel string) (canteen.Subscription, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	ps := c.conn.Client.Subscribe(ctx, channel)
	// Force the SUBSCRIBE round trip so the caller knows it is live.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return &subscription{ps: ps}, nil
}

type subscription struct {
	ps *redis.PubSub
}

// Poll waits up to timeout for one message; ok=false on a quiet interval.
func (s *subscription) Poll(ctx context.Context, timeout time.Duration) (string, bool, error) {
	m, err := s.ps.ReceiveTimeout(ctx, timeout)
	if err != nil {
		// go-redis surfaces poll timeouts as net timeout errors.
		if ne, isNetErr := err.(interface{ Timeout() bool }); isNetErr && ne.Timeout() {
			return "", false, nil
		}
		return "", false, err
	}
	switch msg := m.(type) {
	case *redis.Message:
		return msg.Payload, true, nil
	default:
		// Subscription confirmations and pings are not channel messages.
		return "", false, nil
	}
}

func (s *subscription) Close() error {
	return s.ps.Close()
}
