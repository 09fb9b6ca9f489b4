package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisTransport publishes notifications via Redis PUBLISH. Subscribers
// (the delivery tier pushing to connected clients) are external to this
// server; within one channel Redis preserves publish order, which is all
// the fanout contract asks of the transport.
type RedisTransport struct {
	client *redis.Client
}

// NewRedisTransport constructs a transport from a redis URL
// (redis://[:password@]host:port[/db]) and validates connectivity.
func NewRedisTransport(url string) (*RedisTransport, error) {
	if url == "" {
		return nil, errors.New("notify: empty redis url")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("notify: parse redis url: %w", err)
	}
	c := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("notify: redis ping: %w", err)
	}
	return &RedisTransport{client: c}, nil
}

var _ Transport = (*RedisTransport)(nil)

// Publish sends data to the named Redis channel.
func (t *RedisTransport) Publish(ctx context.Context, channel string, data []byte) error {
	if t == nil || t.client == nil {
		return errors.New("notify: nil transport")
	}
	return t.client.Publish(ctx, channel, data).Err()
}

// Close releases the underlying client.
func (t *RedisTransport) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Close()
}
