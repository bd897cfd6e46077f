package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultSendersKey is the Redis set holding registered sender identities
const DefaultSendersKey = "chatlogs:senders"

// KnownSenders remembers, across runs, which sender identities already have
// a participant row
type KnownSenders struct {
	client redis.Cmdable
	key    string
}

// NewKnownSenders creates a known-senders set stored under key
func NewKnownSenders(client redis.Cmdable, key string) *KnownSenders {
	if key == "" {
		key = DefaultSendersKey
	}
	return &KnownSenders{client: client, key: key}
}

// Contains reports whether identity was registered before
func (s *KnownSenders) Contains(ctx context.Context, identity string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, identity).Result()
	if err != nil {
		return false, fmt.Errorf("checking sender %s: %w", identity, err)
	}
	return ok, nil
}

// Add records identity as registered
func (s *KnownSenders) Add(ctx context.Context, identity string) error {
	if err := s.client.SAdd(ctx, s.key, identity).Err(); err != nil {
		return fmt.Errorf("adding sender %s: %w", identity, err)
	}
	return nil
}

// Reset forgets every identity, forcing the next run to consult the store
func (s *KnownSenders) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("resetting known senders: %w", err)
	}
	return nil
}

// NewClient connects to Redis and checks the connection
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}
