// Package cache is a thin Redis/Valkey key-value client used for embedding
// caching.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/rueidis"
)

// ErrKeyNotFound signals a cache miss.
var ErrKeyNotFound = errors.New("key not found")

// Config holds cache connection settings.
type Config struct {
	Addrs    []string
	Password string
}

// Store is a rueidis-backed key-value store.
type Store struct {
	client rueidis.Client
}

// New connects to the cache.
func New(cfg Config) (*Store, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: cfg.Addrs,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache client: %w", err)
	}
	return &Store{client: client}, nil
}

// Get reads a binary value. Returns ErrKeyNotFound on a miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

// Set writes a binary value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Build()).Error()
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Ping checks cache connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping cache: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *Store) Close() {
	s.client.Close()
}
