package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const statePrefix = "oauth_state:"

// RedisStateStore keeps state values under oauth_state:<state> and consumes
// them with GETDEL, so each value is accepted at most once.
type RedisStateStore struct {
	client    redis.UniversalClient
	opTimeout time.Duration
}

// NewRedisStateStore returns a StateStore on client. opTimeout bounds each call;
// zero means 2s.
func NewRedisStateStore(client redis.UniversalClient, opTimeout time.Duration) *RedisStateStore {
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}
	return &RedisStateStore{client: client, opTimeout: opTimeout}
}

func (s *RedisStateStore) Save(ctx context.Context, state, provider string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	ok, err := s.client.SetNX(ctx, statePrefix+state, provider, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("state %q already exists", state)
	}
	return nil
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	provider, err := s.client.GetDel(ctx, statePrefix+state).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrInvalidState
		}
		return "", err
	}
	return provider, nil
}
