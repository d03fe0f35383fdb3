// Copyright (c) 2026 Townhub. All rights reserved.

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/townhubhq/townhub/internal/platform/constants"
)

// # Failed Login Attempt Repository

// RedisAttemptRepository implements AttemptRepository using Redis.
//
// Counters are keyed by NORMALIZED email so "User@x.com" and "user@x.com"
// share one counter, and they carry the lockout-window TTL so stale failures
// expire without any cleanup job.
type RedisAttemptRepository struct {
	client *redis.Client
}

// NewAttemptRepository creates a new Redis-backed AttemptRepository.
func NewAttemptRepository(client *redis.Client) *RedisAttemptRepository {
	return &RedisAttemptRepository{client: client}
}

/*
Increment adds one failed attempt for the identity and returns the new count.

Description: INCR and EXPIRE NX run in one pipelined round trip. EXPIRE NX
arms the TTL only when the key has none, so the lockout window is anchored to
the FIRST failure, not reset by every subsequent one.

Parameters:
  - context: context.Context
  - email: string
  - window: time.Duration

Returns:
  - int64: Updated failure count
  - error: Execution errors
*/
func (repository *RedisAttemptRepository) Increment(context context.Context, email string, window time.Duration) (int64, error) {
	key := attemptKey(email)

	pipeline := repository.client.Pipeline()
	incrCommand := pipeline.Incr(context, key)
	pipeline.ExpireNX(context, key, window)

	if _, err := pipeline.Exec(context); err != nil {
		return 0, fmt.Errorf("redis_attempt_increment_failed: %w", err)
	}

	return incrCommand.Val(), nil
}

/*
Count returns the current failure count for the identity.

Description: An absent key means zero failures, never an error.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - int64: Current count
  - error: Connectivity errors
*/
func (repository *RedisAttemptRepository) Count(context context.Context, email string) (int64, error) {
	count, err := repository.client.Get(context, attemptKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis_attempt_count_failed: %w", err)
	}

	return count, nil
}

/*
Reset clears the failure counter after a successful authentication.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - error: Deletion failures
*/
func (repository *RedisAttemptRepository) Reset(context context.Context, email string) error {
	if err := repository.client.Del(context, attemptKey(email)).Err(); err != nil {
		return fmt.Errorf("redis_attempt_reset_failed: %w", err)
	}

	return nil
}

// attemptKey builds the counter key for a normalized identity.
func attemptKey(email string) string {
	return constants.RedisPrefixFailedLogins + strings.ToLower(strings.TrimSpace(email))
}
