// Copyright (c) 2026 Townhub. All rights reserved.

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return server, client
}

func TestRedisAttemptRepository(t *testing.T) {
	t.Run("increment_counts_up", func(t *testing.T) {
		_, client := newTestRedis(t)
		repository := NewAttemptRepository(client)

		for i := 1; i <= 3; i++ {
			count, err := repository.Increment(context.Background(), "eva@example.com", 15*time.Minute)
			require.NoError(t, err)
			assert.EqualValues(t, i, count)
		}

		count, err := repository.Count(context.Background(), "eva@example.com")
		require.NoError(t, err)
		assert.EqualValues(t, 3, count)
	})

	t.Run("absent_key_counts_zero", func(t *testing.T) {
		_, client := newTestRedis(t)
		repository := NewAttemptRepository(client)

		count, err := repository.Count(context.Background(), "nobody@example.com")
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)
	})

	t.Run("email_is_normalized_into_one_counter", func(t *testing.T) {
		_, client := newTestRedis(t)
		repository := NewAttemptRepository(client)

		_, err := repository.Increment(context.Background(), "Mixed@Example.COM", 15*time.Minute)
		require.NoError(t, err)
		_, err = repository.Increment(context.Background(), "  mixed@example.com ", 15*time.Minute)
		require.NoError(t, err)

		count, err := repository.Count(context.Background(), "mixed@example.com")
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)
	})

	t.Run("window_expires_counter", func(t *testing.T) {
		server, client := newTestRedis(t)
		repository := NewAttemptRepository(client)

		_, err := repository.Increment(context.Background(), "late@example.com", time.Minute)
		require.NoError(t, err)

		server.FastForward(2 * time.Minute)

		count, err := repository.Count(context.Background(), "late@example.com")
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)
	})

	t.Run("window_anchors_at_first_failure", func(t *testing.T) {
		server, client := newTestRedis(t)
		repository := NewAttemptRepository(client)

		_, err := repository.Increment(context.Background(), "anchor@example.com", time.Minute)
		require.NoError(t, err)

		// A later failure must NOT rearm the window.
		server.FastForward(30 * time.Second)
		_, err = repository.Increment(context.Background(), "anchor@example.com", time.Minute)
		require.NoError(t, err)

		server.FastForward(31 * time.Second)

		count, err := repository.Count(context.Background(), "anchor@example.com")
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)
	})

	t.Run("reset_clears_counter", func(t *testing.T) {
		_, client := newTestRedis(t)
		repository := NewAttemptRepository(client)

		_, err := repository.Increment(context.Background(), "clean@example.com", 15*time.Minute)
		require.NoError(t, err)
		require.NoError(t, repository.Reset(context.Background(), "clean@example.com"))

		count, err := repository.Count(context.Background(), "clean@example.com")
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)
	})
}
