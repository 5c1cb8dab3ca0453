package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityCache(t *testing.T) {
	ctx := context.Background()
	const key = "tickets:available:event-1"

	t.Run("キャッシュミス時はErrCacheMissを返す", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewAvailabilityCache(client)
		mock.ExpectGet(key).RedisNil()

		_, err := cache.GetAvailableCount(ctx, "event-1")
		assert.ErrorIs(t, err, ErrCacheMiss)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("保存した値を取得できる", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewAvailabilityCache(client)
		mock.ExpectSet(key, 42, 30*time.Second).SetVal("OK")
		mock.ExpectGet(key).SetVal("42")

		require.NoError(t, cache.SetAvailableCount(ctx, "event-1", 42, 30*time.Second))
		count, err := cache.GetAvailableCount(ctx, "event-1")
		require.NoError(t, err)
		assert.Equal(t, 42, count)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("無効化できる", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewAvailabilityCache(client)
		mock.ExpectDel(key).SetVal(1)

		require.NoError(t, cache.Invalidate(ctx, "event-1"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Redisのエラーはキャッシュミスと区別される", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewAvailabilityCache(client)
		mock.ExpectGet(key).SetErr(errors.New("timeout"))

		_, err := cache.GetAvailableCount(ctx, "event-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCacheMiss)
	})
}
