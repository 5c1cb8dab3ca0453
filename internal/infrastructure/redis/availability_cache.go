package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// AvailabilityCache はイベントごとの空きチケット数をキャッシュする
type AvailabilityCache struct {
	client *redis.Client
}

func NewAvailabilityCache(client *redis.Client) *AvailabilityCache {
	return &AvailabilityCache{client: client}
}

// GetAvailableCount はイベントの空きチケット数をキャッシュから取得する
func (c *AvailabilityCache) GetAvailableCount(ctx context.Context, eventID string) (int, error) {
	val, err := c.client.Get(ctx, availableCountKey(eventID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// SetAvailableCount はイベントの空きチケット数をキャッシュに保存する
func (c *AvailabilityCache) SetAvailableCount(ctx context.Context, eventID string, count int, ttl time.Duration) error {
	if err := c.client.Set(ctx, availableCountKey(eventID), count, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はイベントのキャッシュを無効化する
func (c *AvailabilityCache) Invalidate(ctx context.Context, eventID string) error {
	if err := c.client.Del(ctx, availableCountKey(eventID)).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func availableCountKey(eventID string) string {
	return fmt.Sprintf("tickets:available:%s", eventID)
}
