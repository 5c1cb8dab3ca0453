package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-ticket-booking/internal/config"
)

// 座席ロックと在庫キャッシュはどちらも短い操作なので、タイムアウトは短めにする
const (
	dialTimeout = 3 * time.Second
	ioTimeout   = time.Second
)

func newClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
	})
}

// Connect はRedisクライアントを作成して疎通を確認する。失敗した場合はクライアントを閉じてエラーを返す
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := newClient(cfg)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redis(%s)への接続に失敗しました: %w", cfg.Addr(), err)
	}
	return client, nil
}
