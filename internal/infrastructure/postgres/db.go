package postgres

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-ticket-booking/internal/config"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/logger"
)

const connectRetryInterval = 2 * time.Second

// NewConnection は設定のドライバー（postgres / mysql）でデータベースへ接続する
// 接続できない場合は ConnectRetries 回まで間隔を空けて再試行する
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	attempts := cfg.ConnectRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DataSource())
		if err == nil {
			// 接続プール設定
			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)
			return db, nil
		}
		lastErr = err
		if i == attempts {
			break
		}
		logger.Warn("データベースに接続できません。再試行します",
			zap.String("driver", cfg.Driver),
			zap.Int("attempt", i),
			zap.Int("max_attempts", attempts),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("データベース接続を中断しました: %w", ctx.Err())
		case <-time.After(connectRetryInterval):
		}
	}
	return nil, fmt.Errorf("データベース接続に失敗しました: %w", lastErr)
}

// Ping はデータベース接続を確認する
func Ping(ctx context.Context, db *sqlx.DB) error {
	return db.PingContext(ctx)
}
