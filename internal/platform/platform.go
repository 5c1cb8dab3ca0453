// Package platform は設定から永続化バックエンドと周辺の接続を組み立てる。
// API サーバーとシミュレーションの両方がこれを使う。
package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-ticket-booking/internal/application"
	"github.com/sanosuguru/go-ticket-booking/internal/config"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/store"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/infrastructure/amqp"
	"github.com/sanosuguru/go-ticket-booking/internal/infrastructure/memory"
	mongoinfra "github.com/sanosuguru/go-ticket-booking/internal/infrastructure/mongo"
	"github.com/sanosuguru/go-ticket-booking/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/go-ticket-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/metrics"
)

// バックエンド名
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendMongo    = "mongo"
)

var ErrUnknownBackend = errors.New("不明なストアバックエンドです")

// Resources は起動時に開いた接続の一式
type Resources struct {
	Backend   string
	Strategy  ticket.LockStrategy
	Store     store.Store
	Redis     *goredis.Client
	Publisher *amqp.Publisher

	metrics *metrics.Metrics
}

// Open は設定に従ってストアを開き、Redis と RabbitMQ が設定されていれば接続する
// m が nil の場合は Prometheus へ出力しない
func Open(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Resources, error) {
	st, backend, strategy, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r := &Resources{Backend: backend, Strategy: strategy, Store: st, metrics: m}

	if cfg.Redis.Enabled {
		client, err := redisinfra.Connect(ctx, &cfg.Redis)
		if err != nil {
			_ = r.Close(ctx)
			return nil, err
		}
		r.Redis = client
		logger.Info("Redisに接続しました", zap.String("addr", cfg.Redis.Addr()))
	}

	if cfg.AMQP.URL != "" {
		p, err := amqp.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			_ = r.Close(ctx)
			return nil, err
		}
		r.Publisher = p
		logger.Info("RabbitMQに接続しました", zap.String("queue", cfg.AMQP.Queue))
	}
	return r, nil
}

// OpenStore は設定のバックエンドでストアを開く。SQL はマイグレーション、MongoDB はインデックス作成まで行う
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, string, ticket.LockStrategy, error) {
	strategy, err := ticket.ParseLockStrategy(cfg.Store.LockStrategy)
	if err != nil {
		return nil, "", "", err
	}
	backend := strings.ToLower(cfg.Store.Backend)

	switch backend {
	case BackendMemory:
		return memory.NewStore(strategy), backend, strategy, nil

	case BackendPostgres, BackendMySQL:
		dbCfg := cfg.Database
		dbCfg.Driver = backend
		db, err := postgres.NewConnection(ctx, &dbCfg)
		if err != nil {
			return nil, "", "", err
		}
		if err := postgres.RunMigrations(db, cfg.Store.MigrationsPath); err != nil {
			_ = db.Close()
			return nil, "", "", err
		}
		logger.Info("データベースに接続しました",
			zap.String("driver", backend), zap.String("lock_strategy", string(strategy)))
		return postgres.NewStore(db, strategy), backend, strategy, nil

	case BackendMongo:
		client, err := mongoinfra.NewClient(ctx, &cfg.Mongo)
		if err != nil {
			return nil, "", "", err
		}
		st := mongoinfra.NewStore(client, cfg.Mongo.Database)
		if err := st.EnsureIndexes(ctx); err != nil {
			_ = st.Close(context.WithoutCancel(ctx))
			return nil, "", "", err
		}
		// 書き込み競合は常に即時失敗となる
		if strategy == ticket.LockBlocking {
			logger.Warn("MongoDBではブロッキングロックを使えないため条件付き更新で動作します")
		}
		return st, backend, ticket.LockConditional, nil
	}
	return nil, "", "", fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Store.Backend)
}

// BookingOptions は予約サービスの設定を組み立てる
func (r *Resources) BookingOptions(cfg *config.Config) application.BookingServiceOptions {
	opts := application.BookingServiceOptions{
		Discount: booking.LoyaltyDiscount{
			Threshold: cfg.Booking.LoyaltyThreshold,
			Rate:      cfg.Booking.LoyaltyRate,
		},
		HoldTTL:          cfg.Booking.HoldTTL,
		OperationTimeout: cfg.Store.OperationTimeout,
		Stats:            metrics.NewBookingStats(r.metrics),
	}
	// nil ポインタをインターフェースに入れない
	if r.Redis != nil {
		opts.Cache = redisinfra.NewAvailabilityCache(r.Redis)
	}
	if r.Publisher != nil {
		opts.Notifier = r.Publisher
	}
	return opts
}

// SeatOptions は座席割り当てサービスの設定を組み立てる
func (r *Resources) SeatOptions(cfg *config.Config) application.SeatServiceOptions {
	opts := application.SeatServiceOptions{
		LockTTL:          cfg.Booking.SeatLockTTL,
		OperationTimeout: cfg.Store.OperationTimeout,
		Stats:            metrics.NewSeatStats(r.metrics),
	}
	if r.Redis != nil {
		opts.Locker = redisinfra.NewSeatLocker(redisinfra.NewLockManager(r.Redis, r.metrics))
	}
	return opts
}

// Close は開いた接続を全て閉じる
func (r *Resources) Close(ctx context.Context) error {
	var errs []error
	if r.Publisher != nil {
		errs = append(errs, r.Publisher.Close())
	}
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	if r.Store != nil {
		errs = append(errs, r.Store.Close(ctx))
	}
	return errors.Join(errs...)
}
