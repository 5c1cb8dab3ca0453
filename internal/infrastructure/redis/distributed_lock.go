package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/metrics"
)

var (
	// ErrLockNotAcquired は他の処理がロックを保持していることを表す
	ErrLockNotAcquired = fmt.Errorf("%w: ロックを取得できませんでした", ticket.ErrLockConflict)
	ErrLockNotOwned    = errors.New("ロックの所有者ではありません")
)

// 所有者確認と削除をアトミックに実行する
const releaseScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// DistributedLock は Redis を使用した分散ロック
type DistributedLock struct {
	manager *LockManager
	key     string
	value   string
}

// LockManager は分散ロックを管理する
type LockManager struct {
	client   *redis.Client
	metrics  *metrics.Metrics
	newToken func() string
}

// NewLockManager は LockManager を作成する。m が nil の場合はメトリクスを記録しない
func NewLockManager(client *redis.Client, m *metrics.Metrics) *LockManager {
	return &LockManager{
		client:   client,
		metrics:  m,
		newToken: func() string { return uuid.New().String() },
	}
}

// AcquireLock はロックを取得する。待機はせず、取得できなければ ErrLockNotAcquired を返す
func (m *LockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*DistributedLock, error) {
	start := time.Now()
	lockKey := fmt.Sprintf("lock:%s", key)
	lockValue := m.newToken()

	// SetNX を使用してロックを取得（キーが存在しない場合のみ設定）
	ok, err := m.client.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		m.observe("acquire", "error", start)
		return nil, fmt.Errorf("ロック取得に失敗: %w", err)
	}
	if !ok {
		m.observe("acquire", "failed", start)
		return nil, ErrLockNotAcquired
	}
	m.observe("acquire", "success", start)

	return &DistributedLock{manager: m, key: lockKey, value: lockValue}, nil
}

// Release はロックを解放する
func (l *DistributedLock) Release(ctx context.Context) error {
	start := time.Now()
	result, err := l.manager.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Int()
	if err != nil {
		l.manager.observe("release", "error", start)
		return fmt.Errorf("ロック解放に失敗: %w", err)
	}
	if result == 0 {
		l.manager.observe("release", "failed", start)
		return ErrLockNotOwned
	}
	l.manager.observe("release", "success", start)
	return nil
}

func (m *LockManager) observe(operation, status string, start time.Time) {
	if m.metrics == nil {
		return
	}
	m.metrics.DistributedLockDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}
