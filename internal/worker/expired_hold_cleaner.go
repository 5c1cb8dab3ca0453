package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-ticket-booking/internal/pkg/logger"
)

// HoldCleaner は期限切れの仮押さえを解放するインターフェース
type HoldCleaner interface {
	CancelExpiredHolds(ctx context.Context) (int, error)
}

// ExpiredHoldCleaner は期限切れの仮押さえを定期的にキャンセルし、チケットを在庫へ戻すワーカー
type ExpiredHoldCleaner struct {
	bookingService HoldCleaner
	interval       time.Duration
	stopCh         chan struct{}
	doneCh         chan struct{}
}

// NewExpiredHoldCleaner は新しいクリーナーを作成
func NewExpiredHoldCleaner(bs HoldCleaner, interval time.Duration) *ExpiredHoldCleaner {
	return &ExpiredHoldCleaner{
		bookingService: bs,
		interval:       interval,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start はクリーナーを開始し、停止するまでブロックする
func (c *ExpiredHoldCleaner) Start(ctx context.Context) {
	logger.Info("仮押さえクリーナー開始", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("仮押さえクリーナー停止（コンテキストキャンセル）")
			return
		case <-c.stopCh:
			logger.Info("仮押さえクリーナー停止（シグナル受信）")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// Stop はクリーナーを停止し、終了を待つ
func (c *ExpiredHoldCleaner) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *ExpiredHoldCleaner) cleanup(ctx context.Context) {
	log := logger.Get()

	count, err := c.bookingService.CancelExpiredHolds(ctx)
	if count > 0 {
		log.Info("期限切れの仮押さえをキャンセル", zap.Int("count", count))
	}
	if err != nil {
		// 一部の予約だけ失敗した場合も次の周期で再試行される
		log.Error("仮押さえのクリーンアップ失敗", zap.Error(err))
		return
	}
	if count == 0 {
		log.Debug("期限切れの仮押さえなし")
	}
}
