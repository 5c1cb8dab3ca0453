package redis

import (
	"context"
	"time"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
)

// SeatLocker は座席単位の分散ロック。複数プロセスで同じ座席を同時に割り当てないようにする
type SeatLocker struct {
	manager *LockManager
}

func NewSeatLocker(manager *LockManager) *SeatLocker {
	return &SeatLocker{manager: manager}
}

// LockSeat は座席のロックを取得し、解放関数を返す
func (s *SeatLocker) LockSeat(ctx context.Context, area, row, seat string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := s.manager.AcquireLock(ctx, seatLockKey(area, row, seat), ttl)
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

func seatLockKey(area, row, seat string) string {
	return "seat:" + ticket.SeatKey(area, row, seat)
}
