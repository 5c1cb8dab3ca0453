package booking

import (
	"context"
	"time"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
)

// Repository は予約リポジトリのインターフェース
type Repository interface {
	// Create は新しい予約を作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, b *Booking) error

	// Lock は予約を排他ロックして取得する（トランザクション必須）
	Lock(ctx context.Context, tx transaction.Tx, id string) (*Booking, error)

	// Update はロック済みの予約を更新する（トランザクション必須）
	Update(ctx context.Context, tx transaction.Tx, b *Booking) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Booking, error)

	// CountConfirmedByUser はユーザーの確定済み予約数を取得する
	CountConfirmedByUser(ctx context.Context, userID string) (int, error)

	// ListByStatus は状態別に予約一覧を取得する
	ListByStatus(ctx context.Context, status Status) ([]*Booking, error)

	// ListExpiredHolds は期限切れの仮押さえ予約を取得する
	ListExpiredHolds(ctx context.Context, now time.Time) ([]*Booking, error)
}
