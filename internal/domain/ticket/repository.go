package ticket

import (
	"context"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
)

// Repository はチケットリポジトリのインターフェース
type Repository interface {
	// Lock はシリアル番号のチケットに排他権を取得し、予約状態にする（トランザクション必須）
	// 予約可能でなければ ErrNotAvailable、他のトランザクションと競合した場合は ErrLockConflict を返す
	// SQL 実装は ErrNotAvailable でも行ロックをロールバックまで保持するので、呼び出し側はエラー時に必ず中断する
	Lock(ctx context.Context, tx transaction.Tx, serialNumber string) (*Ticket, error)

	// LockByBooking は予約に紐付く全チケットをシリアル番号順にロックする（トランザクション必須）
	LockByBooking(ctx context.Context, tx transaction.Tx, bookingID string) ([]*Ticket, error)

	// Update はロック済みのチケットを更新する（トランザクション必須）
	Update(ctx context.Context, tx transaction.Tx, t *Ticket) error

	// FindSoldBySeat は指定座席を持つ販売済みチケットを取得する
	FindSoldBySeat(ctx context.Context, tx transaction.Tx, area, row, seat string) ([]*Ticket, error)

	// FindUnseated は予約・カテゴリに属する座席未割り当ての販売済みチケットをロックして取得する
	FindUnseated(ctx context.Context, tx transaction.Tx, bookingID, categoryID string) (*Ticket, error)

	// GetBySerial はシリアル番号からチケットを取得する
	GetBySerial(ctx context.Context, serialNumber string) (*Ticket, error)

	// ListByEvent はイベントのチケット一覧を取得する
	ListByEvent(ctx context.Context, eventID string) ([]*Ticket, error)

	// ListAvailableSerials はイベントの予約可能なチケットのシリアル番号を取得する
	ListAvailableSerials(ctx context.Context, eventID string) ([]string, error)

	// CountByStatus はイベントの状態別チケット数を取得する
	CountByStatus(ctx context.Context, eventID string, status Status) (int, error)
}
