package booking

import (
	"errors"
	"fmt"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
)

// Booking ドメインのエラー定義
var (
	ErrBookingNotFound        = errors.New("予約が見つかりません")
	ErrBookingNotInProgress   = errors.New("予約は仮押さえ中ではありません")
	ErrBookingNotConfirmed    = errors.New("予約は確定されていません")
	ErrBookingAlreadyCanceled = errors.New("予約は既にキャンセルされています")
	ErrHoldExpired            = errors.New("仮押さえの有効期限が切れています")

	// ErrValidation は入力不正を表す。個別の検証エラーはこれをラップする
	ErrValidation            = errors.New("入力が不正です")
	ErrUserIDRequired        = fmt.Errorf("%w: ユーザーIDは必須です", ErrValidation)
	ErrDeliveryEmailRequired = fmt.Errorf("%w: 送付先メールアドレスは必須です", ErrValidation)
	ErrTicketsRequired       = fmt.Errorf("%w: チケットは1枚以上必要です", ErrValidation)
	ErrDuplicateTicket       = fmt.Errorf("%w: 同じチケットが重複しています", ErrValidation)
	ErrNegativeFinalPrice    = fmt.Errorf("%w: 最終金額が負になります", ErrValidation)

	ErrTicketUnavailable = errors.New("チケットを確保できませんでした")
	ErrBookingFailed     = errors.New("予約に失敗しました")
	ErrStore             = errors.New("ストアでエラーが発生しました")
)

// TicketUnavailableError は特定のチケットを確保できなかったことを表す
type TicketUnavailableError struct {
	Serial string
	Cause  error
}

func (e *TicketUnavailableError) Error() string {
	return fmt.Sprintf("チケット %s を確保できませんでした: %v", e.Serial, e.Cause)
}

func (e *TicketUnavailableError) Is(target error) bool { return target == ErrTicketUnavailable }

func (e *TicketUnavailableError) Unwrap() error { return e.Cause }

// FailedError は予約処理全体の失敗を表し、原因を保持する
type FailedError struct {
	Cause error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("予約に失敗しました: %v", e.Cause)
}

func (e *FailedError) Is(target error) bool { return target == ErrBookingFailed }

func (e *FailedError) Unwrap() error { return e.Cause }

// IsRetryable は同じチケットで再試行する価値がある失敗かを返す
func IsRetryable(err error) bool {
	return errors.Is(err, ticket.ErrLockConflict)
}
