package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
)

const codeWriteConflict = 112

// isConflict はトランザクション同士の書き込み競合かを返す
func isConflict(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorCode(codeWriteConflict) || se.HasErrorLabel("TransientTransactionError")
	}
	return false
}

// translate はドライバーのエラーをドメインのエラーへ変換する
func translate(err error) error {
	if err != nil && isConflict(err) {
		return fmt.Errorf("%w: %w", ticket.ErrLockConflict, err)
	}
	return err
}

// translateSeat は seat_key の一意インデックス違反を ticket.ErrSeatTaken に変換する
func translateSeat(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", ticket.ErrSeatTaken, err)
	}
	return translate(err)
}
