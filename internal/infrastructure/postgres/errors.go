package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
)

// MySQL のエラー番号
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
	mysqlLockNowait      = 3572
)

// isLockConflict はロック待ちのタイムアウト・デッドロック・NOWAIT 失敗かを返す
func isLockConflict(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgerrcode.LockNotAvailable, pgerrcode.DeadlockDetected,
			pgerrcode.SerializationFailure, pgerrcode.QueryCanceled:
			return true
		}
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlLockWaitTimeout, mysqlDeadlock, mysqlLockNowait:
			return true
		}
	}
	return false
}

// isUniqueViolation は一意制約違反かを返す
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgerrcode.UniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	return false
}

// translate はドライバーのエラーをドメインのエラーへ変換する。該当しない場合はそのまま返す
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case isLockConflict(err):
		return fmt.Errorf("%w: %w", ticket.ErrLockConflict, err)
	}
	return err
}

// translateSeat は座席の一意制約違反を ticket.ErrSeatTaken に変換する
func translateSeat(err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %w", ticket.ErrSeatTaken, err)
	}
	return translate(err)
}
