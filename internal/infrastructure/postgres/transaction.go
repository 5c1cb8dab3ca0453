package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
)

// TxWrapper は sqlx.Tx を transaction.Tx インターフェースでラップする
// このトランザクションで行ロックを取得したチケットを記録する
type TxWrapper struct {
	*sqlx.Tx
	locked map[string]struct{} // チケットID
	done   bool
}

// Commit はトランザクションをコミットする
func (t *TxWrapper) Commit() error {
	if t.done {
		return transaction.ErrTxClosed
	}
	t.done = true
	if err := t.Tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return transaction.ErrTxClosed
		}
		return translateSeat(err)
	}
	return nil
}

// Rollback はトランザクションをロールバックする。終了済みなら何もしない
func (t *TxWrapper) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.Tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (t *TxWrapper) lock(ticketID string) { t.locked[ticketID] = struct{}{} }

func (t *TxWrapper) holds(ticketID string) bool {
	_, ok := t.locked[ticketID]
	return ok
}

// TxManager は sqlx.DB を使用したトランザクションマネージャー
type TxManager struct {
	db *sqlx.DB
}

// NewTxManager は新しい TxManager を作成する
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// Begin は新しいトランザクションを開始する
func (m *TxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &TxWrapper{Tx: tx, locked: make(map[string]struct{})}, nil
}

// unwrapTx は transaction.Tx から TxWrapper を取り出す
func unwrapTx(tx transaction.Tx) (*TxWrapper, error) {
	w, ok := tx.(*TxWrapper)
	if !ok || w == nil {
		return nil, fmt.Errorf("SQLストアのトランザクションではありません: %T", tx)
	}
	if w.done {
		return nil, transaction.ErrTxClosed
	}
	return w, nil
}
