package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
)

// Tx はセッションのマルチドキュメントトランザクションを transaction.Tx として扱う
// このトランザクションで書き込み（=ロック）したチケットを記録する
type Tx struct {
	ctx    context.Context
	sess   mongo.Session
	locked map[string]struct{} // チケットID
	done   bool
}

// Begin はスナップショット読み取り・majority 書き込みのトランザクションを開始する
func (s *Store) Begin(ctx context.Context) (transaction.Tx, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("セッション開始に失敗: %w", err)
	}
	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := sess.StartTransaction(opts); err != nil {
		sess.EndSession(ctx)
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	return &Tx{ctx: ctx, sess: sess, locked: make(map[string]struct{})}, nil
}

// Commit はトランザクションをコミットし、セッションを終了する
func (tx *Tx) Commit() error {
	if tx.done {
		return transaction.ErrTxClosed
	}
	tx.done = true
	defer tx.sess.EndSession(context.WithoutCancel(tx.ctx))
	if err := tx.sess.CommitTransaction(tx.ctx); err != nil {
		return translateSeat(err)
	}
	return nil
}

// Rollback はトランザクションを破棄する。終了済みなら何もしない
func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	ctx := context.WithoutCancel(tx.ctx)
	defer tx.sess.EndSession(ctx)
	return tx.sess.AbortTransaction(ctx)
}

// with は呼び出しごとのコンテキストにセッションを結び付ける
func (tx *Tx) with(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, tx.sess)
}

func (tx *Tx) lock(ticketID string) { tx.locked[ticketID] = struct{}{} }

func (tx *Tx) holds(ticketID string) bool {
	_, ok := tx.locked[ticketID]
	return ok
}

func unwrapTx(tx transaction.Tx) (*Tx, error) {
	m, ok := tx.(*Tx)
	if !ok || m == nil {
		return nil, fmt.Errorf("MongoDB ストアのトランザクションではありません: %T", tx)
	}
	if m.done {
		return nil, transaction.ErrTxClosed
	}
	return m, nil
}
