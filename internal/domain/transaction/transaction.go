package transaction

import (
	"context"
	"errors"
)

// ErrTxClosed はコミットまたはロールバック済みのトランザクションを操作した場合のエラー
var ErrTxClosed = errors.New("トランザクションは既に終了しています")

// Tx はトランザクションを表すインターフェース
// ドメイン層がインフラ層（sqlx や mongo セッション等）に依存しないようにするための抽象化
type Tx interface {
	// Commit はトランザクション内の変更を確定し、全てのロックを解放する
	Commit() error
	// Rollback は変更を破棄し、全てのロックを解放する。コミット後の呼び出しは何もしない
	Rollback() error
}

// Manager はトランザクションを管理するインターフェース
type Manager interface {
	// Begin は新しいトランザクションを開始する
	Begin(ctx context.Context) (Tx, error)
}
