// Package store はバックエンドに依存しない永続化の窓口をまとめる。
// メモリ・SQL・MongoDB の各実装はこのインターフェースを満たす。
package store

import (
	"context"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/category"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
)

// Store はトランザクションと各リポジトリを提供する
type Store interface {
	transaction.Manager
	Tickets() ticket.Repository
	Bookings() booking.Repository
	Users() user.Repository
	Categories() category.Repository
	Close(ctx context.Context) error
}

// Catalog は初期投入するユーザー・カテゴリ・チケットの一式
type Catalog struct {
	Users      []*user.User
	Categories []*category.Category
	Tickets    []*ticket.Ticket
}

// Seeder は Catalog をまとめて登録できるストア
type Seeder interface {
	Seed(ctx context.Context, c Catalog) error
}
