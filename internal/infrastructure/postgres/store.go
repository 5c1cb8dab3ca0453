// Package postgres は sqlx による SQL ストア実装。
// ドライバー名（postgres / mysql）に応じてプレースホルダを Rebind し、同じクエリで両方の RDB を扱う。
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/category"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/store"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
)

// Store は SQL データベース上のストア
type Store struct {
	*TxManager
	db         *sqlx.DB
	tickets    *TicketRepository
	bookings   *BookingRepository
	users      *UserRepository
	categories *CategoryRepository
}

// NewStore は指定したロック方式のストアを作成する
func NewStore(db *sqlx.DB, strategy ticket.LockStrategy) *Store {
	return &Store{
		TxManager:  NewTxManager(db),
		db:         db,
		tickets:    NewTicketRepository(db, strategy),
		bookings:   NewBookingRepository(db),
		users:      NewUserRepository(db),
		categories: NewCategoryRepository(db),
	}
}

func (s *Store) Tickets() ticket.Repository { return s.tickets }

func (s *Store) Bookings() booking.Repository { return s.bookings }

func (s *Store) Users() user.Repository { return s.users }

func (s *Store) Categories() category.Repository { return s.categories }

func (s *Store) Close(context.Context) error { return s.db.Close() }

// Seed はカタログを1トランザクションでまとめて登録する
func (s *Store) Seed(ctx context.Context, c store.Catalog) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	users := make([][]any, 0, len(c.Users))
	for _, u := range c.Users {
		if u.ID == "" {
			u.ID = uuid.New().String()
		}
		users = append(users, []any{u.ID, u.Username, u.Email})
	}
	if err := insertBulk(ctx, tx, "users", "id, username, email", users); err != nil {
		return err
	}

	categories := make([][]any, 0, len(c.Categories))
	for _, cat := range c.Categories {
		if err := cat.Validate(); err != nil {
			return err
		}
		if cat.ID == "" {
			cat.ID = uuid.New().String()
		}
		categories = append(categories, []any{cat.ID, cat.EventID, cat.Description, cat.Price, cat.Area, cat.StartAt, cat.EndAt})
	}
	if err := insertBulk(ctx, tx, "categories", categoryColumns, categories); err != nil {
		return err
	}

	tickets := make([][]any, 0, len(c.Tickets))
	for _, t := range c.Tickets {
		if err := t.Validate(); err != nil {
			return err
		}
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		tickets = append(tickets, []any{
			t.ID, t.SerialNumber, t.EventID, t.CategoryID, t.Price, string(t.Status), t.Area,
			t.Row, t.Seat, t.BookingID, t.ReservedAt, t.PurchasedAt, t.Version,
		})
	}
	if err := insertBulk(ctx, tx, "tickets", ticketColumns, tickets); err != nil {
		return translateSeat(err)
	}
	return tx.Commit()
}

// insertBulk はバッチサイズごとにマルチバリューINSERTを実行する
func insertBulk(ctx context.Context, tx *sqlx.Tx, table, columns string, rows [][]any) error {
	const batchSize = 500
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		batch := rows[i:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*len(batch[0]))
		for _, row := range batch {
			placeholders = append(placeholders, "("+strings.TrimSuffix(strings.Repeat("?, ", len(row)), ", ")+")")
			args = append(args, row...)
		}
		query := `INSERT INTO ` + table + ` (` + columns + `) VALUES ` + strings.Join(placeholders, ", ")
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("%s の一括作成に失敗: %w", table, err)
		}
	}
	return nil
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Seeder = (*Store)(nil)
)
