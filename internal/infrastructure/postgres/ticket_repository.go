package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
)

const ticketColumns = `id, serial_number, event_id, category_id, price, status, area, row_label, seat_label, booking_id, reserved_at, purchased_at, version`

type ticketRow struct {
	ID           string          `db:"id"`
	SerialNumber string          `db:"serial_number"`
	EventID      string          `db:"event_id"`
	CategoryID   string          `db:"category_id"`
	Price        decimal.Decimal `db:"price"`
	Status       string          `db:"status"`
	Area         string          `db:"area"`
	Row          *string         `db:"row_label"`
	Seat         *string         `db:"seat_label"`
	BookingID    *string         `db:"booking_id"`
	ReservedAt   *time.Time      `db:"reserved_at"`
	PurchasedAt  *time.Time      `db:"purchased_at"`
	Version      int             `db:"version"`
}

func (r *ticketRow) toEntity() *ticket.Ticket {
	return &ticket.Ticket{
		ID: r.ID, SerialNumber: r.SerialNumber, EventID: r.EventID, CategoryID: r.CategoryID,
		Price: r.Price, Status: ticket.Status(r.Status), Area: r.Area,
		Row: r.Row, Seat: r.Seat, BookingID: r.BookingID,
		ReservedAt: r.ReservedAt, PurchasedAt: r.PurchasedAt, Version: r.Version,
	}
}

// TicketRepository はチケットリポジトリのSQL実装
type TicketRepository struct {
	db       *sqlx.DB
	strategy ticket.LockStrategy
	now      func() time.Time
}

func NewTicketRepository(db *sqlx.DB, strategy ticket.LockStrategy) *TicketRepository {
	return &TicketRepository{db: db, strategy: strategy, now: func() time.Time { return time.Now().UTC() }}
}

// lockClause は行ロックの句を返す。条件付き方式では待たずに失敗させる
func (r *TicketRepository) lockClause() string {
	if r.strategy == ticket.LockConditional {
		return " FOR UPDATE NOWAIT"
	}
	return " FOR UPDATE"
}

// Lock はチケットの行ロックを取得して予約状態にする
//   - blocking: 行ロックを待ってから状態を再確認する
//   - conditional: NOWAIT で行を確保し、status = AVAILABLE を条件に更新する
//
// ErrNotAvailable を返した場合も SELECT ... FOR UPDATE の行ロックはトランザクション終了まで残る。
// メモリストアと違いロックを付与しないまま返すことはできないので、呼び出し側はそこで中断してロールバックする
func (r *TicketRepository) Lock(ctx context.Context, tx transaction.Tx, serial string) (*ticket.Ticket, error) {
	w, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}

	var row ticketRow
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE serial_number = ?` + r.lockClause()
	if err := w.GetContext(ctx, &row, w.Rebind(query), serial); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ticket.ErrTicketNotFound
		}
		return nil, translate(err)
	}
	t := row.toEntity()
	if w.holds(t.ID) {
		return t, nil
	}

	now := r.now()
	if r.strategy == ticket.LockConditional {
		res, err := w.ExecContext(ctx, w.Rebind(
			`UPDATE tickets SET status = ?, reserved_at = ?, version = version + 1 WHERE id = ? AND status = ?`),
			string(ticket.StatusReserved), now, t.ID, string(ticket.StatusAvailable))
		if err != nil {
			return nil, translate(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, ticket.ErrNotAvailable
		}
		t.Status = ticket.StatusReserved
		t.ReservedAt = &now
	} else {
		if err := t.Reserve(now); err != nil {
			// 行ロックはロールバックまで保持される
			return nil, err
		}
		if _, err := w.ExecContext(ctx, w.Rebind(
			`UPDATE tickets SET status = ?, reserved_at = ?, version = version + 1 WHERE id = ?`),
			string(t.Status), now, t.ID); err != nil {
			return nil, translate(err)
		}
	}
	t.Version++
	w.lock(t.ID)
	return t, nil
}

// LockByBooking は予約に紐付くチケットをシリアル番号順にロックする
func (r *TicketRepository) LockByBooking(ctx context.Context, tx transaction.Tx, bookingID string) ([]*ticket.Ticket, error) {
	w, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	var rows []ticketRow
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE booking_id = ? ORDER BY serial_number` + r.lockClause()
	if err := w.SelectContext(ctx, &rows, w.Rebind(query), bookingID); err != nil {
		return nil, translate(err)
	}
	out := make([]*ticket.Ticket, len(rows))
	for i := range rows {
		out[i] = rows[i].toEntity()
		w.lock(out[i].ID)
	}
	return out, nil
}

// Update はロック済みのチケットを更新する。座席の一意制約違反は ticket.ErrSeatTaken になる
func (r *TicketRepository) Update(ctx context.Context, tx transaction.Tx, t *ticket.Ticket) error {
	w, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	if !w.holds(t.ID) {
		return ticket.ErrTicketNotLocked
	}
	query := `UPDATE tickets SET status = ?, price = ?, area = ?, row_label = ?, seat_label = ?, booking_id = ?,
		reserved_at = ?, purchased_at = ?, version = version + 1 WHERE id = ?`
	if _, err := w.ExecContext(ctx, w.Rebind(query),
		string(t.Status), t.Price, t.Area, t.Row, t.Seat, t.BookingID, t.ReservedAt, t.PurchasedAt, t.ID); err != nil {
		return translateSeat(err)
	}
	return nil
}

// FindSoldBySeat は座席を持つ販売済みチケットを返す（エリアは大文字小文字を区別しない）
func (r *TicketRepository) FindSoldBySeat(ctx context.Context, tx transaction.Tx, area, row, seat string) ([]*ticket.Ticket, error) {
	w, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	var rows []ticketRow
	query := `SELECT ` + ticketColumns + ` FROM tickets
		WHERE status = ? AND UPPER(area) = ? AND row_label = ? AND seat_label = ?`
	if err := w.SelectContext(ctx, &rows, w.Rebind(query), string(ticket.StatusSold), strings.ToUpper(area), row, seat); err != nil {
		return nil, translate(err)
	}
	return toTickets(rows), nil
}

// FindUnseated は予約・カテゴリに属する座席未割り当ての販売済みチケットを1枚ロックして返す
func (r *TicketRepository) FindUnseated(ctx context.Context, tx transaction.Tx, bookingID, categoryID string) (*ticket.Ticket, error) {
	w, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	var row ticketRow
	query := `SELECT ` + ticketColumns + ` FROM tickets
		WHERE booking_id = ? AND category_id = ? AND status = ? AND row_label IS NULL
		ORDER BY serial_number LIMIT 1 FOR UPDATE`
	if err := w.GetContext(ctx, &row, w.Rebind(query), bookingID, categoryID, string(ticket.StatusSold)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ticket.ErrTicketNotFound
		}
		return nil, translate(err)
	}
	t := row.toEntity()
	w.lock(t.ID)
	return t, nil
}

func (r *TicketRepository) GetBySerial(ctx context.Context, serial string) (*ticket.Ticket, error) {
	var row ticketRow
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE serial_number = ?`
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), serial); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ticket.ErrTicketNotFound
		}
		return nil, fmt.Errorf("チケット取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *TicketRepository) ListByEvent(ctx context.Context, eventID string) ([]*ticket.Ticket, error) {
	var rows []ticketRow
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE event_id = ? ORDER BY serial_number`
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), eventID); err != nil {
		return nil, fmt.Errorf("チケット一覧取得に失敗: %w", err)
	}
	return toTickets(rows), nil
}

func (r *TicketRepository) ListAvailableSerials(ctx context.Context, eventID string) ([]string, error) {
	serials := []string{}
	query := `SELECT serial_number FROM tickets WHERE event_id = ? AND status = ? ORDER BY serial_number`
	if err := r.db.SelectContext(ctx, &serials, r.db.Rebind(query), eventID, string(ticket.StatusAvailable)); err != nil {
		return nil, fmt.Errorf("予約可能チケットの取得に失敗: %w", err)
	}
	return serials, nil
}

func (r *TicketRepository) CountByStatus(ctx context.Context, eventID string, status ticket.Status) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM tickets WHERE event_id = ? AND status = ?`
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(query), eventID, string(status)); err != nil {
		return 0, fmt.Errorf("チケット数の取得に失敗: %w", err)
	}
	return n, nil
}

func toTickets(rows []ticketRow) []*ticket.Ticket {
	out := make([]*ticket.Ticket, len(rows))
	for i := range rows {
		out[i] = rows[i].toEntity()
	}
	return out
}

var _ ticket.Repository = (*TicketRepository)(nil)
