package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
)

const bookingColumns = `id, user_id, delivery_email, total_price, discount, final_price, status, booked_at, expires_at, confirmed_at, canceled_at`

type bookingRow struct {
	ID            string          `db:"id"`
	UserID        string          `db:"user_id"`
	DeliveryEmail string          `db:"delivery_email"`
	TotalPrice    decimal.Decimal `db:"total_price"`
	Discount      decimal.Decimal `db:"discount"`
	FinalPrice    decimal.Decimal `db:"final_price"`
	Status        string          `db:"status"`
	BookedAt      time.Time       `db:"booked_at"`
	ExpiresAt     *time.Time      `db:"expires_at"`
	ConfirmedAt   *time.Time      `db:"confirmed_at"`
	CanceledAt    *time.Time      `db:"canceled_at"`
}

func (r *bookingRow) toEntity(ticketIDs []string) *booking.Booking {
	return &booking.Booking{
		ID: r.ID, UserID: r.UserID, DeliveryEmail: r.DeliveryEmail, TicketIDs: ticketIDs,
		TotalPrice: r.TotalPrice, Discount: r.Discount, FinalPrice: r.FinalPrice,
		Status: booking.Status(r.Status), BookedAt: r.BookedAt,
		ExpiresAt: r.ExpiresAt, ConfirmedAt: r.ConfirmedAt, CanceledAt: r.CanceledAt,
	}
}

type bookingTicketRow struct {
	BookingID string `db:"booking_id"`
	TicketID  string `db:"ticket_id"`
}

// BookingRepository は予約リポジトリのSQL実装
type BookingRepository struct{ db *sqlx.DB }

func NewBookingRepository(db *sqlx.DB) *BookingRepository { return &BookingRepository{db: db} }

func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	w, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := w.ExecContext(ctx, w.Rebind(query),
		b.ID, b.UserID, b.DeliveryEmail, b.TotalPrice, b.Discount, b.FinalPrice, string(b.Status),
		b.BookedAt, b.ExpiresAt, b.ConfirmedAt, b.CanceledAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("予約IDが重複しています: %s", b.ID)
		}
		return fmt.Errorf("予約作成に失敗: %w", translate(err))
	}
	for i, ticketID := range b.TicketIDs {
		if _, err := w.ExecContext(ctx, w.Rebind(`INSERT INTO booking_tickets (booking_id, ticket_id, seq) VALUES (?, ?, ?)`),
			b.ID, ticketID, i); err != nil {
			return fmt.Errorf("予約チケット関連付けに失敗: %w", translate(err))
		}
	}
	return nil
}

// Lock は予約行をロックして取得する。予約のロックは方式に関わらず待機する
func (r *BookingRepository) Lock(ctx context.Context, tx transaction.Tx, id string) (*booking.Booking, error) {
	w, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? FOR UPDATE`
	if err := w.GetContext(ctx, &row, w.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, translate(err)
	}
	ids, err := ticketIDsOf(ctx, w, []string{id})
	if err != nil {
		return nil, err
	}
	return row.toEntity(ids[id]), nil
}

func (r *BookingRepository) Update(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	w, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	query := `UPDATE bookings SET status = ?, total_price = ?, discount = ?, final_price = ?,
		expires_at = ?, confirmed_at = ?, canceled_at = ? WHERE id = ?`
	res, err := w.ExecContext(ctx, w.Rebind(query),
		string(b.Status), b.TotalPrice, b.Discount, b.FinalPrice, b.ExpiresAt, b.ConfirmedAt, b.CanceledAt, b.ID)
	if err != nil {
		return fmt.Errorf("予約更新に失敗: %w", translate(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.ErrBookingNotFound
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	ids, err := ticketIDsOf(ctx, r.db, []string{id})
	if err != nil {
		return nil, err
	}
	return row.toEntity(ids[id]), nil
}

func (r *BookingRepository) CountConfirmedByUser(ctx context.Context, userID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM bookings WHERE user_id = ? AND status = ?`
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(query), userID, string(booking.StatusConfirmed)); err != nil {
		return 0, fmt.Errorf("確定済み予約数の取得に失敗: %w", err)
	}
	return n, nil
}

func (r *BookingRepository) ListByStatus(ctx context.Context, status booking.Status) ([]*booking.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE status = ? ORDER BY booked_at`
	return r.list(ctx, query, string(status))
}

func (r *BookingRepository) ListExpiredHolds(ctx context.Context, now time.Time) ([]*booking.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ? ORDER BY booked_at`
	return r.list(ctx, query, string(booking.StatusInProgress), now)
}

func (r *BookingRepository) list(ctx context.Context, query string, args ...any) ([]*booking.Booking, error) {
	var rows []bookingRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	ticketIDs, err := ticketIDsOf(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*booking.Booking, len(rows))
	for i := range rows {
		out[i] = rows[i].toEntity(ticketIDs[rows[i].ID])
	}
	return out, nil
}

// ticketIDsOf は予約ごとのチケットIDを登録順に返す
func ticketIDsOf(ctx context.Context, q sqlx.ExtContext, bookingIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(bookingIDs))
	if len(bookingIDs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT booking_id, ticket_id FROM booking_tickets WHERE booking_id IN (?) ORDER BY booking_id, seq`, bookingIDs)
	if err != nil {
		return nil, err
	}
	var rows []bookingTicketRow
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("予約チケットの取得に失敗: %w", translate(err))
	}
	for _, row := range rows {
		out[row.BookingID] = append(out[row.BookingID], row.TicketID)
	}
	return out, nil
}

var _ booking.Repository = (*BookingRepository)(nil)
