package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
)

// BookingRepository は予約リポジトリのメモリ実装
type BookingRepository struct{ s *Store }

func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	s := r.s
	mtx, err := s.unwrap(tx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	_, exists := s.bookings[b.ID]
	s.mu.Unlock()
	if _, pending := mtx.bookings[b.ID]; exists || pending {
		return fmt.Errorf("予約IDが重複しています: %s", b.ID)
	}
	if err := s.acquire(ctx, mtx, bookingKey(b.ID), false); err != nil {
		return err
	}
	mtx.bookings[b.ID] = cloneBooking(b)
	return nil
}

// Lock は予約を排他ロックする。予約のロックは方式に関わらず待機する
func (r *BookingRepository) Lock(ctx context.Context, tx transaction.Tx, id string) (*booking.Booking, error) {
	s := r.s
	mtx, err := s.unwrap(tx)
	if err != nil {
		return nil, err
	}
	if w, ok := mtx.bookings[id]; ok {
		return cloneBooking(w), nil
	}
	s.mu.Lock()
	_, exists := s.bookings[id]
	s.mu.Unlock()
	if !exists {
		return nil, booking.ErrBookingNotFound
	}
	if err := s.acquire(ctx, mtx, bookingKey(id), true); err != nil {
		return nil, err
	}
	s.mu.Lock()
	cur := cloneBooking(s.bookings[id])
	s.mu.Unlock()
	mtx.bookings[id] = cur
	return cloneBooking(cur), nil
}

func (r *BookingRepository) Update(_ context.Context, tx transaction.Tx, b *booking.Booking) error {
	mtx, err := r.s.unwrap(tx)
	if err != nil {
		return err
	}
	if !mtx.holds(bookingKey(b.ID)) {
		return fmt.Errorf("予約 %s はこのトランザクションでロックされていません", b.ID)
	}
	mtx.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (r *BookingRepository) GetByID(_ context.Context, id string) (*booking.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

func (r *BookingRepository) CountConfirmedByUser(_ context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, b := range r.s.bookings {
		if b.UserID == userID && b.Status == booking.StatusConfirmed {
			n++
		}
	}
	return n, nil
}

func (r *BookingRepository) ListByStatus(_ context.Context, status booking.Status) ([]*booking.Booking, error) {
	return r.list(func(b *booking.Booking) bool { return b.Status == status }), nil
}

func (r *BookingRepository) ListExpiredHolds(_ context.Context, now time.Time) ([]*booking.Booking, error) {
	return r.list(func(b *booking.Booking) bool { return b.IsExpired(now) }), nil
}

func (r *BookingRepository) list(keep func(*booking.Booking) bool) []*booking.Booking {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*booking.Booking, 0)
	for _, b := range r.s.bookings {
		if keep(b) {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookedAt.Before(out[j].BookedAt) })
	return out
}

var _ booking.Repository = (*BookingRepository)(nil)
