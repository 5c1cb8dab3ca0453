package memory

import (
	"context"
	"sort"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
)

// TicketRepository はチケットリポジトリのメモリ実装
type TicketRepository struct{ s *Store }

// Lock はチケットの排他権を取得して予約状態にする
func (r *TicketRepository) Lock(ctx context.Context, tx transaction.Tx, serial string) (*ticket.Ticket, error) {
	s := r.s
	mtx, err := s.unwrap(tx)
	if err != nil {
		return nil, err
	}
	if w, ok := mtx.tickets[serial]; ok {
		return w.Clone(), nil
	}

	s.mu.Lock()
	_, exists := s.tickets[serial]
	s.mu.Unlock()
	if !exists {
		return nil, ticket.ErrTicketNotFound
	}

	key := ticketKey(serial)
	if err := s.acquire(ctx, mtx, key, s.strategy == ticket.LockBlocking); err != nil {
		return nil, err
	}

	// ロック取得後に状態を再確認する
	s.mu.Lock()
	cur := s.tickets[serial].Clone()
	s.mu.Unlock()
	if err := cur.Reserve(s.now()); err != nil {
		s.release(mtx, key)
		return nil, err
	}
	mtx.tickets[serial] = cur
	return cur.Clone(), nil
}

// LockByBooking は予約に紐付くチケットをシリアル番号順にロックする
func (r *TicketRepository) LockByBooking(ctx context.Context, tx transaction.Tx, bookingID string) ([]*ticket.Ticket, error) {
	s := r.s
	mtx, err := s.unwrap(tx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	serials := sortedSerials(s.tickets, func(t *ticket.Ticket) bool {
		return t.BookingID != nil && *t.BookingID == bookingID
	})
	s.mu.Unlock()

	out := make([]*ticket.Ticket, 0, len(serials))
	for _, serial := range serials {
		if err := s.acquire(ctx, mtx, ticketKey(serial), s.strategy == ticket.LockBlocking); err != nil {
			return nil, err
		}
		cur, ok := mtx.tickets[serial]
		if !ok {
			s.mu.Lock()
			cur = s.tickets[serial].Clone()
			s.mu.Unlock()
		}
		if cur.BookingID == nil || *cur.BookingID != bookingID {
			s.release(mtx, ticketKey(serial))
			continue
		}
		mtx.tickets[serial] = cur
		out = append(out, cur.Clone())
	}
	return out, nil
}

// Update はロック済みのチケットを作業コピーへ反映する
func (r *TicketRepository) Update(_ context.Context, tx transaction.Tx, t *ticket.Ticket) error {
	s := r.s
	mtx, err := s.unwrap(tx)
	if err != nil {
		return err
	}
	if !mtx.holds(ticketKey(t.SerialNumber)) {
		return ticket.ErrTicketNotLocked
	}
	if key := soldSeatKey(t); key != "" {
		s.mu.Lock()
		owner, taken := s.seats[key]
		s.mu.Unlock()
		if taken && owner != t.ID {
			return ticket.ErrSeatTaken
		}
	}
	mtx.tickets[t.SerialNumber] = t.Clone()
	return nil
}

// FindSoldBySeat は座席を持つ販売済みチケットを返す（自トランザクションの変更を含む）
func (r *TicketRepository) FindSoldBySeat(_ context.Context, tx transaction.Tx, area, row, seat string) ([]*ticket.Ticket, error) {
	s := r.s
	mtx, err := s.unwrap(tx)
	if err != nil {
		return nil, err
	}
	key := ticket.SeatKey(area, row, seat)
	var out []*ticket.Ticket

	s.mu.Lock()
	if id, ok := s.seats[key]; ok {
		serial := s.ticketIDs[id]
		if _, mine := mtx.tickets[serial]; !mine {
			out = append(out, s.tickets[serial].Clone())
		}
	}
	s.mu.Unlock()

	for _, t := range mtx.tickets {
		if soldSeatKey(t) == key {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// FindUnseated は予約・カテゴリに属する座席未割り当ての販売済みチケットをロックして返す
func (r *TicketRepository) FindUnseated(ctx context.Context, tx transaction.Tx, bookingID, categoryID string) (*ticket.Ticket, error) {
	s := r.s
	mtx, err := s.unwrap(tx)
	if err != nil {
		return nil, err
	}
	match := func(t *ticket.Ticket) bool {
		return t.Status == ticket.StatusSold && !t.HasSeat() && t.CategoryID == categoryID &&
			t.BookingID != nil && *t.BookingID == bookingID
	}

	s.mu.Lock()
	candidates := sortedSerials(s.tickets, match)
	s.mu.Unlock()

	for _, serial := range candidates {
		if w, ok := mtx.tickets[serial]; ok {
			if match(w) {
				return w.Clone(), nil
			}
			continue
		}
		key := ticketKey(serial)
		if err := s.acquire(ctx, mtx, key, true); err != nil {
			return nil, err
		}
		s.mu.Lock()
		cur := s.tickets[serial].Clone()
		s.mu.Unlock()
		if !match(cur) {
			s.release(mtx, key)
			continue
		}
		mtx.tickets[serial] = cur
		return cur.Clone(), nil
	}
	return nil, ticket.ErrTicketNotFound
}

func (r *TicketRepository) GetBySerial(_ context.Context, serial string) (*ticket.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[serial]
	if !ok {
		return nil, ticket.ErrTicketNotFound
	}
	return t.Clone(), nil
}

func (r *TicketRepository) ListByEvent(_ context.Context, eventID string) ([]*ticket.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*ticket.Ticket, 0)
	for _, t := range r.s.tickets {
		if t.EventID == eventID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out, nil
}

func (r *TicketRepository) ListAvailableSerials(_ context.Context, eventID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return sortedSerials(r.s.tickets, func(t *ticket.Ticket) bool {
		return t.EventID == eventID && t.IsAvailable()
	}), nil
}

func (r *TicketRepository) CountByStatus(_ context.Context, eventID string, status ticket.Status) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, t := range r.s.tickets {
		if t.EventID == eventID && t.Status == status {
			n++
		}
	}
	return n, nil
}

var _ ticket.Repository = (*TicketRepository)(nil)
