package memory

import (
	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
)

// Tx はメモリストアのトランザクション
// 変更は作業コピーに溜め、コミット時にまとめて反映する
type Tx struct {
	store    *Store
	held     map[string]struct{}
	tickets  map[string]*ticket.Ticket   // serial -> 作業コピー
	bookings map[string]*booking.Booking // id -> 作業コピー
	done     bool
}

func (tx *Tx) holds(key string) bool {
	_, ok := tx.held[key]
	return ok
}

// Commit は作業コピーを反映し、全てのロックを解放する
// 座席の一意性に違反する場合は何も反映せず ticket.ErrSeatTaken を返す
func (tx *Tx) Commit() error {
	if tx.done {
		return transaction.ErrTxClosed
	}
	s := tx.store
	s.mu.Lock()
	if err := tx.checkSeats(); err != nil {
		s.mu.Unlock()
		tx.finish()
		return err
	}
	for serial, t := range tx.tickets {
		if old := s.tickets[serial]; old != nil {
			if key := soldSeatKey(old); key != "" && s.seats[key] == old.ID {
				delete(s.seats, key)
			}
		}
		s.tickets[serial] = t.Clone()
		if key := soldSeatKey(t); key != "" {
			s.seats[key] = t.ID
		}
	}
	for id, b := range tx.bookings {
		s.bookings[id] = cloneBooking(b)
	}
	s.mu.Unlock()
	tx.finish()
	return nil
}

// Rollback は変更を破棄してロックを解放する。終了済みなら何もしない
func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.finish()
	return nil
}

// checkSeats は s.mu を保持した状態で呼ぶ
func (tx *Tx) checkSeats() error {
	seen := make(map[string]string)
	for _, t := range tx.tickets {
		key := soldSeatKey(t)
		if key == "" {
			continue
		}
		if other, ok := seen[key]; ok && other != t.ID {
			return ticket.ErrSeatTaken
		}
		seen[key] = t.ID
		if owner, ok := tx.store.seats[key]; ok && owner != t.ID {
			if w, mine := tx.tickets[tx.store.ticketIDs[owner]]; !mine || soldSeatKey(w) != key {
				return ticket.ErrSeatTaken
			}
		}
	}
	return nil
}

func (tx *Tx) finish() {
	for key := range tx.held {
		tx.store.release(tx, key)
	}
	tx.tickets = nil
	tx.bookings = nil
	tx.done = true
}
