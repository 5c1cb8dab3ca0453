// Package memory はプロセス内で完結するストア実装。
// チケットごとの排他はチャネルによるセマフォで表現し、ブロッキング方式と
// 条件付き更新方式（即時失敗）の両方をサポートする。
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/category"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/store"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
)

// Store はメモリ上のストア
type Store struct {
	strategy ticket.LockStrategy
	now      func() time.Time

	mu         sync.Mutex
	tickets    map[string]*ticket.Ticket // serial -> コミット済みの状態
	ticketIDs  map[string]string         // id -> serial
	seats      map[string]string         // 座席キー -> 販売済みチケットID
	bookings   map[string]*booking.Booking
	users      map[string]*user.User
	categories map[string]*category.Category
	locks      map[string]chan struct{}

	ticketRepo   *TicketRepository
	bookingRepo  *BookingRepository
	userRepo     *UserRepository
	categoryRepo *CategoryRepository
}

// NewStore は指定したロック方式のストアを作成する
func NewStore(strategy ticket.LockStrategy) *Store {
	s := &Store{
		strategy:   strategy,
		now:        time.Now,
		tickets:    make(map[string]*ticket.Ticket),
		ticketIDs:  make(map[string]string),
		seats:      make(map[string]string),
		bookings:   make(map[string]*booking.Booking),
		users:      make(map[string]*user.User),
		categories: make(map[string]*category.Category),
		locks:      make(map[string]chan struct{}),
	}
	s.ticketRepo = &TicketRepository{s: s}
	s.bookingRepo = &BookingRepository{s: s}
	s.userRepo = &UserRepository{s: s}
	s.categoryRepo = &CategoryRepository{s: s}
	return s
}

func (s *Store) Strategy() ticket.LockStrategy { return s.strategy }

func (s *Store) Tickets() ticket.Repository { return s.ticketRepo }

func (s *Store) Bookings() booking.Repository { return s.bookingRepo }

func (s *Store) Users() user.Repository { return s.userRepo }

func (s *Store) Categories() category.Repository { return s.categoryRepo }

func (s *Store) Close(context.Context) error { return nil }

// Begin は新しいトランザクションを開始する
func (s *Store) Begin(ctx context.Context) (transaction.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{
		store:    s,
		held:     make(map[string]struct{}),
		tickets:  make(map[string]*ticket.Ticket),
		bookings: make(map[string]*booking.Booking),
	}, nil
}

// AddUser はユーザーを登録する
func (s *Store) AddUser(u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return fmt.Errorf("ユーザー名またはメールアドレスが重複しています: %s", u.Username)
		}
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	c := *u
	s.users[u.ID] = &c
	return nil
}

// AddCategory はカテゴリを登録する
func (s *Store) AddCategory(c *category.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	cp := *c
	s.categories[c.ID] = &cp
	return nil
}

// AddTicket はチケットを登録する
func (s *Store) AddTicket(t *ticket.Ticket) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[t.SerialNumber]; ok {
		return fmt.Errorf("シリアル番号が重複しています: %s", t.SerialNumber)
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if key := soldSeatKey(t); key != "" {
		if _, taken := s.seats[key]; taken {
			return ticket.ErrSeatTaken
		}
		s.seats[key] = t.ID
	}
	s.tickets[t.SerialNumber] = t.Clone()
	s.ticketIDs[t.ID] = t.SerialNumber
	return nil
}

// Seed はカタログをまとめて登録する
func (s *Store) Seed(ctx context.Context, c store.Catalog) error {
	for _, u := range c.Users {
		if err := s.AddUser(u); err != nil {
			return err
		}
	}
	for _, cat := range c.Categories {
		if err := s.AddCategory(cat); err != nil {
			return err
		}
	}
	for _, t := range c.Tickets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.AddTicket(t); err != nil {
			return err
		}
	}
	return nil
}

// AddBooking は確定済みの予約を直接登録する（過去の予約履歴の投入用）
func (s *Store) AddBooking(b *booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[b.ID]; ok {
		return fmt.Errorf("予約IDが重複しています: %s", b.ID)
	}
	s.bookings[b.ID] = cloneBooking(b)
	return nil
}

// sem はキーに対応するセマフォを返す
func (s *Store) sem(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

// acquire はトランザクションにキーの排他権を与える
func (s *Store) acquire(ctx context.Context, tx *Tx, key string, blocking bool) error {
	if tx.holds(key) {
		return nil
	}
	ch := s.sem(key)
	if blocking {
		select {
		case ch <- struct{}{}:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ticket.ErrLockConflict, ctx.Err())
		}
	} else {
		select {
		case ch <- struct{}{}:
		default:
			return ticket.ErrLockConflict
		}
	}
	tx.held[key] = struct{}{}
	return nil
}

func (s *Store) release(tx *Tx, key string) {
	if !tx.holds(key) {
		return
	}
	delete(tx.held, key)
	<-s.sem(key)
}

func (s *Store) unwrap(tx transaction.Tx) (*Tx, error) {
	mtx, ok := tx.(*Tx)
	if !ok || mtx.store != s {
		return nil, fmt.Errorf("このストアのトランザクションではありません: %T", tx)
	}
	if mtx.done {
		return nil, transaction.ErrTxClosed
	}
	return mtx, nil
}

func ticketKey(serial string) string { return "ticket:" + serial }

func bookingKey(id string) string { return "booking:" + id }

func soldSeatKey(t *ticket.Ticket) string {
	if t == nil || t.Status != ticket.StatusSold {
		return ""
	}
	return t.SeatKey()
}

func cloneBooking(b *booking.Booking) *booking.Booking {
	c := *b
	c.TicketIDs = append([]string(nil), b.TicketIDs...)
	if b.ExpiresAt != nil {
		v := *b.ExpiresAt
		c.ExpiresAt = &v
	}
	if b.ConfirmedAt != nil {
		v := *b.ConfirmedAt
		c.ConfirmedAt = &v
	}
	if b.CanceledAt != nil {
		v := *b.CanceledAt
		c.CanceledAt = &v
	}
	return &c
}

func sortedSerials(m map[string]*ticket.Ticket, keep func(*ticket.Ticket) bool) []string {
	out := make([]string, 0)
	for serial, t := range m {
		if keep(t) {
			out = append(out, serial)
		}
	}
	sort.Strings(out)
	return out
}

// インターフェースを満たしているか確認
var (
	_ store.Store  = (*Store)(nil)
	_ store.Seeder = (*Store)(nil)
)
