package ticket

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status はチケットの状態を表す
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusReserved  Status = "RESERVED"
	StatusSold      Status = "SOLD"
)

// LockStrategy はチケットのロック方式を表す
type LockStrategy string

const (
	// LockBlocking は行ロックを待ってから状態を再確認する
	LockBlocking LockStrategy = "blocking"
	// LockConditional は status=AVAILABLE を条件とした更新で即座に判定する
	LockConditional LockStrategy = "conditional"
)

// ParseLockStrategy は文字列からロック方式を解決する
func ParseLockStrategy(s string) (LockStrategy, error) {
	switch LockStrategy(strings.ToLower(s)) {
	case LockBlocking:
		return LockBlocking, nil
	case LockConditional:
		return LockConditional, nil
	}
	return "", fmt.Errorf("不明なロック方式です: %q", s)
}

// Ticket は在庫の最小単位であるチケットエンティティを表す
type Ticket struct {
	ID           string
	SerialNumber string
	EventID      string
	CategoryID   string
	Price        decimal.Decimal
	Status       Status
	Area         string
	Row          *string
	Seat         *string
	BookingID    *string
	ReservedAt   *time.Time
	PurchasedAt  *time.Time
	Version      int
}

// NewTicket は新しいチケットを作成する
func NewTicket(eventID, categoryID, serialNumber, area string, price decimal.Decimal) *Ticket {
	return &Ticket{
		SerialNumber: serialNumber,
		EventID:      eventID,
		CategoryID:   categoryID,
		Price:        price,
		Status:       StatusAvailable,
		Area:         area,
	}
}

// IsAvailable はチケットが予約可能かを返す
func (t *Ticket) IsAvailable() bool {
	return t.Status == StatusAvailable
}

// Reserve はチケットを予約状態にする
func (t *Ticket) Reserve(at time.Time) error {
	if t.Status != StatusAvailable {
		return ErrNotAvailable
	}
	t.Status = StatusReserved
	t.ReservedAt = &at
	return nil
}

// Hold は予約状態のチケットを仮押さえの予約に紐付ける
func (t *Ticket) Hold(bookingID string) error {
	if t.Status != StatusReserved {
		return ErrTicketNotReserved
	}
	t.BookingID = &bookingID
	return nil
}

// Sell はチケットを販売済みにする。価格はカテゴリの販売時点の価格で確定する
func (t *Ticket) Sell(bookingID string, price decimal.Decimal, at time.Time) error {
	if t.Status != StatusReserved {
		return ErrTicketNotReserved
	}
	if t.BookingID != nil && *t.BookingID != bookingID {
		return ErrTicketNotReserved
	}
	t.Status = StatusSold
	t.BookingID = &bookingID
	t.Price = price
	t.PurchasedAt = &at
	return nil
}

// Release はチケットを予約可能な状態へ戻す
func (t *Ticket) Release() {
	t.Status = StatusAvailable
	t.BookingID = nil
	t.ReservedAt = nil
	t.PurchasedAt = nil
	t.Row = nil
	t.Seat = nil
}

// HasSeat は座席が割り当て済みかを返す
func (t *Ticket) HasSeat() bool {
	return t.Row != nil && t.Seat != nil
}

// AssignSeat は販売済みチケットに座席を割り当てる
func (t *Ticket) AssignSeat(area, row, seat string) error {
	if t.Status != StatusSold {
		return ErrTicketNotSold
	}
	if t.HasSeat() {
		return ErrSeatAlreadyAssigned
	}
	if row == "" || seat == "" {
		return ErrSeatRequired
	}
	t.Area = area
	t.Row = &row
	t.Seat = &seat
	return nil
}

// SeatKey は座席の一意キーを返す。座席未割り当ての場合は空文字
func (t *Ticket) SeatKey() string {
	if !t.HasSeat() {
		return ""
	}
	return SeatKey(t.Area, *t.Row, *t.Seat)
}

// SeatKey はエリア・列・番号から座席の一意キーを作る
func SeatKey(area, row, seat string) string {
	return strings.ToUpper(area) + ":" + row + ":" + seat
}

// Validate はチケットの検証を行う
func (t *Ticket) Validate() error {
	if t.SerialNumber == "" {
		return ErrSerialNumberRequired
	}
	if t.CategoryID == "" {
		return ErrCategoryIDRequired
	}
	if t.Price.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}

// Clone はチケットの複製を返す
func (t *Ticket) Clone() *Ticket {
	c := *t
	c.Row = clonePtr(t.Row)
	c.Seat = clonePtr(t.Seat)
	c.BookingID = clonePtr(t.BookingID)
	c.ReservedAt = clonePtr(t.ReservedAt)
	c.PurchasedAt = clonePtr(t.PurchasedAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
