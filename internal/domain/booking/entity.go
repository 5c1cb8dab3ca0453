package booking

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status は予約の状態を表す
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusConfirmed  Status = "CONFIRMED"
	StatusCanceled   Status = "CANCELED"
)

// Booking は1人のユーザーによる1枚以上のチケットの購入を表す
type Booking struct {
	ID            string
	UserID        string
	DeliveryEmail string
	TicketIDs     []string
	TotalPrice    decimal.Decimal
	Discount      decimal.Decimal
	FinalPrice    decimal.Decimal
	Status        Status
	BookedAt      time.Time
	ExpiresAt     *time.Time // 仮押さえの期限
	ConfirmedAt   *time.Time
	CanceledAt    *time.Time
}

// NewBooking は新しい予約を作成する。ID はクライアント側で採番する
func NewBooking(userID, deliveryEmail string, ticketIDs []string, now time.Time) (*Booking, error) {
	b := &Booking{
		ID:            uuid.New().String(),
		UserID:        userID,
		DeliveryEmail: deliveryEmail,
		TicketIDs:     ticketIDs,
		TotalPrice:    decimal.Zero,
		Discount:      decimal.Zero,
		FinalPrice:    decimal.Zero,
		Status:        StatusInProgress,
		BookedAt:      now,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// ApplyPrice は合計金額と割引を設定し、最終金額を計算する
func (b *Booking) ApplyPrice(total, discount decimal.Decimal) error {
	final := total.Sub(discount)
	if final.IsNegative() {
		return ErrNegativeFinalPrice
	}
	b.TotalPrice = total
	b.Discount = discount
	b.FinalPrice = final
	return nil
}

// HoldUntil は予約を指定時刻まで有効な仮押さえにする
func (b *Booking) HoldUntil(expiresAt time.Time) {
	b.ExpiresAt = &expiresAt
}

// IsExpired は仮押さえの期限が切れているかを返す
func (b *Booking) IsExpired(now time.Time) bool {
	return b.Status == StatusInProgress && b.ExpiresAt != nil && now.After(*b.ExpiresAt)
}

// Confirm は予約を確定する
func (b *Booking) Confirm(now time.Time) error {
	if b.Status != StatusInProgress {
		return ErrBookingNotInProgress
	}
	if b.IsExpired(now) {
		return ErrHoldExpired
	}
	b.Status = StatusConfirmed
	b.ConfirmedAt = &now
	b.ExpiresAt = nil
	return nil
}

// Cancel は予約をキャンセルする
func (b *Booking) Cancel(now time.Time) error {
	if b.Status == StatusCanceled {
		return ErrBookingAlreadyCanceled
	}
	b.Status = StatusCanceled
	b.CanceledAt = &now
	return nil
}

// Contains はチケットが予約に含まれるかを返す
func (b *Booking) Contains(ticketID string) bool {
	for _, id := range b.TicketIDs {
		if id == ticketID {
			return true
		}
	}
	return false
}

// Validate は予約の検証を行う
func (b *Booking) Validate() error {
	if b.UserID == "" {
		return ErrUserIDRequired
	}
	if b.DeliveryEmail == "" {
		return ErrDeliveryEmailRequired
	}
	if len(b.TicketIDs) == 0 {
		return ErrTicketsRequired
	}
	seen := make(map[string]struct{}, len(b.TicketIDs))
	for _, id := range b.TicketIDs {
		if _, ok := seen[id]; ok {
			return ErrDuplicateTicket
		}
		seen[id] = struct{}{}
	}
	if b.FinalPrice.IsNegative() {
		return ErrNegativeFinalPrice
	}
	return nil
}
