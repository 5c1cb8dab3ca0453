package amqp

import (
	"time"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
)

// BookingConfirmedEvent は予約確定時に送信するメッセージ
// 受信側が DB を参照せずにチケット送付を行えるよう送付先を含める
type BookingConfirmedEvent struct {
	BookingID     string   `json:"booking_id"`
	UserID        string   `json:"user_id"`
	DeliveryEmail string   `json:"delivery_email"`
	TicketIDs     []string `json:"ticket_ids"`
	TotalPrice    string   `json:"total_price"`
	Discount      string   `json:"discount"`
	FinalPrice    string   `json:"final_price"`
	BookedAt      string   `json:"booked_at"`
	ConfirmedAt   string   `json:"confirmed_at,omitempty"`
}

func NewBookingConfirmedEvent(b *booking.Booking) BookingConfirmedEvent {
	ev := BookingConfirmedEvent{
		BookingID:     b.ID,
		UserID:        b.UserID,
		DeliveryEmail: b.DeliveryEmail,
		TicketIDs:     append([]string(nil), b.TicketIDs...),
		TotalPrice:    b.TotalPrice.StringFixed(2),
		Discount:      b.Discount.StringFixed(2),
		FinalPrice:    b.FinalPrice.StringFixed(2),
		BookedAt:      b.BookedAt.UTC().Format(time.RFC3339),
	}
	if b.ConfirmedAt != nil {
		ev.ConfirmedAt = b.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	return ev
}
