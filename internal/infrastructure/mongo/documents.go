package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/category"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
)

type ticketDoc struct {
	ID           string               `bson:"_id"`
	SerialNumber string               `bson:"serial_number"`
	EventID      string               `bson:"event_id"`
	CategoryID   string               `bson:"category_id"`
	Price        primitive.Decimal128 `bson:"price"`
	Status       string               `bson:"status"`
	Area         string               `bson:"area"`
	Row          *string              `bson:"row"`
	Seat         *string              `bson:"seat"`
	SeatKey      *string              `bson:"seat_key,omitempty"` // 販売済みかつ座席ありの場合のみ
	BookingID    *string              `bson:"booking_id"`
	ReservedAt   *time.Time           `bson:"reserved_at"`
	PurchasedAt  *time.Time           `bson:"purchased_at"`
	Version      int                  `bson:"version"`
}

func newTicketDoc(t *ticket.Ticket) (*ticketDoc, error) {
	price, err := toDecimal128(t.Price)
	if err != nil {
		return nil, err
	}
	d := &ticketDoc{
		ID: t.ID, SerialNumber: t.SerialNumber, EventID: t.EventID, CategoryID: t.CategoryID,
		Price: price, Status: string(t.Status), Area: t.Area, Row: t.Row, Seat: t.Seat,
		BookingID: t.BookingID, ReservedAt: t.ReservedAt, PurchasedAt: t.PurchasedAt, Version: t.Version,
	}
	if t.Status == ticket.StatusSold && t.HasSeat() {
		key := t.SeatKey()
		d.SeatKey = &key
	}
	return d, nil
}

func (d *ticketDoc) toEntity() (*ticket.Ticket, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return nil, err
	}
	return &ticket.Ticket{
		ID: d.ID, SerialNumber: d.SerialNumber, EventID: d.EventID, CategoryID: d.CategoryID,
		Price: price, Status: ticket.Status(d.Status), Area: d.Area, Row: d.Row, Seat: d.Seat,
		BookingID: d.BookingID, ReservedAt: utcPtr(d.ReservedAt), PurchasedAt: utcPtr(d.PurchasedAt), Version: d.Version,
	}, nil
}

type bookingDoc struct {
	ID            string               `bson:"_id"`
	UserID        string               `bson:"user_id"`
	DeliveryEmail string               `bson:"delivery_email"`
	TicketIDs     []string             `bson:"ticket_ids"`
	TotalPrice    primitive.Decimal128 `bson:"total_price"`
	Discount      primitive.Decimal128 `bson:"discount"`
	FinalPrice    primitive.Decimal128 `bson:"final_price"`
	Status        string               `bson:"status"`
	BookedAt      time.Time            `bson:"booked_at"`
	ExpiresAt     *time.Time           `bson:"expires_at"`
	ConfirmedAt   *time.Time           `bson:"confirmed_at"`
	CanceledAt    *time.Time           `bson:"canceled_at"`
	LockVersion   int                  `bson:"lock_version"`
}

func newBookingDoc(b *booking.Booking) (*bookingDoc, error) {
	var prices [3]primitive.Decimal128
	for i, d := range []decimal.Decimal{b.TotalPrice, b.Discount, b.FinalPrice} {
		p, err := toDecimal128(d)
		if err != nil {
			return nil, err
		}
		prices[i] = p
	}
	return &bookingDoc{
		ID: b.ID, UserID: b.UserID, DeliveryEmail: b.DeliveryEmail, TicketIDs: b.TicketIDs,
		TotalPrice: prices[0], Discount: prices[1], FinalPrice: prices[2],
		Status: string(b.Status), BookedAt: b.BookedAt,
		ExpiresAt: b.ExpiresAt, ConfirmedAt: b.ConfirmedAt, CanceledAt: b.CanceledAt,
	}, nil
}

func (d *bookingDoc) toEntity() (*booking.Booking, error) {
	var prices [3]decimal.Decimal
	for i, p := range []primitive.Decimal128{d.TotalPrice, d.Discount, d.FinalPrice} {
		v, err := fromDecimal128(p)
		if err != nil {
			return nil, err
		}
		prices[i] = v
	}
	return &booking.Booking{
		ID: d.ID, UserID: d.UserID, DeliveryEmail: d.DeliveryEmail, TicketIDs: d.TicketIDs,
		TotalPrice: prices[0], Discount: prices[1], FinalPrice: prices[2],
		Status: booking.Status(d.Status), BookedAt: d.BookedAt.UTC(),
		ExpiresAt: utcPtr(d.ExpiresAt), ConfirmedAt: utcPtr(d.ConfirmedAt), CanceledAt: utcPtr(d.CanceledAt),
	}, nil
}

type userDoc struct {
	ID       string `bson:"_id"`
	Username string `bson:"username"`
	Email    string `bson:"email"`
}

func (d *userDoc) toEntity() *user.User {
	return &user.User{ID: d.ID, Username: d.Username, Email: d.Email}
}

type categoryDoc struct {
	ID          string               `bson:"_id"`
	EventID     string               `bson:"event_id"`
	Description string               `bson:"description"`
	Price       primitive.Decimal128 `bson:"price"`
	Area        string               `bson:"area"`
	StartAt     time.Time            `bson:"start_at"`
	EndAt       *time.Time           `bson:"end_at"`
}

func newCategoryDoc(c *category.Category) (*categoryDoc, error) {
	price, err := toDecimal128(c.Price)
	if err != nil {
		return nil, err
	}
	return &categoryDoc{
		ID: c.ID, EventID: c.EventID, Description: c.Description,
		Price: price, Area: c.Area, StartAt: c.StartAt, EndAt: c.EndAt,
	}, nil
}

func (d *categoryDoc) toEntity() (*category.Category, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return nil, err
	}
	return &category.Category{
		ID: d.ID, EventID: d.EventID, Description: d.Description,
		Price: price, Area: d.Area, StartAt: d.StartAt.UTC(), EndAt: utcPtr(d.EndAt),
	}, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("金額を Decimal128 に変換できません %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("Decimal128 を金額に変換できません %s: %w", v, err)
	}
	return d, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
