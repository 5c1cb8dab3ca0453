package handler

import (
	"context"

	"github.com/sanosuguru/go-ticket-booking/internal/application"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/metrics"
)

// BookingServiceInterface は予約サービスのインターフェース
type BookingServiceInterface interface {
	Book(ctx context.Context, input application.BookInput) (*booking.Booking, error)
	Hold(ctx context.Context, input application.BookInput) (*booking.Booking, error)
	Confirm(ctx context.Context, id string) (*booking.Booking, error)
	Cancel(ctx context.Context, id string) (*booking.Booking, error)
	GetBooking(ctx context.Context, id string) (*booking.Booking, error)
	CountAvailable(ctx context.Context, eventID string) (int, error)
	Stats() metrics.BookingSnapshot
}

// SeatServiceInterface は座席割り当てサービスのインターフェース
type SeatServiceInterface interface {
	AssignSeat(ctx context.Context, input application.AssignSeatInput) (bool, error)
	Stats() metrics.SeatSnapshot
}
