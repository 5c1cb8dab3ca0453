package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-ticket-booking/internal/application"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/metrics"
)

// MockBookingService はBookingServiceInterfaceのモック
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) booking(args mock.Arguments) (*booking.Booking, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingService) Book(ctx context.Context, input application.BookInput) (*booking.Booking, error) {
	return m.booking(m.Called(ctx, input))
}

func (m *MockBookingService) Hold(ctx context.Context, input application.BookInput) (*booking.Booking, error) {
	return m.booking(m.Called(ctx, input))
}

func (m *MockBookingService) Confirm(ctx context.Context, id string) (*booking.Booking, error) {
	return m.booking(m.Called(ctx, id))
}

func (m *MockBookingService) Cancel(ctx context.Context, id string) (*booking.Booking, error) {
	return m.booking(m.Called(ctx, id))
}

func (m *MockBookingService) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	return m.booking(m.Called(ctx, id))
}

func (m *MockBookingService) CountAvailable(ctx context.Context, eventID string) (int, error) {
	args := m.Called(ctx, eventID)
	return args.Int(0), args.Error(1)
}

func (m *MockBookingService) Stats() metrics.BookingSnapshot {
	return m.Called().Get(0).(metrics.BookingSnapshot)
}

// MockSeatService はSeatServiceInterfaceのモック
type MockSeatService struct {
	mock.Mock
}

func (m *MockSeatService) AssignSeat(ctx context.Context, input application.AssignSeatInput) (bool, error) {
	args := m.Called(ctx, input)
	return args.Bool(0), args.Error(1)
}

func (m *MockSeatService) Stats() metrics.SeatSnapshot {
	return m.Called().Get(0).(metrics.SeatSnapshot)
}
