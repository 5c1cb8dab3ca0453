package application

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/category"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
)

// === Mock implementations ===

// MockStore implements store.Store
type MockStore struct {
	mock.Mock
	tickets    *MockTicketRepository
	bookings   *MockBookingRepository
	users      *MockUserRepository
	categories *MockCategoryRepository
}

func (m *MockStore) Begin(ctx context.Context) (transaction.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(transaction.Tx), args.Error(1)
}

func (m *MockStore) Tickets() ticket.Repository { return m.tickets }
func (m *MockStore) Bookings() booking.Repository { return m.bookings }
func (m *MockStore) Users() user.Repository { return m.users }
func (m *MockStore) Categories() category.Repository { return m.categories }
func (m *MockStore) Close(context.Context) error { return nil }

// MockTx implements transaction.Tx
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTx) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// MockTicketRepository implements ticket.Repository
type MockTicketRepository struct {
	mock.Mock
}

func (m *MockTicketRepository) Lock(ctx context.Context, tx transaction.Tx, serial string) (*ticket.Ticket, error) {
	args := m.Called(ctx, tx, serial)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ticket.Ticket), args.Error(1)
}

func (m *MockTicketRepository) LockByBooking(ctx context.Context, tx transaction.Tx, bookingID string) ([]*ticket.Ticket, error) {
	args := m.Called(ctx, tx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ticket.Ticket), args.Error(1)
}

func (m *MockTicketRepository) Update(ctx context.Context, tx transaction.Tx, t *ticket.Ticket) error {
	args := m.Called(ctx, tx, t)
	return args.Error(0)
}

func (m *MockTicketRepository) FindSoldBySeat(ctx context.Context, tx transaction.Tx, area, row, seat string) ([]*ticket.Ticket, error) {
	args := m.Called(ctx, tx, area, row, seat)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ticket.Ticket), args.Error(1)
}

func (m *MockTicketRepository) FindUnseated(ctx context.Context, tx transaction.Tx, bookingID, categoryID string) (*ticket.Ticket, error) {
	args := m.Called(ctx, tx, bookingID, categoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ticket.Ticket), args.Error(1)
}

func (m *MockTicketRepository) GetBySerial(ctx context.Context, serial string) (*ticket.Ticket, error) {
	args := m.Called(ctx, serial)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ticket.Ticket), args.Error(1)
}

func (m *MockTicketRepository) ListByEvent(ctx context.Context, eventID string) ([]*ticket.Ticket, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ticket.Ticket), args.Error(1)
}

func (m *MockTicketRepository) ListAvailableSerials(ctx context.Context, eventID string) ([]string, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockTicketRepository) CountByStatus(ctx context.Context, eventID string, status ticket.Status) (int, error) {
	args := m.Called(ctx, eventID, status)
	return args.Int(0), args.Error(1)
}

// MockBookingRepository implements booking.Repository
type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	args := m.Called(ctx, tx, b)
	return args.Error(0)
}

func (m *MockBookingRepository) Lock(ctx context.Context, tx transaction.Tx, id string) (*booking.Booking, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingRepository) Update(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	args := m.Called(ctx, tx, b)
	return args.Error(0)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingRepository) CountConfirmedByUser(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockBookingRepository) ListByStatus(ctx context.Context, status booking.Status) ([]*booking.Booking, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*booking.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListExpiredHolds(ctx context.Context, now time.Time) ([]*booking.Booking, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*booking.Booking), args.Error(1)
}

// MockUserRepository implements user.Repository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

// MockCategoryRepository implements category.Repository
type MockCategoryRepository struct {
	mock.Mock
}

func (m *MockCategoryRepository) GetByID(ctx context.Context, id string) (*category.Category, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*category.Category), args.Error(1)
}

func (m *MockCategoryRepository) ListByEvent(ctx context.Context, eventID string) ([]*category.Category, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*category.Category), args.Error(1)
}

// MockAvailabilityCache implements AvailabilityCache
type MockAvailabilityCache struct {
	mock.Mock
}

func (m *MockAvailabilityCache) GetAvailableCount(ctx context.Context, eventID string) (int, error) {
	args := m.Called(ctx, eventID)
	return args.Int(0), args.Error(1)
}

func (m *MockAvailabilityCache) SetAvailableCount(ctx context.Context, eventID string, count int, ttl time.Duration) error {
	args := m.Called(ctx, eventID, count, ttl)
	return args.Error(0)
}

func (m *MockAvailabilityCache) Invalidate(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

// MockNotifier implements BookingNotifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) PublishBookingConfirmed(ctx context.Context, b *booking.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

// MockSeatLocker implements SeatLocker
type MockSeatLocker struct {
	mock.Mock
}

func (m *MockSeatLocker) LockSeat(ctx context.Context, area, row, seat string, ttl time.Duration) (func(context.Context) error, error) {
	args := m.Called(ctx, area, row, seat, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func(context.Context) error), args.Error(1)
}

type testDeps struct {
	store      *MockStore
	tx         *MockTx
	tickets    *MockTicketRepository
	bookings   *MockBookingRepository
	users      *MockUserRepository
	categories *MockCategoryRepository
	cache      *MockAvailabilityCache
	notifier   *MockNotifier
}

func newTestDeps() *testDeps {
	d := &testDeps{
		tx:         new(MockTx),
		tickets:    new(MockTicketRepository),
		bookings:   new(MockBookingRepository),
		users:      new(MockUserRepository),
		categories: new(MockCategoryRepository),
		cache:      new(MockAvailabilityCache),
		notifier:   new(MockNotifier),
	}
	d.store = &MockStore{tickets: d.tickets, bookings: d.bookings, users: d.users, categories: d.categories}
	return d
}

func (d *testDeps) bookingService() *BookingService {
	return NewBookingService(d.store, BookingServiceOptions{Cache: d.cache, Notifier: d.notifier})
}
