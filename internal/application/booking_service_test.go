package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/category"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
	redisinfra "github.com/sanosuguru/go-ticket-booking/internal/infrastructure/redis"
)

func reservedTicket(id, serial string) *ticket.Ticket {
	t := ticket.NewTicket("event-1", "cat-1", serial, "A", decimal.RequireFromString("50.00"))
	t.ID = id
	_ = t.Reserve(time.Now())
	return t
}

func activeCategory() *category.Category {
	return &category.Category{
		ID: "cat-1", EventID: "event-1", Price: decimal.RequireFromString("50.00"),
		Area: "A", StartAt: time.Now().Add(-time.Hour),
	}
}

func TestBookingService_Book_Success(t *testing.T) {
	d := newTestDeps()
	svc := d.bookingService()
	ctx := context.Background()

	d.store.On("Begin", mock.Anything).Return(d.tx, nil)
	d.users.On("GetByID", mock.Anything, "user-1").Return(&user.User{ID: "user-1"}, nil)
	d.tickets.On("Lock", mock.Anything, d.tx, "SN-001").Return(reservedTicket("t-1", "SN-001"), nil)
	d.tickets.On("Lock", mock.Anything, d.tx, "SN-002").Return(reservedTicket("t-2", "SN-002"), nil)
	d.categories.On("GetByID", mock.Anything, "cat-1").Return(activeCategory(), nil).Once()
	d.bookings.On("CountConfirmedByUser", mock.Anything, "user-1").Return(6, nil)
	d.tickets.On("Update", mock.Anything, d.tx, mock.MatchedBy(func(tk *ticket.Ticket) bool {
		return tk.Status == ticket.StatusSold && tk.PurchasedAt != nil && tk.BookingID != nil
	})).Return(nil).Twice()
	d.bookings.On("Create", mock.Anything, d.tx, mock.AnythingOfType("*booking.Booking")).Return(nil)
	d.tx.On("Commit").Return(nil)
	d.tx.On("Rollback").Return(nil).Maybe()
	d.cache.On("Invalidate", mock.Anything, "event-1").Return(nil).Once()
	d.notifier.On("PublishBookingConfirmed", mock.Anything, mock.AnythingOfType("*booking.Booking")).Return(nil)

	b, err := svc.Book(ctx, BookInput{UserID: "user-1", Serials: []string{"SN-002", "SN-001"}, DeliveryEmail: "tanaka@example.com"})
	require.NoError(t, err)

	assert.Equal(t, booking.StatusConfirmed, b.Status)
	assert.Equal(t, []string{"t-1", "t-2"}, b.TicketIDs)
	assert.Equal(t, "100.00", b.TotalPrice.StringFixed(2))
	assert.Equal(t, "5.00", b.Discount.StringFixed(2))
	assert.Equal(t, "95.00", b.FinalPrice.StringFixed(2))
	assert.NotNil(t, b.ConfirmedAt)

	// シリアル番号の昇順でロックされる
	lockCalls := 0
	for _, c := range d.tickets.Calls {
		if c.Method == "Lock" {
			lockCalls++
			if lockCalls == 1 {
				assert.Equal(t, "SN-001", c.Arguments.String(2))
			}
		}
	}
	assert.Equal(t, 2, lockCalls)
	assert.Equal(t, int64(1), svc.Stats().Successful)

	d.tickets.AssertExpectations(t)
	d.bookings.AssertExpectations(t)
	d.cache.AssertExpectations(t)
	d.notifier.AssertExpectations(t)
}

func TestBookingService_Book_TicketUnavailable(t *testing.T) {
	d := newTestDeps()
	svc := d.bookingService()

	d.store.On("Begin", mock.Anything).Return(d.tx, nil)
	d.users.On("GetByID", mock.Anything, "user-1").Return(&user.User{ID: "user-1"}, nil)
	d.tickets.On("Lock", mock.Anything, d.tx, "SN-001").Return(reservedTicket("t-1", "SN-001"), nil)
	d.tickets.On("Lock", mock.Anything, d.tx, "SN-002").Return(nil, ticket.ErrNotAvailable)
	d.tx.On("Rollback").Return(nil)

	_, err := svc.Book(context.Background(), BookInput{UserID: "user-1", Serials: []string{"SN-001", "SN-002"}, DeliveryEmail: "a@example.com"})

	require.Error(t, err)
	assert.ErrorIs(t, err, booking.ErrBookingFailed)
	assert.ErrorIs(t, err, booking.ErrTicketUnavailable)
	assert.False(t, booking.IsRetryable(err))

	var unavailable *booking.TicketUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "SN-002", unavailable.Serial)

	// 1枚目は更新されず、トランザクションは破棄される
	d.tickets.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	d.bookings.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	d.tx.AssertNotCalled(t, "Commit")
	d.tx.AssertCalled(t, "Rollback")
	assert.Equal(t, int64(1), svc.Stats().Failed)
}

func TestBookingService_Book_LockConflictIsRetryable(t *testing.T) {
	d := newTestDeps()
	svc := d.bookingService()

	d.store.On("Begin", mock.Anything).Return(d.tx, nil)
	d.users.On("GetByID", mock.Anything, "user-1").Return(&user.User{ID: "user-1"}, nil)
	d.tickets.On("Lock", mock.Anything, d.tx, "SN-001").Return(nil, ticket.ErrLockConflict)
	d.tx.On("Rollback").Return(nil)

	_, err := svc.Book(context.Background(), BookInput{UserID: "user-1", Serials: []string{"SN-001"}, DeliveryEmail: "a@example.com"})

	assert.ErrorIs(t, err, booking.ErrTicketUnavailable)
	assert.True(t, booking.IsRetryable(err))
}

func TestBookingService_Book_UserNotFound(t *testing.T) {
	d := newTestDeps()
	svc := d.bookingService()

	d.store.On("Begin", mock.Anything).Return(d.tx, nil)
	d.users.On("GetByID", mock.Anything, "ghost").Return(nil, user.ErrUserNotFound)
	d.tx.On("Rollback").Return(nil)

	_, err := svc.Book(context.Background(), BookInput{UserID: "ghost", Serials: []string{"SN-001"}, DeliveryEmail: "a@example.com"})

	assert.ErrorIs(t, err, booking.ErrBookingFailed)
	assert.ErrorIs(t, err, user.ErrUserNotFound)
	d.tickets.AssertNotCalled(t, "Lock", mock.Anything, mock.Anything, mock.Anything)
	d.tx.AssertCalled(t, "Rollback")
}

func TestBookingService_Book_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input BookInput
		want  error
	}{
		{"ユーザーIDなし", BookInput{Serials: []string{"SN-001"}, DeliveryEmail: "a@example.com"}, booking.ErrUserIDRequired},
		{"送付先なし", BookInput{UserID: "user-1", Serials: []string{"SN-001"}}, booking.ErrDeliveryEmailRequired},
		{"チケットなし", BookInput{UserID: "user-1", DeliveryEmail: "a@example.com"}, booking.ErrTicketsRequired},
		{"重複チケット", BookInput{UserID: "user-1", Serials: []string{"SN-001", "SN-001"}, DeliveryEmail: "a@example.com"}, booking.ErrDuplicateTicket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDeps()
			_, err := d.bookingService().Book(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, booking.ErrValidation)
			d.store.AssertNotCalled(t, "Begin", mock.Anything)
		})
	}
}

func TestBookingService_Book_CommitFailure(t *testing.T) {
	d := newTestDeps()
	svc := d.bookingService()

	d.store.On("Begin", mock.Anything).Return(d.tx, nil)
	d.users.On("GetByID", mock.Anything, "user-1").Return(&user.User{ID: "user-1"}, nil)
	d.tickets.On("Lock", mock.Anything, d.tx, "SN-001").Return(reservedTicket("t-1", "SN-001"), nil)
	d.categories.On("GetByID", mock.Anything, "cat-1").Return(activeCategory(), nil)
	d.bookings.On("CountConfirmedByUser", mock.Anything, "user-1").Return(0, nil)
	d.tickets.On("Update", mock.Anything, d.tx, mock.Anything).Return(nil)
	d.bookings.On("Create", mock.Anything, d.tx, mock.Anything).Return(nil)
	d.tx.On("Commit").Return(errors.New("connection reset"))
	d.tx.On("Rollback").Return(nil)

	_, err := svc.Book(context.Background(), BookInput{UserID: "user-1", Serials: []string{"SN-001"}, DeliveryEmail: "a@example.com"})

	assert.ErrorIs(t, err, booking.ErrBookingFailed)
	assert.ErrorIs(t, err, booking.ErrStore)
	d.notifier.AssertNotCalled(t, "PublishBookingConfirmed", mock.Anything, mock.Anything)
	d.cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
}

func TestBookingService_Book_NotifierFailureIgnored(t *testing.T) {
	d := newTestDeps()
	svc := d.bookingService()

	d.store.On("Begin", mock.Anything).Return(d.tx, nil)
	d.users.On("GetByID", mock.Anything, "user-1").Return(&user.User{ID: "user-1"}, nil)
	d.tickets.On("Lock", mock.Anything, d.tx, "SN-001").Return(reservedTicket("t-1", "SN-001"), nil)
	d.categories.On("GetByID", mock.Anything, "cat-1").Return(activeCategory(), nil)
	d.bookings.On("CountConfirmedByUser", mock.Anything, "user-1").Return(0, nil)
	d.tickets.On("Update", mock.Anything, d.tx, mock.Anything).Return(nil)
	d.bookings.On("Create", mock.Anything, d.tx, mock.Anything).Return(nil)
	d.tx.On("Commit").Return(nil)
	d.tx.On("Rollback").Return(nil).Maybe()
	d.cache.On("Invalidate", mock.Anything, "event-1").Return(errors.New("redis down"))
	d.notifier.On("PublishBookingConfirmed", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	b, err := svc.Book(context.Background(), BookInput{UserID: "user-1", Serials: []string{"SN-001"}, DeliveryEmail: "a@example.com"})
	require.NoError(t, err)
	assert.True(t, b.Discount.IsZero())
	assert.Equal(t, "50.00", b.FinalPrice.StringFixed(2))
}

func TestBookingService_Confirm(t *testing.T) {
	held := func() *booking.Booking {
		b, _ := booking.NewBooking("user-1", "a@example.com", []string{"t-1"}, time.Now())
		b.HoldUntil(time.Now().Add(time.Minute))
		return b
	}

	t.Run("仮押さえを確定できる", func(t *testing.T) {
		d := newTestDeps()
		svc := d.bookingService()
		b := held()
		tk := reservedTicket("t-1", "SN-001")
		require.NoError(t, tk.Hold(b.ID))

		d.store.On("Begin", mock.Anything).Return(d.tx, nil)
		d.bookings.On("Lock", mock.Anything, d.tx, b.ID).Return(b, nil)
		d.tickets.On("LockByBooking", mock.Anything, d.tx, b.ID).Return([]*ticket.Ticket{tk}, nil)
		d.categories.On("GetByID", mock.Anything, "cat-1").Return(activeCategory(), nil)
		d.bookings.On("CountConfirmedByUser", mock.Anything, "user-1").Return(0, nil)
		d.tickets.On("Update", mock.Anything, d.tx, mock.Anything).Return(nil)
		d.bookings.On("Update", mock.Anything, d.tx, mock.Anything).Return(nil)
		d.tx.On("Commit").Return(nil)
		d.tx.On("Rollback").Return(nil).Maybe()
		d.notifier.On("PublishBookingConfirmed", mock.Anything, mock.Anything).Return(nil)

		confirmed, err := svc.Confirm(context.Background(), b.ID)
		require.NoError(t, err)
		assert.Equal(t, booking.StatusConfirmed, confirmed.Status)
		assert.Nil(t, confirmed.ExpiresAt)
		assert.Equal(t, "50.00", confirmed.FinalPrice.StringFixed(2))
		assert.Equal(t, ticket.StatusSold, tk.Status)
		assert.Equal(t, int64(1), svc.Stats().Successful)
	})

	t.Run("期限切れの仮押さえは確定できない", func(t *testing.T) {
		d := newTestDeps()
		svc := d.bookingService()
		b := held()
		past := time.Now().Add(-time.Second)
		b.ExpiresAt = &past

		d.store.On("Begin", mock.Anything).Return(d.tx, nil)
		d.bookings.On("Lock", mock.Anything, d.tx, b.ID).Return(b, nil)
		d.tx.On("Rollback").Return(nil)

		_, err := svc.Confirm(context.Background(), b.ID)
		assert.ErrorIs(t, err, booking.ErrHoldExpired)
		var failed *booking.FailedError
		assert.ErrorAs(t, err, &failed)
		d.tx.AssertNotCalled(t, "Commit")

		stats := svc.Stats()
		assert.Zero(t, stats.Successful)
		assert.Equal(t, int64(1), stats.Failed)
	})

	t.Run("存在しない予約の確定も失敗として数える", func(t *testing.T) {
		d := newTestDeps()
		svc := d.bookingService()

		d.store.On("Begin", mock.Anything).Return(d.tx, nil)
		d.bookings.On("Lock", mock.Anything, d.tx, "missing").Return(nil, booking.ErrBookingNotFound)
		d.tx.On("Rollback").Return(nil)

		_, err := svc.Confirm(context.Background(), "missing")
		assert.ErrorIs(t, err, booking.ErrBookingNotFound)
		assert.ErrorIs(t, err, booking.ErrBookingFailed)
		assert.Equal(t, int64(1), svc.Stats().Failed)
	})
}

func TestBookingService_CancelExpiredHolds(t *testing.T) {
	d := newTestDeps()
	svc := d.bookingService()
	past := time.Now().Add(-time.Minute)

	expired, _ := booking.NewBooking("user-1", "a@example.com", []string{"t-1"}, past)
	expired.HoldUntil(past)
	confirmedMeanwhile, _ := booking.NewBooking("user-2", "b@example.com", []string{"t-2"}, past)
	confirmedMeanwhile.HoldUntil(past)
	latest := *confirmedMeanwhile
	latest.Status = booking.StatusConfirmed

	tk := reservedTicket("t-1", "SN-001")
	require.NoError(t, tk.Hold(expired.ID))

	d.bookings.On("ListExpiredHolds", mock.Anything, mock.Anything).Return([]*booking.Booking{expired, confirmedMeanwhile}, nil)
	d.store.On("Begin", mock.Anything).Return(d.tx, nil)
	d.bookings.On("Lock", mock.Anything, d.tx, expired.ID).Return(expired, nil)
	d.bookings.On("Lock", mock.Anything, d.tx, confirmedMeanwhile.ID).Return(&latest, nil)
	d.tickets.On("LockByBooking", mock.Anything, d.tx, expired.ID).Return([]*ticket.Ticket{tk}, nil)
	d.tickets.On("Update", mock.Anything, d.tx, mock.MatchedBy(func(t *ticket.Ticket) bool {
		return t.Status == ticket.StatusAvailable && t.BookingID == nil
	})).Return(nil)
	d.bookings.On("Update", mock.Anything, d.tx, mock.MatchedBy(func(b *booking.Booking) bool {
		return b.Status == booking.StatusCanceled
	})).Return(nil)
	d.tx.On("Commit").Return(nil)
	d.tx.On("Rollback").Return(nil)
	d.cache.On("Invalidate", mock.Anything, "event-1").Return(nil)

	n, err := svc.CancelExpiredHolds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	d.tickets.AssertNotCalled(t, "LockByBooking", mock.Anything, mock.Anything, confirmedMeanwhile.ID)
}

func TestBookingService_CountAvailable(t *testing.T) {
	ctx := context.Background()

	t.Run("キャッシュヒット", func(t *testing.T) {
		d := newTestDeps()
		d.cache.On("GetAvailableCount", ctx, "event-1").Return(7, nil)

		n, err := d.bookingService().CountAvailable(ctx, "event-1")
		require.NoError(t, err)
		assert.Equal(t, 7, n)
		d.tickets.AssertNotCalled(t, "CountByStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("キャッシュミスはストアから取得して保存する", func(t *testing.T) {
		d := newTestDeps()
		d.cache.On("GetAvailableCount", ctx, "event-1").Return(0, redisinfra.ErrCacheMiss)
		d.tickets.On("CountByStatus", ctx, "event-1", ticket.StatusAvailable).Return(3, nil)
		d.cache.On("SetAvailableCount", ctx, "event-1", 3, availabilityCacheTTL).Return(nil)

		n, err := d.bookingService().CountAvailable(ctx, "event-1")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		d.cache.AssertExpectations(t)
	})

	t.Run("キャッシュ障害時もストアから取得する", func(t *testing.T) {
		d := newTestDeps()
		d.cache.On("GetAvailableCount", ctx, "event-1").Return(0, errors.New("timeout"))
		d.tickets.On("CountByStatus", ctx, "event-1", ticket.StatusAvailable).Return(4, nil)
		d.cache.On("SetAvailableCount", ctx, "event-1", 4, availabilityCacheTTL).Return(errors.New("timeout"))

		n, err := d.bookingService().CountAvailable(ctx, "event-1")
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})
}
