package harness

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	uatomic "go.uber.org/atomic"

	"github.com/sanosuguru/go-ticket-booking/internal/application"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/store"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/infrastructure/memory"
)

const testEvent = "event-harness"

type env struct {
	store   *memory.Store
	catalog store.Catalog
	harness *Harness
}

func setup(t *testing.T, strategy ticket.LockStrategy, tickets, users int) *env {
	t.Helper()
	st := memory.NewStore(strategy)
	c := GenerateCatalog(FixtureConfig{EventID: testEvent, Tickets: tickets, Users: users})
	require.NoError(t, st.Seed(context.Background(), c))
	h := New(st,
		application.NewBookingService(st, application.BookingServiceOptions{}),
		application.NewSeatService(st, application.SeatServiceOptions{}))
	return &env{store: st, catalog: c, harness: h}
}

func TestRunBookings_NoOverselling(t *testing.T) {
	for _, strategy := range []ticket.LockStrategy{ticket.LockBlocking, ticket.LockConditional} {
		for _, sel := range []Selection{SelectRandom, SelectRoundRobin, SelectClaim} {
			t.Run(string(strategy)+"/"+string(sel), func(t *testing.T) {
				e := setup(t, strategy, 30, 5)

				report, err := e.harness.RunBookings(context.Background(), BookingScenario{
					EventID:           testEvent,
					Workers:           20,
					AttemptsPerWorker: 5,
					MaxItems:          3,
					Users:             UserIDs(e.catalog),
					Selection:         sel,
					Timeout:           10 * time.Second,
					Retry:             RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond},
					Seed:              42,
				})
				require.NoError(t, err)
				assert.True(t, report.OK(), "%v", report.Violations)
				assert.Zero(t, report.Unfinished)
				assert.Equal(t, 30, report.InitialAvailable)
				assert.Equal(t, report.InitialAvailable-report.FinalAvailable, report.TicketsBooked)
				assert.LessOrEqual(t, report.TicketsBooked, 30)
				assert.Positive(t, report.Successful)

				sold, err := e.store.Tickets().CountByStatus(context.Background(), testEvent, ticket.StatusSold)
				require.NoError(t, err)
				assert.Equal(t, report.TicketsBooked, sold)

				assert.Equal(t, int64(100), report.Successful+report.Failed)
				if sel == SelectClaim {
					// 払い出しが重複しないので全チケットが売れ、失敗は払い出し切れ後の試行だけになる
					assert.Equal(t, 30, report.TicketsBooked)
					assert.Zero(t, report.FinalAvailable)
					assert.Equal(t, report.Unavailable, report.Failed)
				}
			})
		}
	}
}

func TestRunBookings_RequiresEventAndUsers(t *testing.T) {
	e := setup(t, ticket.LockBlocking, 1, 1)

	_, err := e.harness.RunBookings(context.Background(), BookingScenario{Users: UserIDs(e.catalog)})
	assert.Error(t, err)

	_, err = e.harness.RunBookings(context.Background(), BookingScenario{EventID: testEvent})
	assert.Error(t, err)
}

// scriptedBooker は呼び出し回数に応じて決まったエラーを返す
type scriptedBooker struct {
	calls uatomic.Int64
	errs  []error
	block bool
	made  *booking.Booking
}

func (b *scriptedBooker) Book(ctx context.Context, _ application.BookInput) (*booking.Booking, error) {
	n := b.calls.Inc()
	if b.block {
		<-ctx.Done()
		return nil, &booking.FailedError{Cause: ctx.Err()}
	}
	if int(n) <= len(b.errs) {
		return nil, b.errs[n-1]
	}
	if b.made != nil {
		return b.made, nil
	}
	return &booking.Booking{ID: "b-1", Status: booking.StatusConfirmed}, nil
}

func conflict() error {
	return &booking.FailedError{Cause: &booking.TicketUnavailableError{Serial: "SN-00001", Cause: ticket.ErrLockConflict}}
}

func TestRunBookings_RetryPolicy(t *testing.T) {
	tests := []struct {
		name           string
		errs           []error
		maxRetries     int
		wantCalls      int64
		wantRetries    int64
		wantSuccessful int64
		wantUnavail    int64
	}{
		{
			name:           "ロック競合は上限まで再試行する",
			errs:           []error{conflict(), conflict()},
			maxRetries:     3,
			wantCalls:      3,
			wantRetries:    2,
			wantSuccessful: 1,
		},
		{
			name:        "上限を超えたら失敗",
			errs:        []error{conflict(), conflict()},
			maxRetries:  1,
			wantCalls:   2,
			wantRetries: 1,
			wantUnavail: 1,
		},
		{
			name:        "売り切れは再試行しない",
			errs:        []error{&booking.FailedError{Cause: &booking.TicketUnavailableError{Serial: "SN-00001", Cause: ticket.ErrNotAvailable}}},
			maxRetries:  3,
			wantCalls:   1,
			wantUnavail: 1,
		},
		{
			name:       "入力不正は再試行しない",
			errs:       []error{&booking.FailedError{Cause: booking.ErrValidation}},
			maxRetries: 3,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t, ticket.LockConditional, 3, 1)
			booker := &scriptedBooker{errs: tt.errs}
			h := New(e.store, booker, nil)

			report, err := h.RunBookings(context.Background(), BookingScenario{
				EventID: testEvent,
				Workers: 1,
				Users:   UserIDs(e.catalog),
				Retry:   RetryPolicy{MaxRetries: tt.maxRetries},
				Seed:    1,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, booker.calls.Load())
			assert.Equal(t, tt.wantRetries, report.Retries)
			assert.Equal(t, tt.wantSuccessful, report.Successful)
			assert.Equal(t, 1-tt.wantSuccessful, report.Failed)
			assert.Equal(t, tt.wantUnavail, report.Unavailable)
			assert.True(t, report.OK())
		})
	}
}

func TestRunBookings_TimeoutCountsUnfinishedWorkers(t *testing.T) {
	e := setup(t, ticket.LockBlocking, 3, 1)
	booker := &scriptedBooker{block: true}
	h := New(e.store, booker, nil)

	report, err := h.RunBookings(context.Background(), BookingScenario{
		EventID:           testEvent,
		Workers:           3,
		AttemptsPerWorker: 2,
		Users:             UserIDs(e.catalog),
		Timeout:           50 * time.Millisecond,
		Seed:              1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Unfinished)
	// 実行中の1回と開始できなかった1回が、ワーカーごとに1度ずつ数えられる
	assert.Equal(t, int64(6), report.Failed)
	assert.Equal(t, int64(3), booker.calls.Load())
	assert.Zero(t, report.Successful)
	assert.Zero(t, report.TicketsBooked)
	assert.True(t, report.OK())
}

func TestRunBookings_DetectsPhantomBooking(t *testing.T) {
	e := setup(t, ticket.LockBlocking, 3, 1)
	tk, err := e.store.Tickets().GetBySerial(context.Background(), "SN-00001")
	require.NoError(t, err)

	// ストアを変更せずに成功を返す予約は検証で検出される
	phantom := &booking.Booking{ID: "phantom", Status: booking.StatusConfirmed, TicketIDs: []string{tk.ID}}
	h := New(e.store, &scriptedBooker{made: phantom}, nil)

	report, err := h.RunBookings(context.Background(), BookingScenario{
		EventID: testEvent,
		Workers: 1,
		Users:   UserIDs(e.catalog),
		Seed:    1,
	})
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Zero(t, report.TicketsBooked)
}

func TestRunSeatAssignments_NoDuplicateSeats(t *testing.T) {
	for _, strategy := range []ticket.LockStrategy{ticket.LockBlocking, ticket.LockConditional} {
		t.Run(string(strategy), func(t *testing.T) {
			e := setup(t, strategy, 30, 3)
			ctx := context.Background()

			booked, err := e.harness.RunBookings(ctx, BookingScenario{
				EventID:           testEvent,
				Workers:           10,
				AttemptsPerWorker: 10,
				MaxItems:          3,
				Users:             UserIDs(e.catalog),
				Selection:         SelectClaim,
				Seed:              7,
			})
			require.NoError(t, err)
			require.Equal(t, 30, booked.TicketsBooked)

			// 1エリアあたり2席しかないので大半は埋まっている座席に当たる
			report, err := e.harness.RunSeatAssignments(ctx, SeatScenario{
				EventID:           testEvent,
				Workers:           10,
				AttemptsPerWorker: 10,
				Rows:              1,
				SeatsPerRow:       2,
				Timeout:           10 * time.Second,
				Seed:              7,
			})
			require.NoError(t, err)
			assert.True(t, report.OK(), "%v", report.Violations)
			assert.Equal(t, 30, report.Targets)
			assert.Zero(t, report.Errors)
			assert.Equal(t, int64(report.Seated), report.Successful)
			assert.LessOrEqual(t, report.Seated, 6)
			assert.Positive(t, report.Seated)
			assert.Equal(t, int64(100), report.Successful+report.Failed)
		})
	}
}

// blockingSeats はコンテキストが終わるまで座席割り当てを返さない
type blockingSeats struct {
	calls uatomic.Int64
}

func (s *blockingSeats) AssignSeat(ctx context.Context, _ application.AssignSeatInput) (bool, error) {
	s.calls.Inc()
	<-ctx.Done()
	return false, nil
}

func TestRunSeatAssignments_TimeoutCountsEachAttemptOnce(t *testing.T) {
	e := setup(t, ticket.LockBlocking, 6, 2)
	ctx := context.Background()

	_, err := e.harness.RunBookings(ctx, BookingScenario{
		EventID:   testEvent,
		Workers:   2,
		Users:     UserIDs(e.catalog),
		Selection: SelectClaim,
		Seed:      1,
	})
	require.NoError(t, err)

	seats := &blockingSeats{}
	h := New(e.store, nil, seats)
	report, err := h.RunSeatAssignments(ctx, SeatScenario{
		EventID:           testEvent,
		Workers:           4,
		AttemptsPerWorker: 3,
		Timeout:           50 * time.Millisecond,
		Seed:              1,
	})
	require.NoError(t, err)
	require.Positive(t, report.Targets)
	assert.Equal(t, int64(4), report.Unfinished)
	assert.Equal(t, int64(4), seats.calls.Load())
	assert.Zero(t, report.Successful)
	assert.Equal(t, int64(12), report.Failed)
}

func TestRunSeatAssignments_NoTargets(t *testing.T) {
	e := setup(t, ticket.LockBlocking, 3, 1)

	report, err := e.harness.RunSeatAssignments(context.Background(), SeatScenario{EventID: testEvent, Workers: 4})
	require.NoError(t, err)
	assert.Zero(t, report.Targets)
	assert.Zero(t, report.Successful)
}

func TestGenerateCatalog(t *testing.T) {
	c := GenerateCatalog(FixtureConfig{EventID: "ev", Tickets: 7, Users: 2})

	require.Len(t, c.Categories, 3)
	require.Len(t, c.Tickets, 7)
	require.Len(t, c.Users, 2)

	prices := map[string]string{}
	for _, cat := range c.Categories {
		prices[cat.ID] = cat.Price.StringFixed(2)
		assert.NoError(t, cat.Validate())
	}
	for i, tk := range c.Tickets {
		assert.NoError(t, tk.Validate())
		assert.Equal(t, ticket.StatusAvailable, tk.Status)
		assert.Equal(t, prices[tk.CategoryID], tk.Price.StringFixed(2))
		assert.Equal(t, c.Categories[i%3].Area, tk.Area)
	}
	assert.Equal(t, "SN-00001", c.Tickets[0].SerialNumber)
	assert.Equal(t, "sim-user-0002", c.Users[1].Username)
	assert.Len(t, UserIDs(c), 2)

	prefixed := GenerateCatalog(FixtureConfig{EventID: "ev", Tickets: 1, Users: 1, Prefix: "run1-"})
	assert.Equal(t, "run1-SN-00001", prefixed.Tickets[0].SerialNumber)
	assert.Equal(t, "run1-sim-user-0001@example.com", prefixed.Users[0].Email)
}

func TestParseSelection(t *testing.T) {
	for in, want := range map[string]Selection{"": SelectRandom, "RANDOM": SelectRandom, "round_robin": SelectRoundRobin, "claim": SelectClaim} {
		got, err := ParseSelection(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSelection("fifo")
	assert.Error(t, err)
}

func TestClaimPicker_HandsOutEachSerialOnce(t *testing.T) {
	serials := []string{"a", "b", "c", "d", "e"}
	p := newPicker(SelectClaim, serials, newRand(1))

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := newRand(int64(w))
			for {
				got := p.pick(rng, 2)
				if len(got) == 0 {
					return
				}
				mu.Lock()
				for _, s := range got {
					seen[s]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, len(serials))
	for s, n := range seen {
		assert.Equal(t, 1, n, s)
	}
}

func TestRoundRobinPicker_Wraps(t *testing.T) {
	p := newPicker(SelectRoundRobin, []string{"a", "b", "c"}, newRand(1))

	assert.Equal(t, []string{"a", "b"}, p.pick(nil, 2))
	assert.Equal(t, []string{"c", "a"}, p.pick(nil, 2))
	assert.Equal(t, []string{"b", "c", "a"}, p.pick(nil, 5))
}

func TestRandomPicker_DistinctSerials(t *testing.T) {
	p := newPicker(SelectRandom, []string{"a", "b", "c"}, newRand(1))

	got := p.pick(newRand(3), 5)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, got)
}
