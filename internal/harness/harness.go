// Package harness は予約・座席割り当てを多数のワーカーから同時に実行し、
// 実行後にストア全体の不変条件（二重販売なし・座席重複なし）を検証する。
package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/sanosuguru/go-ticket-booking/internal/application"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/store"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
)

// Booker は予約を実行する
type Booker interface {
	Book(ctx context.Context, input application.BookInput) (*booking.Booking, error)
}

// SeatAssigner は座席を割り当てる
type SeatAssigner interface {
	AssignSeat(ctx context.Context, input application.AssignSeatInput) (bool, error)
}

// RetryPolicy はロック競合時の再試行ルール。ロック競合以外は再試行しない
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

type Harness struct {
	tickets  ticket.Repository
	bookings booking.Repository
	booker   Booker
	seats    SeatAssigner
}

func New(st store.Store, booker Booker, seats SeatAssigner) *Harness {
	return &Harness{
		tickets:  st.Tickets(),
		bookings: st.Bookings(),
		booker:   booker,
		seats:    seats,
	}
}

// Report は予約シナリオの実行結果
// Successful+Failed は常に Workers×AttemptsPerWorker に一致する
type Report struct {
	Workers          int
	Successful       int64
	Failed           int64 // タイムアウトで開始できなかった試行を含む
	Unavailable      int64
	Retries          int64
	Unfinished       int64 // タイムアウト時点で終わっていなかったワーカー数
	InitialAvailable int
	FinalAvailable   int
	TicketsBooked    int
	Elapsed          time.Duration
	Violations       []string
}

// OK は不変条件の違反がなかったかを返す
func (r *Report) OK() bool { return len(r.Violations) == 0 }

func (r *Report) String() string {
	return fmt.Sprintf(
		"workers=%d successful=%d failed=%d (unavailable=%d) retries=%d unfinished=%d available=%d->%d booked=%d elapsed=%s violations=%d",
		r.Workers, r.Successful, r.Failed, r.Unavailable, r.Retries, r.Unfinished,
		r.InitialAvailable, r.FinalAvailable, r.TicketsBooked, r.Elapsed.Round(time.Millisecond), len(r.Violations))
}

// SeatReport は座席割り当てシナリオの実行結果
type SeatReport struct {
	Workers    int
	Targets    int
	Successful int64
	Failed     int64
	Errors     int64
	Unfinished int64
	Seated     int
	Elapsed    time.Duration
	Violations []string
}

func (r *SeatReport) OK() bool { return len(r.Violations) == 0 }

func (r *SeatReport) String() string {
	return fmt.Sprintf(
		"workers=%d targets=%d successful=%d failed=%d errors=%d unfinished=%d seated=%d elapsed=%s violations=%d",
		r.Workers, r.Targets, r.Successful, r.Failed, r.Errors, r.Unfinished, r.Seated,
		r.Elapsed.Round(time.Millisecond), len(r.Violations))
}

// sleep はコンテキストの終了を待ちつつ d だけ待機する
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
