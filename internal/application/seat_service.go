package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/category"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/store"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/metrics"
)

const defaultSeatLockTTL = 10 * time.Second

// 座席割り当て結果のラベル
const (
	seatAssigned = "assigned"
	seatTaken    = "taken"
	seatInvalid  = "invalid"
	seatConflict = "conflict"
	seatNoTicket = "no_ticket"
	seatError    = "error"
)

// unknownArea はカテゴリで検証できなかったリクエストの集計先
const unknownArea = "unknown"

// SeatLocker は座席単位の分散ロックを提供する
// 取得できない場合は ticket.ErrLockConflict をラップしたエラーを返す
type SeatLocker interface {
	LockSeat(ctx context.Context, area, row, seat string, ttl time.Duration) (release func(context.Context) error, err error)
}

type SeatServiceOptions struct {
	Locker           SeatLocker
	LockTTL          time.Duration
	OperationTimeout time.Duration
	Stats            *metrics.SeatStats
	Now              func() time.Time
}

type SeatService struct {
	txm        transaction.Manager
	tickets    ticket.Repository
	bookings   booking.Repository
	categories category.Repository

	locker  SeatLocker
	lockTTL time.Duration
	timeout time.Duration
	stats   *metrics.SeatStats
	now     func() time.Time
}

func NewSeatService(st store.Store, opts SeatServiceOptions) *SeatService {
	s := &SeatService{
		txm:        st,
		tickets:    st.Tickets(),
		bookings:   st.Bookings(),
		categories: st.Categories(),
		locker:     opts.Locker,
		lockTTL:    opts.LockTTL,
		timeout:    opts.OperationTimeout,
		stats:      opts.Stats,
		now:        opts.Now,
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultSeatLockTTL
	}
	if s.stats == nil {
		s.stats = metrics.NewSeatStats(nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type AssignSeatInput struct {
	BookingID  string
	CategoryID string
	Area       string
	Row        string
	Seat       string
}

// AssignSeat は予約済みチケットの1枚に座席を割り当てる
// 座席が埋まっている・条件を満たさない場合は false を返し、エラーはストアの障害時のみ返す
func (s *SeatService) AssignSeat(ctx context.Context, input AssignSeatInput) (bool, error) {
	start := time.Now()
	area, result, err := s.assign(ctx, input)
	assigned := result == seatAssigned
	s.stats.Record(area, assigned, result, time.Since(start))
	if err != nil {
		logger.Error("座席割り当てでエラーが発生",
			zap.String("booking_id", input.BookingID),
			zap.String("seat", ticket.SeatKey(input.Area, input.Row, input.Seat)),
			zap.Error(err))
		return false, err
	}
	if !assigned {
		logger.Debug("座席を割り当てられませんでした",
			zap.String("booking_id", input.BookingID),
			zap.String("seat", ticket.SeatKey(input.Area, input.Row, input.Seat)),
			zap.String("reason", result))
	}
	return assigned, nil
}

// assign は集計に使うエリアと結果ラベルを返す
// エリアはカテゴリで検証できた場合だけカテゴリのエリアになり、それ以前に終わった場合は unknownArea になる
func (s *SeatService) assign(ctx context.Context, input AssignSeatInput) (string, string, error) {
	if input.BookingID == "" || input.CategoryID == "" || input.Area == "" || input.Row == "" || input.Seat == "" {
		return unknownArea, seatInvalid, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return unknownArea, seatError, storeErr("トランザクション開始に失敗", err)
	}
	defer tx.Rollback()

	cat, err := s.categories.GetByID(ctx, input.CategoryID)
	if err != nil {
		if errors.Is(err, category.ErrCategoryNotFound) {
			return unknownArea, seatInvalid, nil
		}
		return unknownArea, seatError, storeErr("カテゴリ取得に失敗", err)
	}
	if err := cat.CheckSeatRequest(input.Area, s.now()); err != nil {
		return unknownArea, seatInvalid, nil
	}
	result, err := s.assignInCategory(ctx, tx, cat, input)
	return cat.Area, result, err
}

func (s *SeatService) assignInCategory(ctx context.Context, tx transaction.Tx, cat *category.Category, input AssignSeatInput) (string, error) {
	// 予約単位で座席割り当てを直列化する
	b, err := s.bookings.Lock(ctx, tx, input.BookingID)
	if err != nil {
		return classifySeatErr(err, "予約のロックに失敗")
	}
	if b.Status != booking.StatusConfirmed {
		return seatInvalid, nil
	}

	if s.locker != nil {
		release, err := s.locker.LockSeat(ctx, cat.Area, input.Row, input.Seat, s.lockTTL)
		if err != nil {
			return classifySeatErr(err, "座席ロックの取得に失敗")
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("座席ロックの解放に失敗", zap.Error(err))
			}
		}()
	}

	sold, err := s.tickets.FindSoldBySeat(ctx, tx, cat.Area, input.Row, input.Seat)
	if err != nil {
		return seatError, storeErr("座席の検索に失敗", err)
	}
	if len(sold) > 0 {
		return seatTaken, nil
	}

	t, err := s.tickets.FindUnseated(ctx, tx, b.ID, cat.ID)
	if err != nil {
		if errors.Is(err, ticket.ErrTicketNotFound) {
			return seatNoTicket, nil
		}
		return classifySeatErr(err, "チケットの取得に失敗")
	}
	if err := t.AssignSeat(cat.Area, input.Row, input.Seat); err != nil {
		return seatInvalid, nil
	}
	if err := s.tickets.Update(ctx, tx, t); err != nil {
		return classifySeatErr(err, "チケット更新に失敗")
	}
	if err := tx.Commit(); err != nil {
		return classifySeatErr(err, "コミットに失敗")
	}
	return seatAssigned, nil
}

func (s *SeatService) Stats() metrics.SeatSnapshot {
	return s.stats.Snapshot()
}

// classifySeatErr は競合・埋まりを false 扱いの結果に振り分ける
func classifySeatErr(err error, msg string) (string, error) {
	switch {
	case errors.Is(err, ticket.ErrSeatTaken):
		return seatTaken, nil
	case errors.Is(err, ticket.ErrLockConflict):
		return seatConflict, nil
	case errors.Is(err, booking.ErrBookingNotFound):
		return seatInvalid, nil
	}
	return seatError, storeErr(msg, err)
}
