package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/category"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/store"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
	redisinfra "github.com/sanosuguru/go-ticket-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/metrics"
)

const (
	availabilityCacheTTL = 30 * time.Second
	defaultHoldTTL       = 15 * time.Minute
)

// AvailabilityCache はイベントごとの空きチケット数のキャッシュ
type AvailabilityCache interface {
	GetAvailableCount(ctx context.Context, eventID string) (int, error)
	SetAvailableCount(ctx context.Context, eventID string, count int, ttl time.Duration) error
	Invalidate(ctx context.Context, eventID string) error
}

// BookingNotifier は確定した予約を外部へ通知する
type BookingNotifier interface {
	PublishBookingConfirmed(ctx context.Context, b *booking.Booking) error
}

// BookingServiceOptions は予約サービスの任意設定
type BookingServiceOptions struct {
	Discount         booking.DiscountPolicy
	HoldTTL          time.Duration
	OperationTimeout time.Duration
	Cache            AvailabilityCache
	Notifier         BookingNotifier
	Stats            *metrics.BookingStats
	Now              func() time.Time
}

type BookingService struct {
	txm        transaction.Manager
	tickets    ticket.Repository
	bookings   booking.Repository
	users      user.Repository
	categories category.Repository

	discount booking.DiscountPolicy
	holdTTL  time.Duration
	timeout  time.Duration
	cache    AvailabilityCache
	notifier BookingNotifier
	stats    *metrics.BookingStats
	now      func() time.Time
}

func NewBookingService(st store.Store, opts BookingServiceOptions) *BookingService {
	s := &BookingService{
		txm:        st,
		tickets:    st.Tickets(),
		bookings:   st.Bookings(),
		users:      st.Users(),
		categories: st.Categories(),
		discount:   opts.Discount,
		holdTTL:    opts.HoldTTL,
		timeout:    opts.OperationTimeout,
		cache:      opts.Cache,
		notifier:   opts.Notifier,
		stats:      opts.Stats,
		now:        opts.Now,
	}
	if s.discount == nil {
		s.discount = booking.DefaultLoyaltyDiscount()
	}
	if s.holdTTL <= 0 {
		s.holdTTL = defaultHoldTTL
	}
	if s.stats == nil {
		s.stats = metrics.NewBookingStats(nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type BookInput struct {
	UserID        string
	Serials       []string
	DeliveryEmail string
}

// Book は指定したチケットを全て確保して購入する。1枚でも確保できなければ何も変更しない
// 失敗は全て *booking.FailedError として返る
func (s *BookingService) Book(ctx context.Context, input BookInput) (*booking.Booking, error) {
	start := time.Now()
	b, err := s.reserve(ctx, input, false)
	elapsed := time.Since(start)
	if err != nil {
		reason := failureReason(err)
		s.stats.RecordFailure(reason, elapsed)
		logger.Debug("予約に失敗",
			zap.String("user_id", input.UserID),
			zap.Strings("serials", input.Serials),
			zap.String("reason", reason),
			zap.Error(err))
		return nil, &booking.FailedError{Cause: err}
	}
	s.stats.RecordSuccess(len(b.TicketIDs), elapsed)
	logger.Info("予約が確定しました",
		zap.String("booking_id", b.ID),
		zap.String("user_id", b.UserID),
		zap.Int("tickets", len(b.TicketIDs)),
		zap.String("final_price", b.FinalPrice.StringFixed(2)))
	s.notify(ctx, b)
	return b, nil
}

// Hold はチケットを仮押さえし、期限付きの IN_PROGRESS 予約を作成する
func (s *BookingService) Hold(ctx context.Context, input BookInput) (*booking.Booking, error) {
	b, err := s.reserve(ctx, input, true)
	if err != nil {
		return nil, &booking.FailedError{Cause: err}
	}
	logger.Info("チケットを仮押さえしました",
		zap.String("booking_id", b.ID),
		zap.Time("expires_at", *b.ExpiresAt))
	return b, nil
}

func (s *BookingService) reserve(ctx context.Context, input BookInput, hold bool) (*booking.Booking, error) {
	serials, err := validateBookInput(input)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return nil, storeErr("トランザクション開始に失敗", err)
	}
	defer tx.Rollback()

	u, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, err
		}
		return nil, storeErr("ユーザー取得に失敗", err)
	}

	// シリアル番号の昇順でロックしてデッドロックを防止
	locked := make([]*ticket.Ticket, 0, len(serials))
	for _, serial := range serials {
		t, err := s.tickets.Lock(ctx, tx, serial)
		if err != nil {
			// SQL ストアでは利用不可でも行ロックが残るため、ここで必ず中断してロールバックする
			if isUnavailable(err) {
				return nil, &booking.TicketUnavailableError{Serial: serial, Cause: err}
			}
			return nil, storeErr("チケットのロックに失敗", err)
		}
		locked = append(locked, t)
	}

	prices, total, err := s.price(ctx, locked)
	if err != nil {
		return nil, err
	}
	prior, err := s.bookings.CountConfirmedByUser(ctx, u.ID)
	if err != nil {
		return nil, storeErr("予約数の取得に失敗", err)
	}

	now := s.now()
	ids := make([]string, len(locked))
	for i, t := range locked {
		ids[i] = t.ID
	}
	b, err := booking.NewBooking(u.ID, input.DeliveryEmail, ids, now)
	if err != nil {
		return nil, err
	}
	if err := b.ApplyPrice(total, s.discount.Discount(total, prior)); err != nil {
		return nil, err
	}

	for i, t := range locked {
		if hold {
			err = t.Hold(b.ID)
		} else {
			err = t.Sell(b.ID, prices[i], now)
		}
		if err != nil {
			return nil, err
		}
		if err := s.tickets.Update(ctx, tx, t); err != nil {
			return nil, storeErr("チケット更新に失敗", err)
		}
	}

	if hold {
		b.HoldUntil(now.Add(s.holdTTL))
	} else if err := b.Confirm(now); err != nil {
		return nil, err
	}
	if err := s.bookings.Create(ctx, tx, b); err != nil {
		return nil, storeErr("予約作成に失敗", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("コミットに失敗", err)
	}

	s.invalidate(ctx, locked)
	return b, nil
}

// Confirm は仮押さえ中の予約を購入確定する。価格と割引は確定時点で計算する
// Book と同様に失敗は *booking.FailedError として返り、集計にも失敗として残る
func (s *BookingService) Confirm(ctx context.Context, id string) (*booking.Booking, error) {
	start := time.Now()
	b, err := s.confirm(ctx, id)
	elapsed := time.Since(start)
	if err != nil {
		reason := failureReason(err)
		s.stats.RecordFailure(reason, elapsed)
		logger.Debug("予約の確定に失敗",
			zap.String("booking_id", id),
			zap.String("reason", reason),
			zap.Error(err))
		return nil, &booking.FailedError{Cause: err}
	}
	s.stats.RecordSuccess(len(b.TicketIDs), elapsed)
	logger.Info("仮押さえを確定しました",
		zap.String("booking_id", b.ID),
		zap.String("final_price", b.FinalPrice.StringFixed(2)))
	s.notify(ctx, b)
	return b, nil
}

func (s *BookingService) confirm(ctx context.Context, id string) (*booking.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return nil, storeErr("トランザクション開始に失敗", err)
	}
	defer tx.Rollback()

	// 予約 → チケットの順でロックする
	b, err := s.bookings.Lock(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if b.IsExpired(now) {
		return nil, booking.ErrHoldExpired
	}
	if b.Status != booking.StatusInProgress {
		return nil, booking.ErrBookingNotInProgress
	}

	tickets, err := s.tickets.LockByBooking(ctx, tx, b.ID)
	if err != nil {
		return nil, err
	}
	if len(tickets) != len(b.TicketIDs) {
		return nil, fmt.Errorf("予約 %s のチケットが揃っていません（%d/%d）: %w",
			b.ID, len(tickets), len(b.TicketIDs), ticket.ErrTicketNotReserved)
	}

	prices, total, err := s.price(ctx, tickets)
	if err != nil {
		return nil, err
	}
	prior, err := s.bookings.CountConfirmedByUser(ctx, b.UserID)
	if err != nil {
		return nil, storeErr("予約数の取得に失敗", err)
	}
	if err := b.ApplyPrice(total, s.discount.Discount(total, prior)); err != nil {
		return nil, err
	}

	for i, t := range tickets {
		if err := t.Sell(b.ID, prices[i], now); err != nil {
			return nil, err
		}
		if err := s.tickets.Update(ctx, tx, t); err != nil {
			return nil, storeErr("チケット更新に失敗", err)
		}
	}
	if err := b.Confirm(now); err != nil {
		return nil, err
	}
	if err := s.bookings.Update(ctx, tx, b); err != nil {
		return nil, storeErr("予約更新に失敗", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("コミットに失敗", err)
	}
	return b, nil
}

// Cancel は予約を取り消してチケットを予約可能に戻す。確定済みの予約も取り消せる
func (s *BookingService) Cancel(ctx context.Context, id string) (*booking.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.cancel(ctx, id, false)
}

func (s *BookingService) cancel(ctx context.Context, id string, expiredOnly bool) (*booking.Booking, error) {
	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return nil, storeErr("トランザクション開始に失敗", err)
	}
	defer tx.Rollback()

	b, err := s.bookings.Lock(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	// ロック待ちの間に確定された仮押さえは取り消さない
	if expiredOnly && !b.IsExpired(now) {
		return nil, booking.ErrBookingNotInProgress
	}
	if err := b.Cancel(now); err != nil {
		return nil, err
	}

	tickets, err := s.tickets.LockByBooking(ctx, tx, b.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range tickets {
		t.Release()
		if err := s.tickets.Update(ctx, tx, t); err != nil {
			return nil, storeErr("チケット更新に失敗", err)
		}
	}
	if err := s.bookings.Update(ctx, tx, b); err != nil {
		return nil, storeErr("予約更新に失敗", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("コミットに失敗", err)
	}

	s.invalidate(ctx, tickets)
	logger.Info("予約を取り消しました", zap.String("booking_id", b.ID), zap.Int("tickets", len(tickets)))
	return b, nil
}

// CancelExpiredHolds は期限切れの仮押さえを全て取り消し、取り消した件数を返す
func (s *BookingService) CancelExpiredHolds(ctx context.Context) (int, error) {
	expired, err := s.bookings.ListExpiredHolds(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("期限切れ予約の取得に失敗: %w", err)
	}

	canceled := 0
	var errs []error
	for _, b := range expired {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		opCtx, cancel := s.withTimeout(ctx)
		_, err := s.cancel(opCtx, b.ID, true)
		cancel()
		if err != nil {
			if errors.Is(err, booking.ErrBookingNotInProgress) || errors.Is(err, booking.ErrBookingAlreadyCanceled) {
				continue
			}
			logger.Warn("期限切れ予約の取り消しに失敗", zap.String("booking_id", b.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		canceled++
	}
	return canceled, errors.Join(errs...)
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

// CountAvailable はイベントの予約可能なチケット数を返す
func (s *BookingService) CountAvailable(ctx context.Context, eventID string) (int, error) {
	// キャッシュから取得を試みる
	if s.cache != nil {
		count, err := s.cache.GetAvailableCount(ctx, eventID)
		if err == nil {
			logger.Debug("キャッシュヒット", zap.String("event_id", eventID), zap.Int("count", count))
			return count, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.Warn("キャッシュ取得エラー", zap.Error(err))
		}
	}

	count, err := s.tickets.CountByStatus(ctx, eventID, ticket.StatusAvailable)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if cacheErr := s.cache.SetAvailableCount(ctx, eventID, count, availabilityCacheTTL); cacheErr != nil {
			logger.Warn("キャッシュ保存エラー", zap.Error(cacheErr))
		}
	}
	return count, nil
}

func (s *BookingService) Stats() metrics.BookingSnapshot {
	return s.stats.Snapshot()
}

// price はチケットごとのカテゴリ価格と合計を返す
func (s *BookingService) price(ctx context.Context, tickets []*ticket.Ticket) ([]decimal.Decimal, decimal.Decimal, error) {
	cats := make(map[string]*category.Category)
	prices := make([]decimal.Decimal, len(tickets))
	total := decimal.Zero
	for i, t := range tickets {
		c, ok := cats[t.CategoryID]
		if !ok {
			var err error
			c, err = s.categories.GetByID(ctx, t.CategoryID)
			if err != nil {
				return nil, decimal.Zero, fmt.Errorf("チケット %s のカテゴリ取得に失敗: %w", t.SerialNumber, err)
			}
			cats[t.CategoryID] = c
		}
		prices[i] = c.Price
		total = total.Add(c.Price)
	}
	return prices, total, nil
}

func (s *BookingService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *BookingService) invalidate(ctx context.Context, tickets []*ticket.Ticket) {
	if s.cache == nil {
		return
	}
	seen := make(map[string]struct{})
	for _, t := range tickets {
		if _, ok := seen[t.EventID]; ok {
			continue
		}
		seen[t.EventID] = struct{}{}
		if err := s.cache.Invalidate(ctx, t.EventID); err != nil {
			logger.Warn("キャッシュ無効化エラー", zap.String("event_id", t.EventID), zap.Error(err))
		}
	}
}

// notify の失敗は予約結果に影響させない
func (s *BookingService) notify(ctx context.Context, b *booking.Booking) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishBookingConfirmed(ctx, b); err != nil {
		logger.Warn("予約確定通知の送信に失敗", zap.String("booking_id", b.ID), zap.Error(err))
	}
}

func validateBookInput(input BookInput) ([]string, error) {
	if input.UserID == "" {
		return nil, booking.ErrUserIDRequired
	}
	if input.DeliveryEmail == "" {
		return nil, booking.ErrDeliveryEmailRequired
	}
	if len(input.Serials) == 0 {
		return nil, booking.ErrTicketsRequired
	}
	serials := make([]string, len(input.Serials))
	copy(serials, input.Serials)
	sort.Strings(serials)
	for i := 1; i < len(serials); i++ {
		if serials[i] == serials[i-1] {
			return nil, fmt.Errorf("%w: %s", booking.ErrDuplicateTicket, serials[i])
		}
	}
	return serials, nil
}

func isUnavailable(err error) bool {
	return errors.Is(err, ticket.ErrNotAvailable) ||
		errors.Is(err, ticket.ErrLockConflict) ||
		errors.Is(err, ticket.ErrTicketNotFound)
}

func storeErr(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", booking.ErrStore, msg, err)
}

// failureReason はメトリクスのラベルに使う失敗理由を返す
func failureReason(err error) string {
	switch {
	case errors.Is(err, ticket.ErrLockConflict):
		return "conflict"
	case errors.Is(err, booking.ErrTicketUnavailable):
		return "unavailable"
	case errors.Is(err, user.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, booking.ErrValidation):
		return "invalid"
	case errors.Is(err, booking.ErrHoldExpired):
		return "expired"
	case errors.Is(err, booking.ErrBookingNotFound),
		errors.Is(err, booking.ErrBookingNotInProgress),
		errors.Is(err, booking.ErrBookingAlreadyCanceled),
		errors.Is(err, ticket.ErrTicketNotReserved):
		return "state"
	default:
		return "error"
	}
}
