package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sanosuguru/go-ticket-booking/internal/application"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/logger"
)

// BookingScenario は予約シナリオの設定
type BookingScenario struct {
	EventID           string
	Workers           int
	AttemptsPerWorker int
	MaxItems          int
	Users             []string
	Selection         Selection
	Timeout           time.Duration
	Retry             RetryPolicy
	Seed              int64
}

func (s *BookingScenario) normalize() error {
	if s.EventID == "" {
		return errors.New("イベントIDは必須です")
	}
	if len(s.Users) == 0 {
		return errors.New("ユーザーが1人以上必要です")
	}
	if s.Workers <= 0 {
		s.Workers = 1
	}
	if s.AttemptsPerWorker <= 0 {
		s.AttemptsPerWorker = 1
	}
	if s.MaxItems <= 0 {
		s.MaxItems = 2
	}
	if s.Selection == "" {
		s.Selection = SelectRandom
	}
	if s.Seed == 0 {
		s.Seed = time.Now().UnixNano()
	}
	return nil
}

type bookingRun struct {
	successful  atomic.Int64
	failed      atomic.Int64
	unavailable atomic.Int64
	retries     atomic.Int64

	mu     sync.Mutex
	booked []*booking.Booking
}

// RunBookings は Workers 個のワーカーを同時に開始し、それぞれ AttemptsPerWorker 回予約を試みる
// 全ワーカーの終了（またはタイムアウト）後にストアを検証した結果を返す
func (h *Harness) RunBookings(ctx context.Context, sc BookingScenario) (*Report, error) {
	if err := sc.normalize(); err != nil {
		return nil, err
	}
	initial, err := h.tickets.ListAvailableSerials(ctx, sc.EventID)
	if err != nil {
		return nil, fmt.Errorf("予約可能なチケットの取得に失敗: %w", err)
	}

	runCtx, cancel := h.withTimeout(ctx, sc.Timeout)
	defer cancel()

	pick := newPicker(sc.Selection, initial, newRand(sc.Seed))
	run := &bookingRun{}
	finished := atomic.NewInt64(0)
	start := make(chan struct{})

	var g errgroup.Group
	for w := 0; w < sc.Workers; w++ {
		w := w
		g.Go(func() error {
			<-start
			rng := newRand(sc.Seed + int64(w) + 1)
			userID := sc.Users[w%len(sc.Users)]
			for a := 0; a < sc.AttemptsPerWorker; a++ {
				rest := int64(sc.AttemptsPerWorker - a)
				if runCtx.Err() != nil {
					// 開始できなかった残りの試行は失敗として数える
					run.failed.Add(rest)
					return nil
				}
				serials := pick.pick(rng, 1+rng.Intn(sc.MaxItems))
				if len(serials) == 0 {
					// 払い出すチケットが尽きたので残りの試行は売り切れ扱い
					run.failed.Add(rest)
					run.unavailable.Add(rest)
					break
				}
				h.attempt(runCtx, run, sc.Retry, application.BookInput{
					UserID:        userID,
					Serials:       serials,
					DeliveryEmail: userID + "@example.com",
				})
			}
			finished.Inc()
			return nil
		})
	}

	began := time.Now()
	close(start)
	unfinished := waitAll(runCtx, &g, sc.Workers, finished)
	elapsed := time.Since(began)

	report := &Report{
		Workers:          sc.Workers,
		Successful:       run.successful.Load(),
		Failed:           run.failed.Load(),
		Unavailable:      run.unavailable.Load(),
		Retries:          run.retries.Load(),
		Unfinished:       unfinished,
		InitialAvailable: len(initial),
		Elapsed:          elapsed,
	}
	if err := h.verifyBookings(ctx, sc.EventID, initial, run.booked, report); err != nil {
		return report, err
	}
	logger.Info("予約シナリオが完了しました", zap.Stringer("report", report))
	return report, nil
}

func (h *Harness) attempt(ctx context.Context, run *bookingRun, retry RetryPolicy, input application.BookInput) {
	for try := 0; ; try++ {
		b, err := h.booker.Book(ctx, input)
		if err == nil {
			run.successful.Inc()
			run.mu.Lock()
			run.booked = append(run.booked, b)
			run.mu.Unlock()
			return
		}
		if booking.IsRetryable(err) && try < retry.MaxRetries && sleep(ctx, retry.Backoff) {
			run.retries.Inc()
			continue
		}
		run.failed.Inc()
		if errors.Is(err, booking.ErrTicketUnavailable) {
			run.unavailable.Inc()
		}
		return
	}
}

// waitAll は全ワーカーの終了を待つ。タイムアウトした場合はその時点で終わっていないワーカー数を返す
// タイムアウト後もワーカーがトランザクションを閉じるまで待ってから戻る
func waitAll(ctx context.Context, g *errgroup.Group, workers int, finished *atomic.Int64) int64 {
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
		return int64(workers) - finished.Load()
	case <-ctx.Done():
		unfinished := int64(workers) - finished.Load()
		<-done
		return unfinished
	}
}

func (h *Harness) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// verifyBookings は予約可能数の減少が成功した予約のチケットと1枚単位で一致することを確認する
func (h *Harness) verifyBookings(ctx context.Context, eventID string, initial []string, booked []*booking.Booking, r *Report) error {
	final, err := h.tickets.ListAvailableSerials(ctx, eventID)
	if err != nil {
		return fmt.Errorf("予約可能なチケットの取得に失敗: %w", err)
	}
	all, err := h.tickets.ListByEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("チケットの取得に失敗: %w", err)
	}
	r.FinalAvailable = len(final)
	r.TicketsBooked = len(initial) - len(final)

	bySerial := make(map[string]*ticket.Ticket, len(all))
	byID := make(map[string]*ticket.Ticket, len(all))
	for _, t := range all {
		bySerial[t.SerialNumber] = t
		byID[t.ID] = t
	}

	// 成功した予約のチケット集合（重複は二重販売）
	owner := make(map[string]string)
	for _, b := range booked {
		for _, id := range b.TicketIDs {
			if other, ok := owner[id]; ok {
				r.Violations = append(r.Violations, fmt.Sprintf("チケット %s が予約 %s と %s の両方に含まれています", id, other, b.ID))
				continue
			}
			owner[id] = b.ID
			t, ok := byID[id]
			switch {
			case !ok:
				r.Violations = append(r.Violations, fmt.Sprintf("予約 %s のチケット %s が存在しません", b.ID, id))
			case t.Status != ticket.StatusSold:
				r.Violations = append(r.Violations, fmt.Sprintf("予約 %s のチケット %s が %s です", b.ID, t.SerialNumber, t.Status))
			case t.BookingID == nil || *t.BookingID != b.ID:
				r.Violations = append(r.Violations, fmt.Sprintf("チケット %s の予約IDが %s と一致しません", t.SerialNumber, b.ID))
			}
		}
	}

	// 予約可能でなくなったチケットは、成功した予約のチケットと完全に一致する
	stillAvailable := make(map[string]struct{}, len(final))
	for _, s := range final {
		stillAvailable[s] = struct{}{}
	}
	left := 0
	for _, serial := range initial {
		if _, ok := stillAvailable[serial]; ok {
			continue
		}
		left++
		t := bySerial[serial]
		if t == nil {
			continue
		}
		if _, ok := owner[t.ID]; !ok {
			r.Violations = append(r.Violations, fmt.Sprintf("チケット %s は %s ですが成功した予約に含まれていません", serial, t.Status))
		}
	}
	if left != len(owner) {
		r.Violations = append(r.Violations, fmt.Sprintf("予約可能数の減少 %d と予約されたチケット数 %d が一致しません", left, len(owner)))
	}

	// ストア上の確定予約同士でもチケットが重複しない
	confirmed, err := h.bookings.ListByStatus(ctx, booking.StatusConfirmed)
	if err != nil {
		return fmt.Errorf("確定済み予約の取得に失敗: %w", err)
	}
	seen := make(map[string]string)
	for _, b := range confirmed {
		for _, id := range b.TicketIDs {
			if other, ok := seen[id]; ok {
				r.Violations = append(r.Violations, fmt.Sprintf("確定済み予約 %s と %s がチケット %s を共有しています", other, b.ID, id))
			}
			seen[id] = b.ID
		}
	}
	return nil
}
