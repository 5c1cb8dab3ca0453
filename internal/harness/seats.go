package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sanosuguru/go-ticket-booking/internal/application"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/logger"
)

// SeatScenario は座席割り当てシナリオの設定
type SeatScenario struct {
	EventID           string
	Workers           int
	AttemptsPerWorker int
	Rows              int
	SeatsPerRow       int
	Timeout           time.Duration
	Seed              int64
}

func (s *SeatScenario) normalize() error {
	if s.EventID == "" {
		return errors.New("イベントIDは必須です")
	}
	if s.Workers <= 0 {
		s.Workers = 1
	}
	if s.AttemptsPerWorker <= 0 {
		s.AttemptsPerWorker = 1
	}
	if s.Rows <= 0 {
		s.Rows = 20
	}
	if s.SeatsPerRow <= 0 {
		s.SeatsPerRow = 30
	}
	if s.Seed == 0 {
		s.Seed = time.Now().UnixNano()
	}
	return nil
}

type seatTarget struct {
	bookingID  string
	categoryID string
	area       string
}

// RunSeatAssignments は確定済み予約の座席未割り当てチケットに対して、ワーカーが無作為な座席を同時に割り当てる
func (h *Harness) RunSeatAssignments(ctx context.Context, sc SeatScenario) (*SeatReport, error) {
	if err := sc.normalize(); err != nil {
		return nil, err
	}
	targets, err := h.seatTargets(ctx, sc.EventID)
	if err != nil {
		return nil, err
	}
	report := &SeatReport{Workers: sc.Workers, Targets: len(targets)}
	if len(targets) == 0 {
		return report, nil
	}

	runCtx, cancel := h.withTimeout(ctx, sc.Timeout)
	defer cancel()

	var successful, failed, errs atomic.Int64
	finished := atomic.NewInt64(0)
	start := make(chan struct{})

	var g errgroup.Group
	for w := 0; w < sc.Workers; w++ {
		w := w
		g.Go(func() error {
			<-start
			rng := newRand(sc.Seed + int64(w) + 1)
			for a := 0; a < sc.AttemptsPerWorker; a++ {
				if runCtx.Err() != nil {
					failed.Add(int64(sc.AttemptsPerWorker - a))
					return nil
				}
				tg := targets[rng.Intn(len(targets))]
				ok, err := h.seats.AssignSeat(runCtx, application.AssignSeatInput{
					BookingID:  tg.bookingID,
					CategoryID: tg.categoryID,
					Area:       tg.area,
					Row:        fmt.Sprintf("%02d", 1+rng.Intn(sc.Rows)),
					Seat:       fmt.Sprintf("%03d", 1+rng.Intn(sc.SeatsPerRow)),
				})
				switch {
				case err != nil:
					errs.Inc()
					failed.Inc()
				case ok:
					successful.Inc()
				default:
					failed.Inc()
				}
			}
			finished.Inc()
			return nil
		})
	}

	began := time.Now()
	close(start)
	report.Unfinished = waitAll(runCtx, &g, sc.Workers, finished)
	report.Elapsed = time.Since(began)
	report.Successful = successful.Load()
	report.Failed = failed.Load()
	report.Errors = errs.Load()

	if err := h.verifySeats(ctx, sc.EventID, report); err != nil {
		return report, err
	}
	logger.Info("座席割り当てシナリオが完了しました", zap.Stringer("report", report))
	return report, nil
}

// seatTargets は確定済み予約のうち、座席未割り当ての販売済みチケットを持つ (予約, カテゴリ) を返す
func (h *Harness) seatTargets(ctx context.Context, eventID string) ([]seatTarget, error) {
	tickets, err := h.tickets.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("チケットの取得に失敗: %w", err)
	}
	confirmed, err := h.bookings.ListByStatus(ctx, booking.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("確定済み予約の取得に失敗: %w", err)
	}
	byID := make(map[string]*ticket.Ticket, len(tickets))
	for _, t := range tickets {
		byID[t.ID] = t
	}

	var targets []seatTarget
	for _, b := range confirmed {
		for _, id := range b.TicketIDs {
			t, ok := byID[id]
			if !ok || t.Status != ticket.StatusSold || t.HasSeat() {
				continue
			}
			targets = append(targets, seatTarget{bookingID: b.ID, categoryID: t.CategoryID, area: t.Area})
		}
	}
	return targets, nil
}

// verifySeats は販売済みチケットの座席が重複していないことを確認する
func (h *Harness) verifySeats(ctx context.Context, eventID string, r *SeatReport) error {
	tickets, err := h.tickets.ListByEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("チケットの取得に失敗: %w", err)
	}
	seen := make(map[string]string)
	for _, t := range tickets {
		if t.Status != ticket.StatusSold || !t.HasSeat() {
			continue
		}
		r.Seated++
		key := t.SeatKey()
		if other, ok := seen[key]; ok {
			r.Violations = append(r.Violations, fmt.Sprintf("座席 %s がチケット %s と %s に重複しています", key, other, t.SerialNumber))
			continue
		}
		seen[key] = t.SerialNumber
	}
	return nil
}
