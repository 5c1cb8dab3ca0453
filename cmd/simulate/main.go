package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-ticket-booking/internal/application"
	"github.com/sanosuguru/go-ticket-booking/internal/config"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/store"
	"github.com/sanosuguru/go-ticket-booking/internal/harness"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-ticket-booking/internal/platform"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.Env, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ok, err := run(ctx, cfg)
	if err != nil {
		logger.Error("シミュレーションに失敗しました", zap.Error(err))
		os.Exit(1)
	}
	if !ok {
		os.Exit(2)
	}
}

// run はカタログを投入し、予約シナリオと座席割り当てシナリオを順に実行する
// 不変条件の違反があった場合は false を返す
func run(ctx context.Context, cfg *config.Config) (bool, error) {
	res, err := platform.Open(ctx, cfg, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := res.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("接続のクローズに失敗しました", zap.Error(err))
		}
	}()

	seeder, ok := res.Store.(store.Seeder)
	if !ok {
		return false, fmt.Errorf("ストア %s はカタログの投入に対応していません", res.Backend)
	}

	selection, err := harness.ParseSelection(cfg.Harness.Selection)
	if err != nil {
		return false, err
	}

	// 永続ストアでは過去の実行と衝突しないよう実行ごとに名前空間を分ける
	eventID, prefix := cfg.Harness.EventID, ""
	if res.Backend != platform.BackendMemory {
		runID := uuid.New().String()[:8]
		eventID = eventID + "-" + runID
		prefix = runID + "-"
	}

	catalog := harness.GenerateCatalog(harness.FixtureConfig{
		EventID: eventID,
		Tickets: cfg.Harness.Tickets,
		Users:   cfg.Harness.Users,
		Prefix:  prefix,
	})
	if err := seeder.Seed(ctx, catalog); err != nil {
		return false, fmt.Errorf("カタログの投入に失敗しました: %w", err)
	}

	bookingService := application.NewBookingService(res.Store, res.BookingOptions(cfg))
	seatService := application.NewSeatService(res.Store, res.SeatOptions(cfg))
	h := harness.New(res.Store, bookingService, seatService)

	fmt.Printf("backend=%s lock_strategy=%s event=%s tickets=%d users=%d selection=%s\n",
		res.Backend, res.Strategy, eventID, len(catalog.Tickets), len(catalog.Users), selection)

	bookingReport, err := h.RunBookings(ctx, harness.BookingScenario{
		EventID:           eventID,
		Workers:           cfg.Harness.Workers,
		AttemptsPerWorker: cfg.Harness.Attempts,
		MaxItems:          cfg.Harness.MaxItems,
		Users:             harness.UserIDs(catalog),
		Selection:         selection,
		Timeout:           cfg.Harness.Timeout,
		Retry: harness.RetryPolicy{
			MaxRetries: cfg.Harness.Retries,
			Backoff:    cfg.Harness.RetryBackoff,
		},
	})
	if err != nil {
		return false, err
	}
	fmt.Println("\n== 予約シナリオ ==")
	fmt.Println(bookingReport)
	stats := bookingService.Stats()
	fmt.Printf("successful_bookings=%d failed_bookings=%d tickets_booked=%d average_processing_time_ms=%.2f\n",
		stats.Successful, stats.Failed, stats.TicketsBooked, stats.AverageProcessingTimeMs)
	printViolations(bookingReport.Violations)

	seatReport, err := h.RunSeatAssignments(ctx, harness.SeatScenario{
		EventID:           eventID,
		Workers:           cfg.Harness.SeatWorkers,
		AttemptsPerWorker: cfg.Harness.SeatAttempts,
		Timeout:           cfg.Harness.Timeout,
	})
	if err != nil {
		return false, err
	}
	fmt.Println("\n== 座席割り当てシナリオ ==")
	fmt.Println(seatReport)
	seatStats := seatService.Stats()
	fmt.Printf("successful_assignments=%d failed_assignments=%d average_processing_time_ms=%.2f\n",
		seatStats.Successful, seatStats.Failed, seatStats.AverageProcessingTimeMs)
	areas := make([]string, 0, len(seatStats.Areas))
	for area := range seatStats.Areas {
		areas = append(areas, area)
	}
	sort.Strings(areas)
	for _, area := range areas {
		a := seatStats.Areas[area]
		fmt.Printf("  area=%s successful=%d failed=%d\n", area, a.Successful, a.Failed)
	}
	printViolations(seatReport.Violations)

	return bookingReport.OK() && seatReport.OK(), nil
}

func printViolations(violations []string) {
	if len(violations) == 0 {
		return
	}
	fmt.Printf("不変条件違反: %d 件\n", len(violations))
	for _, v := range violations {
		fmt.Println("  - " + v)
	}
}
