package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-ticket-booking/internal/api/handler"
	"github.com/sanosuguru/go-ticket-booking/internal/api/middleware"
	"github.com/sanosuguru/go-ticket-booking/internal/application"
	"github.com/sanosuguru/go-ticket-booking/internal/config"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/metrics"
	"github.com/sanosuguru/go-ticket-booking/internal/platform"
	"github.com/sanosuguru/go-ticket-booking/internal/worker"
)

func main() {
	// .env がなければ環境変数のみを使う
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.Env, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	m := metrics.Init()

	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	res, err := platform.Open(startCtx, cfg, m)
	cancelStart()
	if err != nil {
		logger.Fatal("起動に失敗しました", zap.Error(err))
	}

	bookingService := application.NewBookingService(res.Store, res.BookingOptions(cfg))
	seatService := application.NewSeatService(res.Store, res.SeatOptions(cfg))

	// 期限切れの仮押さえを定期的に解放する
	cleaner := worker.NewExpiredHoldCleaner(bookingService, cfg.Booking.CleanupInterval)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go cleaner.Start(ctx)

	e := handler.NewEcho()
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	middleware.SetupMiddleware(e, m)
	handler.RegisterRoutes(e, handler.Handlers{
		Booking: handler.NewBookingHandler(bookingService),
		Seat:    handler.NewSeatHandler(seatService),
		Stats:   handler.NewStatsHandler(bookingService, seatService),
		Health:  handler.NewHealthHandler(res.Backend),
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.MetricsBasicAuth(&cfg.Server))

	// Graceful shutdown
	go func() {
		logger.Info("サーバーを起動します",
			zap.String("port", cfg.Server.Port),
			zap.String("backend", res.Backend),
			zap.String("lock_strategy", string(res.Strategy)))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンエラー", zap.Error(err))
	}
	cleaner.Stop()
	if err := res.Close(shutdownCtx); err != nil {
		logger.Error("接続のクローズに失敗しました", zap.Error(err))
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
