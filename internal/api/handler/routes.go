package handler

import "github.com/labstack/echo/v4"

// Handlers はルーティングに登録するハンドラーの一式
type Handlers struct {
	Booking *BookingHandler
	Seat    *SeatHandler
	Stats   *StatsHandler
	Health  *HealthHandler
}

// RegisterRoutes は /health と /api/v1 配下のルートを登録する
func RegisterRoutes(e *echo.Echo, h Handlers) {
	e.GET("/health", h.Health.Check)

	v1 := e.Group("/api/v1")
	v1.POST("/bookings", h.Booking.Book)
	v1.POST("/holds", h.Booking.Hold)
	v1.GET("/bookings/:id", h.Booking.GetByID)
	v1.POST("/bookings/:id/confirm", h.Booking.Confirm)
	v1.POST("/bookings/:id/cancel", h.Booking.Cancel)
	v1.POST("/bookings/:id/seats", h.Seat.Assign)
	v1.GET("/events/:event_id/availability", h.Booking.Availability)
	v1.GET("/stats", h.Stats.Get)
}
