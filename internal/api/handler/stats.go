package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-ticket-booking/internal/pkg/metrics"
)

// StatsHandler はプロセス内の集計値を返す
type StatsHandler struct {
	bookings BookingServiceInterface
	seats    SeatServiceInterface
}

func NewStatsHandler(b BookingServiceInterface, s SeatServiceInterface) *StatsHandler {
	return &StatsHandler{bookings: b, seats: s}
}

type StatsResponse struct {
	Bookings metrics.BookingSnapshot `json:"bookings"`
	Seats    metrics.SeatSnapshot    `json:"seats"`
}

// Get godoc
// @Summary 予約・座席割り当ての集計
// @Tags stats
// @Produce json
// @Success 200 {object} StatsResponse
// @Router /stats [get]
func (h *StatsHandler) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, StatsResponse{
		Bookings: h.bookings.Stats(),
		Seats:    h.seats.Stats(),
	})
}
