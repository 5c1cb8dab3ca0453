package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-ticket-booking/internal/api"
	"github.com/sanosuguru/go-ticket-booking/internal/application"
)

type SeatHandler struct {
	service SeatServiceInterface
}

func NewSeatHandler(s SeatServiceInterface) *SeatHandler {
	return &SeatHandler{service: s}
}

type AssignSeatRequest struct {
	CategoryID string `json:"category_id" validate:"required"`
	Area       string `json:"area" validate:"required" example:"A"`
	Row        string `json:"row" validate:"required" example:"01"`
	Seat       string `json:"seat" validate:"required" example:"012"`
}

type AssignSeatResponse struct {
	BookingID string `json:"booking_id"`
	Assigned  bool   `json:"assigned"`
}

// Assign godoc
// @Summary 座席を割り当て
// @Description 確定済み予約のチケット1枚に座席を割り当てます。座席が埋まっている場合は 409 を返します
// @Tags bookings
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param request body AssignSeatRequest true "座席"
// @Success 200 {object} AssignSeatResponse
// @Failure 409 {object} AssignSeatResponse
// @Router /bookings/{id}/seats [post]
func (h *SeatHandler) Assign(c echo.Context) error {
	var req AssignSeatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	bookingID := c.Param("id")
	ok, err := h.service.AssignSeat(c.Request().Context(), application.AssignSeatInput{
		BookingID: bookingID, CategoryID: req.CategoryID,
		Area: req.Area, Row: req.Row, Seat: req.Seat,
	})
	if err != nil {
		return api.ToHTTPError(err)
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusConflict
	}
	return c.JSON(status, AssignSeatResponse{BookingID: bookingID, Assigned: ok})
}
