package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-ticket-booking/internal/api"
	"github.com/sanosuguru/go-ticket-booking/internal/api/middleware"
	"github.com/sanosuguru/go-ticket-booking/internal/application"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
)

type BookingHandler struct {
	service BookingServiceInterface
}

func NewBookingHandler(s BookingServiceInterface) *BookingHandler {
	return &BookingHandler{service: s}
}

type BookRequest struct {
	Serials       []string `json:"serials" validate:"required,min=1,unique,dive,required" example:"SN-00001,SN-00002"`
	DeliveryEmail string   `json:"delivery_email" validate:"required,email" example:"user@example.com"`
}

type BookingResponse struct {
	ID            string     `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	UserID        string     `json:"user_id" example:"user-123"`
	DeliveryEmail string     `json:"delivery_email" example:"user@example.com"`
	TicketIDs     []string   `json:"ticket_ids"`
	TotalPrice    string     `json:"total_price" example:"150.00"`
	Discount      string     `json:"discount" example:"0.00"`
	FinalPrice    string     `json:"final_price" example:"150.00"`
	Status        string     `json:"status" example:"CONFIRMED"`
	BookedAt      time.Time  `json:"booked_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CanceledAt    *time.Time `json:"canceled_at,omitempty"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID: b.ID, UserID: b.UserID, DeliveryEmail: b.DeliveryEmail,
		TicketIDs:  b.TicketIDs,
		TotalPrice: b.TotalPrice.StringFixed(2), Discount: b.Discount.StringFixed(2),
		FinalPrice: b.FinalPrice.StringFixed(2), Status: string(b.Status),
		BookedAt: b.BookedAt, ExpiresAt: b.ExpiresAt,
		ConfirmedAt: b.ConfirmedAt, CanceledAt: b.CanceledAt,
	}
}

type AvailabilityResponse struct {
	EventID   string `json:"event_id"`
	Available int    `json:"available"`
}

// Book godoc
// @Summary チケットを購入
// @Description 指定したチケットを全て確保して購入を確定します。1枚でも確保できなければ何も変更しません
// @Tags bookings
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body BookRequest true "購入するチケット"
// @Success 201 {object} BookingResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 401 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "チケットを確保できない"
// @Router /bookings [post]
func (h *BookingHandler) Book(c echo.Context) error {
	input, err := bindBookInput(c)
	if err != nil {
		return err
	}
	b, err := h.service.Book(c.Request().Context(), input)
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toBookingResponse(b))
}

// Hold godoc
// @Summary チケットを仮押さえ
// @Description チケットを確保し、期限付きの IN_PROGRESS 予約を作成します
// @Tags bookings
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body BookRequest true "仮押さえするチケット"
// @Success 201 {object} BookingResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /holds [post]
func (h *BookingHandler) Hold(c echo.Context) error {
	input, err := bindBookInput(c)
	if err != nil {
		return err
	}
	b, err := h.service.Hold(c.Request().Context(), input)
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toBookingResponse(b))
}

// GetByID godoc
// @Summary 予約を取得
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /bookings/{id} [get]
func (h *BookingHandler) GetByID(c echo.Context) error {
	b, err := h.service.GetBooking(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Confirm godoc
// @Summary 仮押さえを確定
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "期限切れ・仮押さえ中ではない"
// @Router /bookings/{id}/confirm [post]
func (h *BookingHandler) Confirm(c echo.Context) error {
	b, err := h.service.Confirm(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Cancel godoc
// @Summary 予約を取り消し
// @Description 予約を取り消し、チケットを予約可能に戻します
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c echo.Context) error {
	b, err := h.service.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Availability godoc
// @Summary 予約可能なチケット数
// @Tags events
// @Produce json
// @Param event_id path string true "イベントID"
// @Success 200 {object} AvailabilityResponse
// @Router /events/{event_id}/availability [get]
func (h *BookingHandler) Availability(c echo.Context) error {
	eventID := c.Param("event_id")
	n, err := h.service.CountAvailable(c.Request().Context(), eventID)
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{EventID: eventID, Available: n})
}

func bindBookInput(c echo.Context) (application.BookInput, error) {
	userID := c.Request().Header.Get(middleware.HeaderUserID)
	if userID == "" {
		return application.BookInput{}, echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return application.BookInput{}, echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return application.BookInput{}, err
	}
	return application.BookInput{UserID: userID, Serials: req.Serials, DeliveryEmail: req.DeliveryEmail}, nil
}
