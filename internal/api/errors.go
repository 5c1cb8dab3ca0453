package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/category"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
)

// StatusCode はドメインエラーに対応する HTTP ステータスを返す
func StatusCode(err error) int {
	switch {
	case errors.Is(err, booking.ErrValidation),
		errors.Is(err, category.ErrAreaMismatch),
		errors.Is(err, ticket.ErrSeatRequired):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrBookingNotFound),
		errors.Is(err, user.ErrUserNotFound),
		errors.Is(err, category.ErrCategoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrTicketUnavailable),
		errors.Is(err, ticket.ErrLockConflict),
		errors.Is(err, ticket.ErrSeatTaken),
		errors.Is(err, booking.ErrBookingNotInProgress),
		errors.Is(err, booking.ErrBookingAlreadyCanceled),
		errors.Is(err, booking.ErrHoldExpired),
		errors.Is(err, ticket.ErrTicketNotReserved):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// ToHTTPError はドメインエラーを echo.HTTPError に変換する。5xx の場合は内部の詳細を返さない
func ToHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	code := StatusCode(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		msg = http.StatusText(code)
	}
	return echo.NewHTTPError(code, msg).SetInternal(err)
}
