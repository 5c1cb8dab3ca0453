package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-ticket-booking/internal/api"
)

// NewEcho は検証とエラー変換を設定済みの Echo を返す。ルートとミドルウェアは呼び出し側で登録する
func NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	return e
}
