package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-ticket-booking/internal/api"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/metrics"
)

const (
	metricsPath = "/metrics"
	// どのルートにも一致しなかったリクエストのパスラベル
	unmatchedPath = "unmatched"
)

// PrometheusMiddleware はルート単位で HTTP リクエスト数と処理時間を記録する
// パスラベルにはルートのパターン（/api/v1/bookings/:id など）を使い、実際の URL は使わない
func PrometheusMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			// スクレイプ自体は計測しない
			if path == metricsPath {
				return next(c)
			}
			if path == "" {
				path = unmatchedPath
			}
			start := time.Now()

			err := next(c)

			method := c.Request().Method
			m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(responseStatus(c, err))).Inc()
			m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// responseStatus はエラーハンドラーが書き込む前に、返されるステータスを求める
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	return api.ToHTTPError(err).Code
}
