package middleware

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sanosuguru/go-ticket-booking/internal/config"
)

// MetricsBasicAuth は /metrics エンドポイント用の Basic 認証ミドルウェア
// ユーザーとパスワードが両方設定されていない場合は認証をスキップする（ローカル開発用）
func MetricsBasicAuth(cfg *config.ServerConfig) echo.MiddlewareFunc {
	if !MetricsAuthEnabled(cfg) {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	expectedUser := []byte(cfg.MetricsUser)
	expectedPass := []byte(cfg.MetricsPassword)
	return middleware.BasicAuth(func(username, password string, c echo.Context) (bool, error) {
		// タイミング攻撃を防ぐため ConstantTimeCompare を使用
		userMatch := subtle.ConstantTimeCompare([]byte(username), expectedUser) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(password), expectedPass) == 1
		return userMatch && passMatch, nil
	})
}

// MetricsAuthEnabled は認証が有効かどうかを返す
func MetricsAuthEnabled(cfg *config.ServerConfig) bool {
	return cfg != nil && cfg.MetricsUser != "" && cfg.MetricsPassword != ""
}
