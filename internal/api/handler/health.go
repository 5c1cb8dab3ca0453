package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandler はヘルスチェックハンドラー
type HealthHandler struct {
	backend string
	now     func() time.Time
}

// NewHealthHandler はHealthHandlerを作成する。backend は利用中のストア名
func NewHealthHandler(backend string) *HealthHandler {
	return &HealthHandler{backend: backend, now: time.Now}
}

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string `json:"status"`
	Backend   string `json:"backend"`
	Timestamp string `json:"timestamp"`
}

// Check はヘルスチェックを行う
// @Summary ヘルスチェック
// @Description アプリケーションの健全性を確認する
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Check(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Backend:   h.backend,
		Timestamp: h.now().Format(time.RFC3339),
	})
}
