package middleware

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-ticket-booking/internal/config"
)

func serveMetrics(t *testing.T, cfg *config.ServerConfig, authHeader string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := MetricsBasicAuth(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "metrics")
	})
	return rec, handler(c)
}

func basic(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestMetricsBasicAuth_NoCredentials(t *testing.T) {
	rec, err := serveMetrics(t, &config.ServerConfig{}, "")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}

func TestMetricsBasicAuth_ValidCredentials(t *testing.T) {
	cfg := &config.ServerConfig{MetricsUser: "testuser", MetricsPassword: "testpass"}

	rec, err := serveMetrics(t, cfg, basic("testuser", "testpass"))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsBasicAuth_InvalidCredentials(t *testing.T) {
	cfg := &config.ServerConfig{MetricsUser: "testuser", MetricsPassword: "testpass"}

	rec, err := serveMetrics(t, cfg, basic("wronguser", "wrongpass"))

	// Basic認証失敗時はHTTPErrorが返る
	if err != nil {
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	} else {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	assert.NotEqual(t, "metrics", rec.Body.String())
}

func TestMetricsBasicAuth_NoAuthHeader(t *testing.T) {
	cfg := &config.ServerConfig{MetricsUser: "testuser", MetricsPassword: "testpass"}

	_, err := serveMetrics(t, cfg, "")

	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestMetricsAuthEnabled(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *config.ServerConfig
		wantEnabled bool
	}{
		{name: "両方設定あり", cfg: &config.ServerConfig{MetricsUser: "user", MetricsPassword: "pass"}, wantEnabled: true},
		{name: "ユーザーのみ", cfg: &config.ServerConfig{MetricsUser: "user"}, wantEnabled: false},
		{name: "パスワードのみ", cfg: &config.ServerConfig{MetricsPassword: "pass"}, wantEnabled: false},
		{name: "両方なし", cfg: &config.ServerConfig{}, wantEnabled: false},
		{name: "設定なし", cfg: nil, wantEnabled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantEnabled, MetricsAuthEnabled(tt.cfg))
		})
	}
}
