package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/auth_service/pkg/logging"
)

func newLoggedEcho(t *testing.T) (*echo.Echo, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	e := echo.New()
	e.Use(RequestLogger(logger))
	return e, &buf
}

func TestRequestLogger_ContextCarriesLogger(t *testing.T) {
	e, buf := newLoggedEcho(t)
	e.GET("/ping", func(c echo.Context) error {
		logging.FromContext(c.Request().Context()).Info("in_handler")
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	out := buf.String()
	// the handler's line went through the configured JSON logger with the
	// request-scoped fields attached
	assert.Contains(t, out, `"msg":"in_handler"`)
	assert.Contains(t, out, `"method":"GET"`)
	assert.Contains(t, out, `"path":"/ping"`)
	assert.Contains(t, out, `"msg":"request completed"`)
	assert.Contains(t, out, `"status":200`)
}

func TestRequestLogger_EchoesRequestID(t *testing.T) {
	e, buf := newLoggedEcho(t)
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-42")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(echo.HeaderXRequestID))
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
}

func TestRequestLogger_ErrorLine(t *testing.T) {
	e, buf := newLoggedEcho(t)
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), `"status":500`)
}
