package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/auth_service/internal/models"
	"github.com/Skotchmaster/auth_service/internal/service"
	"github.com/Skotchmaster/auth_service/pkg/logging"
	"github.com/Skotchmaster/auth_service/pkg/tokens"
)

const userContextKey = "user"

// RequireAuth validates the Bearer access token and stores the resolved user
// in the request context. All verification failures answer the same 401; a
// store fault during subject resolution is a 500, not a credentials problem.
func RequireAuth(svc *service.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "could not validate credentials")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			user, err := svc.CurrentUser(c.Request().Context(), raw)
			if err != nil {
				if errors.Is(err, tokens.ErrInvalidToken) {
					return echo.NewHTTPError(http.StatusUnauthorized, "could not validate credentials")
				}
				logging.FromContext(c.Request().Context()).Error("auth_failed", "status", 500, "error", err)
				return echo.NewHTTPError(http.StatusInternalServerError, "auth failed")
			}

			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

// CurrentUser returns the user placed in context by RequireAuth.
func CurrentUser(c echo.Context) *models.User {
	user, _ := c.Get(userContextKey).(*models.User)
	return user
}
