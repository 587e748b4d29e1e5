package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRole gates a route on an exact role name. An authenticated user with
// no role, or a different role, gets 403 rather than 401. The user in context
// passes through unchanged.
func RequireRole(expected string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := CurrentUser(c)
			if user == nil {
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}
			if user.Role == nil {
				return echo.NewHTTPError(http.StatusForbidden, "user has no role")
			}
			if user.Role.Name != expected {
				return echo.NewHTTPError(http.StatusForbidden, "you do not have the required role")
			}
			return next(c)
		}
	}
}
