package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/auth_service/internal/repo"
	"github.com/Skotchmaster/auth_service/pkg/logging"
)

func (h *AuthHTTP) ListUsers(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_list_users")

	users, err := h.Users.ListUsers(ctx)
	if err != nil {
		l.Error("list_users_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "list users failed")
	}
	return c.JSON(http.StatusOK, users)
}

func (h *AuthHTTP) SetRole(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_set_role")

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Users.SetRole(ctx, uint(id), req.Role); err != nil {
		switch {
		case errors.Is(err, repo.ErrRoleNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "role not found")
		case errors.Is(err, repo.ErrUserNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		l.Error("set_role_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "set role failed")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Role updated",
	})
}
