package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/auth_service/internal/audit"
	"github.com/Skotchmaster/auth_service/internal/middleware"
	"github.com/Skotchmaster/auth_service/internal/repo"
	"github.com/Skotchmaster/auth_service/internal/service"
	"github.com/Skotchmaster/auth_service/pkg/logging"
)

func (h *AuthHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "change_password")

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user := middleware.CurrentUser(c)

	if err := h.Svc.ChangePassword(ctx, user, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, service.ErrWrongPassword):
			return echo.NewHTTPError(http.StatusBadRequest, "incorrect current password")
		case errors.Is(err, repo.ErrWeakPassword):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		l.Error("change_password_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "change password failed")
	}

	h.publish(ctx, fmt.Sprint(user.ID), echo.Map{
		"type":    "password_changed",
		"user_id": user.ID,
	}, l)
	h.Audit.Record(ctx, audit.Entry{Event: "change_password", Email: user.Email, UserID: user.ID, RemoteIP: c.RealIP(), Outcome: "ok"})

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Password changed successfully",
	})
}

func (h *AuthHTTP) ChangeUsername(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "change_username")

	var req struct {
		Username string `json:"username"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user := middleware.CurrentUser(c)

	if err := h.Users.ChangeUsername(ctx, user.ID, req.Username); err != nil {
		if errors.Is(err, repo.ErrBadUsername) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		l.Error("change_username_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "change username failed")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Username changed successfully",
	})
}

func (h *AuthHTTP) ChangeEmail(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "change_email")

	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user := middleware.CurrentUser(c)

	ok, err := h.Users.ChangeEmail(ctx, user.ID, req.Email)
	if err != nil {
		if errors.Is(err, repo.ErrInvalidEmail) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		l.Error("change_email_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "change email failed")
	}
	if !ok {
		// Taken email is a reported outcome, not a failure of the request.
		return echo.NewHTTPError(http.StatusConflict, "email already in use")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Email changed successfully",
	})
}
