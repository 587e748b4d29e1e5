package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/auth_service/internal/audit"
	"github.com/Skotchmaster/auth_service/internal/middleware"
	"github.com/Skotchmaster/auth_service/internal/repo"
	"github.com/Skotchmaster/auth_service/internal/service"
	"github.com/Skotchmaster/auth_service/pkg/events"
	"github.com/Skotchmaster/auth_service/pkg/logging"
	"github.com/Skotchmaster/auth_service/pkg/tokens"
)

type AuthHTTP struct {
	Svc      *service.AuthService
	Users    *repo.UserRepo
	Producer events.Producer
	Audit    *audit.Recorder
}

func (h *AuthHTTP) Signup(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "signup")

	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Users.Create(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrBadUsername), errors.Is(err, repo.ErrInvalidEmail), errors.Is(err, repo.ErrWeakPassword):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, repo.ErrEmailExists):
			return echo.NewHTTPError(http.StatusConflict, "email already exists")
		}
		l.Error("signup_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "create user failed")
	}

	h.publish(ctx, fmt.Sprint(user.ID), echo.Map{
		"type":     "user_registered",
		"user_id":  user.ID,
		"username": user.Username,
	}, l)
	h.Audit.Record(ctx, audit.Entry{Event: "signup", Email: user.Email, UserID: user.ID, RemoteIP: c.RealIP(), Outcome: "ok"})

	return c.JSON(http.StatusOK, user)
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "login")

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	pair, user, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.Audit.Record(ctx, audit.Entry{Event: "login", Email: req.Email, RemoteIP: c.RealIP(), Outcome: "denied"})
			return echo.NewHTTPError(http.StatusUnauthorized, "incorrect email or password")
		}
		l.Error("login_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
	}

	c.SetCookie(createRefreshCookie(pair.RefreshToken))

	h.publish(ctx, fmt.Sprint(user.ID), echo.Map{
		"type":     "user_logged_in",
		"user_id":  user.ID,
		"username": user.Username,
	}, l)
	h.Audit.Record(ctx, audit.Entry{Event: "login", Email: user.Email, UserID: user.ID, RemoteIP: c.RealIP(), Outcome: "ok"})

	return c.JSON(http.StatusOK, echo.Map{
		"access_token": pair.AccessToken,
	})
}

func (h *AuthHTTP) RefreshToken(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "refresh_token")

	cookie, err := c.Cookie(refreshCookieName)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token is missing")
	}

	access, err := h.Svc.Refresh(ctx, cookie.Value)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRefreshExpired):
			return echo.NewHTTPError(http.StatusUnauthorized, "refresh token expired")
		case errors.Is(err, tokens.ErrInvalidToken):
			return echo.NewHTTPError(http.StatusUnauthorized, "could not validate credentials")
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "refresh failed")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"access_token": access,
	})
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "logout")
	setNoCache(c)

	cookie, err := c.Cookie(refreshCookieName)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token is missing")
	}

	userID, err := h.Svc.Logout(ctx, cookie.Value)
	if err != nil {
		if errors.Is(err, repo.ErrTokenNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "refresh token not found")
		}
		l.Error("logout_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "logout failed")
	}

	c.SetCookie(deleteRefreshCookie())

	h.publish(ctx, fmt.Sprint(userID), echo.Map{
		"type":    "user_logged_out",
		"user_id": userID,
	}, l)
	h.Audit.Record(ctx, audit.Entry{Event: "logout", UserID: userID, RemoteIP: c.RealIP(), Outcome: "ok"})

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Logged out successfully",
	})
}

func (h *AuthHTTP) LogoutAll(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "logout_all")
	setNoCache(c)

	user := middleware.CurrentUser(c)

	if err := h.Svc.LogoutAll(ctx, user.ID); err != nil {
		l.Error("logout_all_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "logout failed")
	}

	c.SetCookie(deleteRefreshCookie())

	h.publish(ctx, fmt.Sprint(user.ID), echo.Map{
		"type":    "user_logged_out_all",
		"user_id": user.ID,
	}, l)
	h.Audit.Record(ctx, audit.Entry{Event: "logout_all", Email: user.Email, UserID: user.ID, RemoteIP: c.RealIP(), Outcome: "ok"})

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Logged out from all sessions",
	})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	user := middleware.CurrentUser(c)
	return c.JSON(http.StatusOK, echo.Map{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

// publish sends a user event, logging instead of failing the request when the
// broker is unreachable or unconfigured.
func (h *AuthHTTP) publish(ctx context.Context, key string, event echo.Map, l *slog.Logger) {
	if h.Producer == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(pubCtx, events.TopicUserEvents, key, event); err != nil {
		l.Error("kafka_publish_failed", "error", err)
	}
}
