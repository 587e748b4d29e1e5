package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/auth_service/internal/middleware"
	"github.com/Skotchmaster/auth_service/internal/models"
	"github.com/Skotchmaster/auth_service/internal/service"
)

type Deps struct {
	AuthHandler *AuthHTTP
	Svc         *service.AuthService
	Redis       *redis.Client
	Log         *slog.Logger
}

func Register(e *echo.Echo, d *Deps) {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	e.Use(middleware.RequestLogger(log))

	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	limited := middleware.RateLimit(d.Redis, 10, time.Minute)

	e.POST("/signup", d.AuthHandler.Signup, limited)
	e.POST("/login", d.AuthHandler.Login, limited)
	e.POST("/refresh_token", d.AuthHandler.RefreshToken)
	e.POST("/logout", d.AuthHandler.Logout)

	private := e.Group("")
	private.Use(middleware.RequireAuth(d.Svc))

	private.POST("/logout_all", d.AuthHandler.LogoutAll)
	private.GET("/me", d.AuthHandler.Me)
	private.POST("/change_password", d.AuthHandler.ChangePassword)
	private.POST("/change_username", d.AuthHandler.ChangeUsername)
	private.POST("/change_email", d.AuthHandler.ChangeEmail)

	admin := e.Group("/admin")
	admin.Use(middleware.RequireAuth(d.Svc))
	admin.Use(middleware.RequireRole(models.RoleAdmin))

	admin.GET("/users", d.AuthHandler.ListUsers)
	admin.POST("/users/:id/role", d.AuthHandler.SetRole)
}
