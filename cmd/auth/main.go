package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/auth_service/internal/audit"
	"github.com/Skotchmaster/auth_service/internal/config"
	"github.com/Skotchmaster/auth_service/internal/httpserver"
	"github.com/Skotchmaster/auth_service/internal/models"
	"github.com/Skotchmaster/auth_service/internal/repo"
	"github.com/Skotchmaster/auth_service/internal/service"
	"github.com/Skotchmaster/auth_service/pkg/events"
	"github.com/Skotchmaster/auth_service/pkg/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := config.InitDB(initCtx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Role{}, &models.RefreshToken{}); err != nil {
		log.Fatalf("migrate error: %v", err)
	}

	users := repo.NewUserRepo(db)
	tokenRepo := repo.NewTokenRepo(db)

	bootCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := users.SeedRoles(bootCtx); err != nil {
		log.Fatalf("seed roles error: %v", err)
	}
	if err := bootstrapAdmin(bootCtx, cfg, users); err != nil {
		log.Fatalf("bootstrap admin error: %v", err)
	}
	cancel()

	svc := &service.AuthService{
		Users:         users,
		Tokens:        tokenRepo,
		JWTSecret:     cfg.JWTSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	}

	var producer events.Producer
	if cfg.KafkaAddress != "" {
		kp := events.NewKafkaProducer(cfg.KafkaAddress)
		defer kp.Close()
		producer = kp
	}

	var recorder *audit.Recorder
	if cfg.ESURL != "" {
		esClient, err := audit.NewClient(cfg.ESURL, cfg.ESUser, cfg.ESPassword)
		if err != nil {
			logger.Warn("audit disabled", "error", err)
		} else {
			recorder = audit.NewRecorder(esClient, logger)
		}
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{
			Svc:      svc,
			Users:    users,
			Producer: producer,
			Audit:    recorder,
		},
		Svc:   svc,
		Redis: rdb,
		Log:   logger,
	})

	reaper := service.NewReaper(tokenRepo, cfg.ReaperInterval, logger)
	reaper.Start()

	go func() {
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("echo start: %v", err)
		}
	}()
	logger.Info("listening", "port", cfg.ServerPort)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	reaper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown", "error", err)
	}
}

// bootstrapAdmin creates the initial superuser from env when configured.
// Re-running with the same email is a no-op.
func bootstrapAdmin(ctx context.Context, cfg *config.Config, users *repo.UserRepo) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	exists, err := users.EmailExists(ctx, cfg.AdminEmail)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	username := cfg.AdminUsername
	if username == "" {
		username = "admin"
	}
	admin, err := users.CreateSuperuser(ctx, username, cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		return err
	}
	return users.SetRole(ctx, admin.ID, models.RoleAdmin)
}
