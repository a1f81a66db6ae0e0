package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/darusc/Fileknight/internal/config"
	"github.com/darusc/Fileknight/internal/database"
	"github.com/darusc/Fileknight/internal/handlers"
	"github.com/darusc/Fileknight/internal/metrics"
	"github.com/darusc/Fileknight/internal/middleware"
	"github.com/darusc/Fileknight/internal/services"
	"github.com/darusc/Fileknight/internal/storage"
	"github.com/darusc/Fileknight/pkg/logger"
	"github.com/darusc/Fileknight/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.App.LogLevel)
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationMinutes)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	var m *metrics.Metrics
	if cfg.App.MetricsEnabled {
		m = metrics.New()
	}

	store, err := storage.New(ctx, cfg, m)
	if err != nil {
		log.Fatalf("storage initialization failed: %v", err)
	}
	if err := os.MkdirAll(cfg.Storage.TempDir, 0o755); err != nil {
		log.Fatalf("failed creating temp directory: %v", err)
	}

	fileService := services.NewFileService(db, store)
	directoryService := services.NewDirectoryService(db, store, fileService)
	accessService := services.NewAccessService(db)
	binService := services.NewBinService(db, directoryService, fileService, m)
	archiveService := services.NewArchiveService(db, store, fileService, cfg.Storage.TempDir, m)
	tokenService := services.NewTokenService(db, cfg.Tokens.RefreshLifetime)
	userService := services.NewUserService(db, directoryService, tokenService, cfg.Tokens)

	if cfg.App.BootstrapAdmin != "" {
		admin, token, err := userService.Bootstrap(ctx, cfg.App.BootstrapAdmin)
		if err != nil {
			log.Fatalf("admin bootstrap failed: %v", err)
		}
		if token != nil {
			logger.Warn("admin_bootstrapped", map[string]interface{}{
				"username":       admin.Username,
				"register_token": token.Token,
				"expires_at":     token.ExpiresAt,
			})
		}
	}

	tokenService.StartSweeper(ctx, cfg.Tokens.SweepInterval)

	router := &handlers.Router{
		Auth:           handlers.NewAuthHandler(userService, tokenService),
		Users:          handlers.NewUsersHandler(userService),
		Files:          handlers.NewFilesHandler(fileService, directoryService, accessService, binService, archiveService, cfg.App.IsProduction()),
		Bin:            handlers.NewBinHandler(binService),
		AuthMiddleware: middleware.NewAuthMiddleware(db),
		LoginRateLimit: cfg.Server.LoginRateLimit,
	}

	bodyLimit := cfg.Server.BodyLimitMB * 1024 * 1024
	app := fiber.New(fiber.Config{
		BodyLimit:    bodyLimit,
		ErrorHandler: handlers.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: !cfg.App.IsProduction()}))
	app.Use(middleware.CORS(cfg.Server.AllowOrigins))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", m.Handler())

	router.Register(app)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":            cfg.Server.Port,
		"address":         listenAddr,
		"body_limit_mb":   cfg.Server.BodyLimitMB,
		"env":             cfg.App.Env,
		"db_driver":       cfg.DB.Driver,
		"storage_backend": cfg.Storage.Backend,
		"metrics_enabled": cfg.App.MetricsEnabled,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		stop()
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
