package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/onboarding-engine/internal/app"
	"github.com/kursadbilgin/onboarding-engine/internal/config"
	"github.com/kursadbilgin/onboarding-engine/internal/handler"
	"github.com/kursadbilgin/onboarding-engine/internal/observability"
	"github.com/kursadbilgin/onboarding-engine/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{WithBroker: true})
	if err != nil {
		logger.Fatal("onboarding engine initialization failed", zap.Error(err))
	}
	defer a.Close()

	server := fiber.New(fiber.Config{
		AppName:               "onboarding-engine",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	server.Use(recover.New())
	server.Use(requestid.New())
	server.Use(a.Metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(server, a.Checks)
	handler.RegisterMetricsRoute(server, a.Metrics.Handler())
	if err := handler.RegisterOnboardingRoutes(server, a.Onboarding); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down onboarding-engine api")
		if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("api shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("onboarding-engine api started", zap.Int("port", cfg.APIPort))
	if err := server.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Error("api server stopped", zap.Error(err))
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Onboarding.Wait(waitCtx); err != nil {
		logger.Warn("background runs still in flight at shutdown", zap.Error(err))
	}
}
