package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/user/crawltest-service/internal/adapter/postgres"
	"github.com/user/crawltest-service/internal/app"
	"github.com/user/crawltest-service/internal/delivery/http/handler"
	"github.com/user/crawltest-service/internal/delivery/http/router"
	"github.com/user/crawltest-service/pkg/config"
)

func main() {
	configPath := flag.String("config", ".env", "path to an optional config file")
	migrate := flag.Bool("migrate", true, "create database tables on startup")
	flag.Parse()

	// --- Configuration ---
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := app.NewLogger(cfg, "api")
	logger.Info("Logger initialized", zap.String("level", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Connections and repositories ---
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize service", zap.Error(err))
	}
	defer a.Close()

	if *migrate {
		if err := postgres.Migrate(ctx, a.DB); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Info("Database schema is up to date")
	}

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(a.JobManager(), a.HealthChecks(), logger)
	httpRouter := router.New(apiHandler, a.Metrics, a.Registry, logger)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httpRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Could not listen on port", zap.String("port", cfg.ServerPort), zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}
