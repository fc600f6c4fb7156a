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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/crawltest-service/internal/adapter/chromedp_browser"
	"github.com/user/crawltest-service/internal/adapter/filestore"
	"github.com/user/crawltest-service/internal/adapter/postgres"
	"github.com/user/crawltest-service/internal/app"
	"github.com/user/crawltest-service/internal/scheduler"
	"github.com/user/crawltest-service/internal/usecase"
	"github.com/user/crawltest-service/internal/worker"
	"github.com/user/crawltest-service/pkg/config"
)

func main() {
	configPath := flag.String("config", ".env", "path to an optional config file")
	migrate := flag.Bool("migrate", false, "create database tables on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, "worker")

	if err := run(cfg, logger, *migrate); err != nil {
		logger.Error("Worker exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger, migrate bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if migrate {
		if err := postgres.Migrate(ctx, a.DB); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	artifacts, err := filestore.NewLocalStore(cfg.ScreenshotDir)
	if err != nil {
		return err
	}
	launcher := chromedp_browser.NewLauncher(chromedp_browser.Options{
		Headless:          cfg.BrowserHeadless,
		NavigationTimeout: cfg.NavigationTimeout,
		SelectorTimeout:   cfg.SelectorTimeout,
		Proxies:           cfg.BrowserProxies,
		UserAgents:        cfg.BrowserUserAgents,
	}, logger)

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Repos:     a.Repos,
		Launcher:  launcher,
		Crawler:   usecase.NewCrawlerUseCase(cfg.CrawlRequestDelay, a.Metrics, logger),
		Executor:  usecase.NewExecutorUseCase(artifacts, cfg.StepDelay, a.Metrics, logger),
		Generator: a.Generator(),
		Reporter:  usecase.NewBugReporterUseCase(a.AI, a.Repos.Bugs, a.Metrics, logger),
		Metrics:   a.Metrics,
		Logger:    logger,
	})

	pool := worker.NewPool(a.Repos.Queue, orchestrator, worker.Options{
		Workers:     cfg.WorkerCount,
		PollTimeout: cfg.PollTimeout,
		JobTimeout:  cfg.JobTimeout,
	}, a.Metrics, logger)
	sched := scheduler.NewScheduler(a.Repos.Schedules, a.JobManager(), cfg.ScheduleRefresh, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Jobs run on a context that outlives the signal so in-flight work can finish.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	pool.Start(workCtx)
	if err := sched.Start(workCtx); err != nil {
		pool.Stop()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	logger.Info("Worker started", zap.Int("workers", cfg.WorkerCount))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Serving worker metrics", zap.String("port", cfg.WorkerMetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down worker")
		sched.Stop()
		pool.Stop()
		cancelWork()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
