package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/crawltest-service/internal/adapter/llm"
	"github.com/user/crawltest-service/internal/adapter/postgres"
	redis_adapter "github.com/user/crawltest-service/internal/adapter/redis"
	"github.com/user/crawltest-service/internal/delivery/http/handler"
	"github.com/user/crawltest-service/internal/repository"
	"github.com/user/crawltest-service/internal/usecase"
	"github.com/user/crawltest-service/pkg/config"
	"github.com/user/crawltest-service/pkg/logger"
	"github.com/user/crawltest-service/pkg/metrics"
)

// App holds the connections and stores shared by the api and worker binaries.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *pgxpool.Pool
	Redis    *goredis.Client
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Repos    usecase.Repositories
	AI       repository.TextGenerator
}

// NewLogger builds the service logger from cfg.
func NewLogger(cfg *config.Config, service string) *zap.Logger {
	return logger.New(logger.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Service:    service,
	})
}

// New connects to PostgreSQL and Redis and builds the repositories.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := postgres.NewPool(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	log.Info("PostgreSQL connection pool established")

	rdb, err := redis_adapter.NewClient(ctx, redis_adapter.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Info("Redis connection established")

	ai, err := llm.New(ctx, llm.Options{
		Provider:    cfg.AIProvider,
		Model:       cfg.AIModel,
		APIKey:      cfg.AIAPIKey,
		Temperature: cfg.AITemperature,
		MaxTokens:   cfg.AIMaxTokens,
		Timeout:     cfg.AITimeout,
	}, log)
	if err != nil {
		db.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to configure ai provider: %w", err)
	}

	reg := NewRegistry()
	return &App{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Redis:    rdb,
		Registry: reg,
		Metrics:  metrics.New(reg),
		Repos:    NewRepositories(db, rdb),
		AI:       ai,
	}, nil
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func NewRepositories(db postgres.DBPool, rdb goredis.Cmdable) usecase.Repositories {
	return usecase.Repositories{
		Websites:  postgres.NewWebsiteRepo(db),
		Pages:     postgres.NewPageRepo(db),
		TestCases: postgres.NewTestCaseRepo(db),
		TestRuns:  postgres.NewTestRunRepo(db),
		Bugs:      postgres.NewBugRepo(db),
		Schedules: postgres.NewScheduleRepo(db),
		Jobs:      postgres.NewJobRepo(db),
		Queue:     redis_adapter.NewQueueRepo(rdb),
		Locks:     redis_adapter.NewLockRepo(rdb),
	}
}

func (a *App) Generator() usecase.TestCaseGenerator {
	return usecase.NewGeneratorUseCase(a.AI, a.Metrics, a.Logger)
}

func (a *App) JobManager() usecase.JobManager {
	return usecase.NewJobManager(a.Repos, a.Generator(), a.Config.CrawlLockTTL, a.Logger)
}

// HealthChecks are the dependencies reported by the health endpoint.
func (a *App) HealthChecks() map[string]handler.Pinger {
	return map[string]handler.Pinger{
		"postgres": a.DB,
		"redis":    handler.PingFunc(func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }),
	}
}

func (a *App) Close() {
	if err := a.Redis.Close(); err != nil {
		a.Logger.Warn("failed to close redis client", zap.Error(err))
	}
	a.DB.Close()
	_ = a.Logger.Sync()
}
