package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/internal/engine"
	"github.com/wonny/arena/internal/realtime/sink"
	"github.com/wonny/arena/internal/scheduler"
	"github.com/wonny/arena/internal/scheduler/jobs"
	"github.com/wonny/arena/internal/store/memory"
	"github.com/wonny/arena/internal/store/postgres"
	"github.com/wonny/arena/pkg/config"
	"github.com/wonny/arena/pkg/database"
	"github.com/wonny/arena/pkg/httputil"
	"github.com/wonny/arena/pkg/logger"
	"github.com/wonny/arena/pkg/metrics"
	"github.com/wonny/arena/pkg/redis"
)

// runtime holds every long-lived dependency of a command
type runtime struct {
	cfg       *config.Config
	log       *logger.Logger
	db        *database.DB // nil with the memory store
	redis     *redis.Client
	metrics   *metrics.Metrics
	engine    *engine.Engine
	mirror    *sink.RedisMirror // nil when Redis is disabled
	scheduler *scheduler.Scheduler
}

// loadConfig applies global flag overrides and loads the config
func loadConfig() (*config.Config, error) {
	if storeMode != "" {
		os.Setenv("ARENA_STORE", storeMode)
	}
	if verbose {
		os.Setenv("LOG_LEVEL", "debug")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newRuntime connects storage and Redis, builds the engine, hydrates it and
// registers the scheduled jobs. The scheduler is not started.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:     cfg,
		log:     logger.New(cfg),
		metrics: metrics.New(),
	}

	// 1. Store
	var store contracts.CompetitionStore
	switch cfg.Store {
	case config.StoreMemory:
		store = memory.New()
		rt.log.Warn("Using in-memory store, state is lost on exit")
	default:
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		rt.db = db

		pg := postgres.New(db.Pool)
		if err := pg.Migrate(ctx); err != nil {
			rt.Close()
			return nil, err
		}
		store = pg
	}

	// 2. Redis
	rc, err := redis.New(cfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	rt.redis = rc

	// 3. Engine (+ mirror before hydrate so active competitions are tracked)
	rt.engine = engine.New(store, engine.Config{
		RegistrationLeadTime: cfg.Competition.RegistrationLeadTime,
		FeedTopN:             cfg.Competition.FeedTopN,
	}, rt.log, rt.metrics)

	if rc.Enabled() {
		rt.mirror = sink.NewRedisMirror(rt.engine.Feed(), redis.NewCache(rc), rc, rt.log)
		rt.engine.SetMirror(rt.mirror)
	}

	if err := rt.engine.Hydrate(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("hydrate engine: %w", err)
	}

	// 4. Scheduler
	rt.scheduler = scheduler.New(rt.log)
	if err := rt.registerJobs(); err != nil {
		rt.Close()
		return nil, err
	}

	return rt, nil
}

func (rt *runtime) registerJobs() error {
	list := []scheduler.Job{
		jobs.NewLifecycleJob(rt.engine, rt.cfg.Competition.LifecycleSchedule, rt.log),
		jobs.NewCacheCleanupJob(rt.engine, rt.log),
	}

	if base := rt.cfg.Valuation.PortfolioBaseURL; base != "" {
		client := httputil.NewWithTimeout(rt.log, 10*time.Second).WithRetry(2, 500*time.Millisecond)
		if rt.redis.Enabled() {
			// 여러 인스턴스가 포트폴리오 서비스 호출량을 공유
			limit := redis.PortfolioRateLimit
			if rps := int(rt.cfg.Valuation.RequestsPerSec); rps > 0 {
				limit.Limit = rps
			}
			client = client.WithRateLimiter(redis.NewRateLimiter(rt.redis), limit)
		}
		list = append(list, jobs.NewValuationSyncJob(
			rt.engine, client, base, rt.cfg.Valuation.SyncSchedule, rt.cfg.Valuation.RequestsPerSec, rt.log,
		))
	} else {
		rt.log.Info("PORTFOLIO_BASE_URL not set, valuation sync disabled")
	}

	for _, job := range list {
		if err := rt.scheduler.AddJob(job); err != nil {
			return fmt.Errorf("register job: %w", err)
		}
	}
	return nil
}

// Close releases everything in reverse order of creation
func (rt *runtime) Close() {
	if rt.mirror != nil {
		rt.mirror.Close()
	}
	if rt.engine != nil {
		rt.engine.Close()
	}
	if rt.redis != nil {
		rt.redis.Close()
	}
	if rt.db != nil {
		rt.db.Close()
	}
}
