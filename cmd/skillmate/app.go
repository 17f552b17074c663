package main

import (
	"context"
	"fmt"

	"github.com/skillmate/skillmate-core/config"
	"github.com/skillmate/skillmate-core/internal/application/command"
	"github.com/skillmate/skillmate-core/internal/application/eventhandler"
	"github.com/skillmate/skillmate-core/internal/application/query"
	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/enrollment"
	"github.com/skillmate/skillmate-core/internal/domain/learningpath"
	"github.com/skillmate/skillmate-core/internal/domain/progress"
	"github.com/skillmate/skillmate-core/internal/domain/review"
	"github.com/skillmate/skillmate-core/internal/domain/user"
	"github.com/skillmate/skillmate-core/internal/infrastructure/external"
	"github.com/skillmate/skillmate-core/internal/infrastructure/external/analyzer"
	"github.com/skillmate/skillmate-core/internal/infrastructure/external/gemini"
	"github.com/skillmate/skillmate-core/internal/infrastructure/external/sentiment"
	"github.com/skillmate/skillmate-core/internal/infrastructure/messaging"
	"github.com/skillmate/skillmate-core/internal/infrastructure/persistence/memory"
	"github.com/skillmate/skillmate-core/internal/infrastructure/persistence/postgres"
	"github.com/skillmate/skillmate-core/internal/infrastructure/persistence/redis"
	"github.com/skillmate/skillmate-core/internal/infrastructure/scheduler"
	"github.com/skillmate/skillmate-core/internal/infrastructure/scheduler/jobs"
	"github.com/skillmate/skillmate-core/internal/interface/http/handlers"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION CONTAINER
// ══════════════════════════════════════════════════════════════════════════════

// repositories - хранилище, выбранное STORAGE_DRIVER.
type repositories struct {
	coursePaths   coursepath.Repository
	aggregates    coursepath.AggregateStore
	enrollments   enrollment.Repository
	progress      progress.Repository
	reviews       review.Repository
	users         user.Repository
	learningPaths learningpath.Repository
}

// app собирает зависимости в порядке: хранилище, кэш, шина, внешние
// сервисы, обработчики. Закрывается в обратном порядке.
type app struct {
	cfg *config.Config
	log *logger.Logger

	repos  repositories
	db     *postgres.Connection
	redis  *redis.Cache
	bus    *messaging.InMemoryEventBus
	health *handlers.CompositeHealthChecker

	keyCache command.IdempotencyCache
	dtoCache query.CoursePathCache

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		log:    log,
		health: handlers.NewCompositeHealthChecker(cfg.App.Version, 0),
	}
	if err := a.initStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.initCache(ctx)
	if err := a.initEventBus(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Storage
// ─────────────────────────────────────────────────────────────────────────────

func (a *app) initStorage(ctx context.Context) error {
	if a.cfg.Database.Driver == config.DriverMemory {
		a.log.Warn("using in-memory storage, data is lost on restart")
		store := memory.NewStore()
		a.repos = repositories{
			coursePaths:   store.CoursePaths(),
			aggregates:    store.Aggregates(),
			enrollments:   store.Enrollments(),
			progress:      store.Progress(),
			reviews:       store.Reviews(),
			users:         store.Users(),
			learningPaths: store.LearningPaths(),
		}
		return nil
	}

	a.log.Info("connecting to database...")
	conn, err := a.connectDB(ctx)
	if err != nil {
		return err
	}
	a.db = conn
	a.closers = append(a.closers, func() {
		a.log.Info("closing database connection...")
		conn.Close()
	})
	a.health.AddCheck("database", handlers.NewPingCheck(conn))

	if a.cfg.Database.AutoMigrate {
		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.log.Info("database schema is up to date", logger.Int("applied", applied))
	}

	a.repos = repositories{
		coursePaths:   postgres.NewCoursePathRepository(conn),
		aggregates:    postgres.NewAggregateStore(conn),
		enrollments:   postgres.NewEnrollmentRepository(conn),
		progress:      postgres.NewProgressRepository(conn),
		reviews:       postgres.NewReviewRepository(conn),
		users:         postgres.NewUserRepository(conn),
		learningPaths: postgres.NewLearningPathRepository(conn),
	}
	return nil
}

func (a *app) connectDB(ctx context.Context) (*postgres.Connection, error) {
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = a.cfg.Database.URL
	pgCfg.MaxConns = int32(a.cfg.Database.MaxOpenConns)
	pgCfg.MinConns = int32(a.cfg.Database.MaxIdleConns)
	pgCfg.MaxConnLifetime = a.cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = a.cfg.Database.ConnMaxIdleTime

	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	a.log.Info("database connection established")
	return conn, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Redis (опционально)
// ─────────────────────────────────────────────────────────────────────────────

// initCache never fails: without Redis reads go to storage and idempotency
// keys are resolved by the repository's unique index.
func (a *app) initCache(ctx context.Context) {
	rc := a.cfg.Redis
	if rc.Disabled {
		return
	}

	redisCfg := redis.DefaultConfig()
	redisCfg.URL = rc.URL
	redisCfg.Host = rc.Host
	redisCfg.Port = rc.Port
	redisCfg.Password = rc.Password
	redisCfg.DB = rc.DB
	redisCfg.PoolSize = rc.PoolSize
	redisCfg.MinIdleConns = rc.MinIdleConns
	redisCfg.DialTimeout = rc.DialTimeout
	redisCfg.ReadTimeout = rc.ReadTimeout
	redisCfg.WriteTimeout = rc.WriteTimeout

	a.log.Info("connecting to Redis...")
	cache, err := redis.NewCache(redisCfg)
	if err == nil {
		err = cache.Ping(ctx)
		if err != nil {
			_ = cache.Close()
		}
	}
	if err != nil {
		a.log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		return
	}
	a.redis = cache
	a.closers = append(a.closers, func() { _ = cache.Close() })
	a.health.AddCheck("redis", handlers.NewPingCheck(cache))

	if a.cfg.Features.Enabled(config.FeatureCoursePathCache) {
		a.dtoCache = redis.NewCoursePathCache(cache, rc.CoursePathTTL)
	}
	if a.cfg.Features.Enabled(config.FeatureIdempotencyCache) {
		a.keyCache = redis.NewIdempotencyCache(cache, 0)
	}
	a.log.Info("Redis connection established")
}

// ─────────────────────────────────────────────────────────────────────────────
// Event bus
// ─────────────────────────────────────────────────────────────────────────────

func (a *app) initEventBus() error {
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = a.log
	a.bus = messaging.NewInMemoryEventBus(busCfg)
	a.closers = append(a.closers, func() {
		a.log.Info("closing event bus...")
		_ = a.bus.Close()
	})

	if a.dtoCache != nil {
		h := eventhandler.NewOnCoursePathChangedHandler(a.dtoCache, a.log)
		if err := h.Register(a.bus); err != nil {
			return fmt.Errorf("failed to register cache invalidation: %w", err)
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Capabilities
// ─────────────────────────────────────────────────────────────────────────────

func (a *app) topicGenerator(ctx context.Context) (coursepath.TopicGenerator, error) {
	gc := a.cfg.Generation
	breaker := external.BreakerSettings{Threshold: gc.CircuitBreakerThreshold, OpenTimeout: gc.CircuitBreakerTimeout}

	switch gc.Provider {
	case config.ProviderAnalyzer:
		client := analyzer.NewClient(analyzer.DefaultClientConfig(gc.AnalyzerURL))
		return external.NewGuardedGenerator(client, config.ProviderAnalyzer, breaker, a.log), nil
	default:
		client, err := gemini.NewClient(ctx, gc.GeminiAPIKey, gc.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		return external.NewGuardedGenerator(gemini.NewTopicGenerator(client), config.ProviderGemini, breaker, a.log), nil
	}
}

// sentimentClassifier falls back to the lexicon when the remote classifier
// fails, so an outage degrades label quality instead of review writes.
func (a *app) sentimentClassifier(ctx context.Context) (review.SentimentClassifier, error) {
	sc := a.cfg.Sentiment
	lexicon := sentiment.NewLexicon()
	if sc.Provider != config.ProviderGemini {
		return lexicon, nil
	}

	client, err := gemini.NewClient(ctx, a.cfg.Generation.GeminiAPIKey, a.cfg.Generation.GeminiModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	breaker := external.BreakerSettings{Threshold: sc.CircuitBreakerThreshold, OpenTimeout: sc.CircuitBreakerTimeout}
	guarded := external.NewGuardedClassifier(gemini.NewSentimentClassifier(client), config.ProviderGemini, breaker, a.log)
	return sentiment.WithFallback(guarded, lexicon), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Application handlers
// ─────────────────────────────────────────────────────────────────────────────

func (a *app) reconcileHandler() *command.ReconcileAggregatesHandler {
	return command.NewReconcileAggregatesHandler(
		a.repos.coursePaths, a.repos.aggregates, a.bus, a.log, a.cfg.Scheduler.ReconcileBatchSize)
}

func (a *app) expireDraftsHandler() *command.ExpireStaleDraftsHandler {
	return command.NewExpireStaleDraftsHandler(a.repos.coursePaths, a.bus, a.log, nil)
}

// newScheduler registers the maintenance jobs. The caller starts it.
func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	sc := a.cfg.Scheduler
	s := scheduler.New(scheduler.Config{Logger: a.log, JobTimeout: sc.JobTimeout})

	if err := s.Register(sc.ReconcileSpec, jobs.NewReconcileAggregatesJob(a.reconcileHandler())); err != nil {
		return nil, fmt.Errorf("register reconcile job: %w", err)
	}
	expire := jobs.NewExpireStaleDraftsJob(a.expireDraftsHandler(), a.cfg.StaleDraftAfter(), 100)
	if err := s.Register(sc.StaleDraftSpec, expire); err != nil {
		return nil, fmt.Errorf("register stale draft job: %w", err)
	}
	return s, nil
}
