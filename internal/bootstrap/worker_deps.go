package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/time/rate"

	"complaint_server/adapter/in/worker"
	"complaint_server/adapter/out/messaging"
	"complaint_server/adapter/out/mongodb"
	"complaint_server/adapter/out/persistence"
	"complaint_server/adapter/out/provider/outlook"
	"complaint_server/config"
	"complaint_server/core/agent/llm"
	"complaint_server/core/port/out"
	"complaint_server/core/service/complaint"
	"complaint_server/core/service/origin"
	"complaint_server/core/service/pattern"
	"complaint_server/core/service/pipeline"
	"complaint_server/infra/database"
	"complaint_server/infra/middleware"
	"complaint_server/pkg/cache"
	"complaint_server/pkg/logger"
	"complaint_server/pkg/metrics"
	"complaint_server/pkg/resilience"
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	ComplaintRepo *persistence.ComplaintAdapter
	ColumnRepo    *persistence.CustomColumnAdapter
	CursorRepo    *persistence.SyncCursorAdapter
	Archive       *mongodb.ArchiveAdapter

	// Redis-backed helpers
	RedisCache      *cache.RedisCache
	ClassifyCache   *persistence.ClassificationCacheAdapter
	CaseLocker      *persistence.CaseLockAdapter
	AuditProducer   *messaging.RedisProducer
	TokenBlacklist  *middleware.TokenBlacklist
	PipelineMetrics *metrics.Pipeline

	// Services
	Patterns   *pattern.Library
	Origins    *origin.Extractor
	Pipeline   *pipeline.Service
	Query      *complaint.QueryService
	Scheduler  *worker.Scheduler
	Classifier out.Classifier
}

// NewDependencies connects the stores and builds the services. Postgres is
// required; Redis and MongoDB are optional and only enable the features that
// need them.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// Database (pgxpool for readiness checks)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return fail(err)
	}
	deps.DB = db
	cleanups = append(cleanups, db.Close)

	// Database (sqlx for adapters)
	sqlDB, err := database.NewSQLX(cfg.DatabaseURL, database.DefaultPostgresConfig())
	if err != nil {
		return fail(err)
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = persistence.Migrate(migrateCtx, sqlDB)
	cancel()
	if err != nil {
		return fail(fmt.Errorf("failed to migrate schema: %w", err))
	}
	logger.Info("[Bootstrap] postgres ready")

	deps.ComplaintRepo = persistence.NewComplaintAdapter(sqlDB)
	deps.ColumnRepo = persistence.NewCustomColumnAdapter(sqlDB)
	deps.CursorRepo = persistence.NewSyncCursorAdapter(sqlDB)

	// Redis
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL, database.DefaultRedisConfig())
		if err != nil {
			logger.Warn("[Bootstrap] Redis connection failed, continuing without it: %v", err)
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })

			deps.RedisCache = cache.NewRedisCache(redisClient, "complaints")
			deps.ClassifyCache = persistence.NewClassificationCacheAdapter(deps.RedisCache)
			deps.CaseLocker = persistence.NewCaseLockAdapter(deps.RedisCache, cfg.CaseLockTTL)
			deps.AuditProducer = messaging.NewRedisProducer(redisClient)
			deps.TokenBlacklist = middleware.NewTokenBlacklist(redisClient)
			logger.Info("[Bootstrap] redis ready")
		}
	}

	// MongoDB
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL, cfg.MongoDBName)
		if err != nil {
			logger.Warn("[Bootstrap] MongoDB connection failed, continuing without history: %v", err)
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				mongoClient.Disconnect(ctx)
			})

			deps.Archive = mongodb.NewArchiveAdapter(mongoClient.Database(cfg.MongoDBName))
			idxCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			if err := deps.Archive.EnsureIndexes(idxCtx); err != nil {
				logger.Warn("[Bootstrap] failed to ensure archive indexes: %v", err)
			}
			cancel()
			logger.Info("[Bootstrap] mongodb ready")
		}
	}

	// Pattern library and origin extraction
	lib, err := pattern.Load(cfg.PatternFile, cfg.PartMasterFile)
	if err != nil {
		return fail(fmt.Errorf("failed to load patterns: %w", err))
	}
	deps.Patterns = lib
	deps.Origins = origin.New(lib, origin.WithLocation(cfg.Location()))

	deps.PipelineMetrics = metrics.NewPipeline(prometheus.DefaultRegisterer)
	deps.Classifier = newClassifier(cfg, deps)

	deps.Query = complaint.NewQueryService(deps.ComplaintRepo, deps.ColumnRepo, archiveOrNil(deps.Archive))

	if cfg.MailboxConfigured() {
		deps.newPipeline(context.Background())
	} else {
		logger.Warn("[Bootstrap] no mailbox credentials, sync is disabled")
	}

	return deps, cleanup, nil
}

// newClassifier assembles the model client with its breaker, rate limit and
// cache.
func newClassifier(cfg *config.Config, deps *Dependencies) out.Classifier {
	if cfg.ClassifierDisabled {
		logger.Warn("[Bootstrap] classifier disabled, complaints will be stored unclassified")
		return llm.Disabled{}
	}

	completer := llm.NewOpenAICompleter(llm.CompleterConfig{
		APIKey:    cfg.OpenAIAPIKey,
		BaseURL:   cfg.OpenAIBaseURL,
		Model:     cfg.LLMModel,
		MaxTokens: cfg.LLMMaxTokens,
	})

	opts := []llm.ClientOption{llm.WithMetrics(deps.PipelineMetrics)}
	if cfg.LLMBreakerEnabled {
		bc := resilience.DefaultBreakerConfig("llm")
		bc.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn("[Classifier] breaker %s: %s -> %s", name, from, to)
		}
		opts = append(opts, llm.WithBreaker(resilience.NewBreaker(bc)))
	}
	if cfg.LLMRatePerSec > 0 {
		opts = append(opts, llm.WithLimiter(rate.NewLimiter(rate.Limit(cfg.LLMRatePerSec), 1)))
	}

	var classifier out.Classifier = llm.NewClassificationClient(completer, opts...)
	if deps.ClassifyCache != nil && cfg.LLMCacheTTLMin > 0 {
		classifier = llm.NewCachedClassifier(classifier, deps.ClassifyCache, time.Duration(cfg.LLMCacheTTLMin)*time.Minute)
	}
	return classifier
}

// newPipeline wires the batch pipeline and its scheduler. Build events go to
// the Redis stream when Redis is present and are relayed into MongoDB by the
// worker's consumer; without Redis they are written to MongoDB directly.
func (d *Dependencies) newPipeline(ctx context.Context) {
	cfg := d.Config

	source := outlook.NewSource(ctx, outlook.Config{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		AccessToken:  cfg.GraphAccessToken,
		Mailbox:      cfg.GraphMailbox,
		PageSize:     cfg.GraphPageSize,
	})

	pd := pipeline.Deps{
		Source:     source,
		Store:      d.ComplaintRepo,
		Classifier: d.Classifier,
		Cursor:     d.CursorRepo,
		Metrics:    d.PipelineMetrics,
	}
	if d.CaseLocker != nil {
		pd.Locker = d.CaseLocker
	}
	switch {
	case d.AuditProducer != nil:
		pd.Audit = d.AuditProducer
	case d.Archive != nil:
		pd.Archive = d.Archive
	}

	runner := worker.NewBatchRunner(worker.BatchRunnerConfig{
		Workers:        cfg.WorkerCount,
		BatchSize:      1,
		WorkerChanSize: worker.DefaultBatchRunnerConfig().WorkerChanSize,
	})

	d.Pipeline = pipeline.NewService(d.Patterns, d.Origins, pd, pipeline.Settings{
		Mailbox:           cfg.GraphMailbox,
		StartDate:         cfg.StartDate,
		ClassifyTimeout:   cfg.LLMTimeout(),
		MaxRetries:        cfg.LLMMaxRetries,
		BackoffMultiplier: cfg.LLMBackoff,
	}, pipeline.WithExecutor(runner))

	d.Scheduler = worker.NewScheduler(d.Pipeline.Run, cfg.SyncInterval)
}

// archiveOrNil keeps a nil *ArchiveAdapter from becoming a non-nil interface.
func archiveOrNil(a *mongodb.ArchiveAdapter) out.ComplaintArchive {
	if a == nil {
		return nil
	}
	return a
}
