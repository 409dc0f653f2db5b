// Package app assembles the API and worker from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coursebay/coursebay/backend/go-services/handlers"
	"github.com/coursebay/coursebay/backend/go-services/internal/auth"
	"github.com/coursebay/coursebay/backend/go-services/internal/cdn"
	"github.com/coursebay/coursebay/backend/go-services/internal/config"
	"github.com/coursebay/coursebay/backend/go-services/internal/database"
	dochandler "github.com/coursebay/coursebay/backend/go-services/internal/document/handler"
	"github.com/coursebay/coursebay/backend/go-services/internal/document/repository"
	docservice "github.com/coursebay/coursebay/backend/go-services/internal/document/service"
	"github.com/coursebay/coursebay/backend/go-services/internal/importer"
	"github.com/coursebay/coursebay/backend/go-services/internal/lock"
	"github.com/coursebay/coursebay/backend/go-services/internal/regeneration"
	"github.com/coursebay/coursebay/backend/go-services/internal/task"
	taskhandler "github.com/coursebay/coursebay/backend/go-services/internal/task/handler"
	"github.com/coursebay/coursebay/backend/go-services/pkg/logger"
	"github.com/coursebay/coursebay/backend/go-services/pkg/metrics"
	"github.com/coursebay/coursebay/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const mongoConnectAttempts = 5

// App holds the wired components of one process.
type App struct {
	Router   *gin.Engine
	Poller   *task.Poller
	Service  *task.Service
	Registry *prometheus.Registry

	mongo *mongo.Client
	redis *redis.Client
	log   *zap.SugaredLogger
}

type backends struct {
	docs    repository.Repository
	store   task.Store
	locks   lock.Store
	cdn     cdn.ResourceStore
	checks  map[string]handlers.Check
	limiter middleware.Limiter
}

// New connects to the configured backends and builds the router. Backends
// that are not configured fall back to in-memory implementations.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{log: logger.Named("app")}
	b, err := a.connect(ctx, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	processors := map[task.TaskType]task.Processor{
		task.TypeDocumentImport:            importer.NewProcessor(cfg, b.docs, b.cdn, nil),
		task.TypeDocumentRegeneration:      regeneration.NewProcessor(b.docs),
		task.TypeCdnResourcesConsolidation: cdn.NewConsolidationProcessor(b.docs, b.cdn),
	}
	runner := task.NewTaskProcessor(b.store, b.locks, processors, task.ProcessorConfig{
		MaxAttempts: cfg.Tasks.MaxAttempts,
		LockTTL:     cfg.Tasks.LockTTL,
	})
	batches := task.NewBatchProcessor(b.store, b.store, b.locks, runner, task.BatchConfig{
		Concurrency: cfg.Tasks.Concurrency,
		ChunkSize:   cfg.Tasks.ChunkSize,
		LockTTL:     cfg.Tasks.LockTTL,
	})
	a.Poller = task.NewPoller(b.store, batches, cfg.Tasks.PollInterval)

	sourceNames := make([]string, 0, len(cfg.ImportSources))
	for _, s := range cfg.ImportSources {
		sourceNames = append(sourceNames, s.Name)
	}
	a.Service = task.NewService(b.store, b.store, b.docs, b.locks, runner, sourceNames)

	a.Registry = prometheus.NewRegistry()
	metrics.RegisterCollectors(a.Registry)
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	admin := a.adminChain(ctx, cfg)
	a.Router = a.router(cfg, b, admin)
	return a, nil
}

func (a *App) connect(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{checks: map[string]handlers.Check{}}

	if addr := cfg.Redis.Addr(); addr != "" {
		client, err := database.ConnectRedis(ctx, addr, cfg.Redis.Password, cfg.Redis.DB)
		switch {
		case err == nil:
			a.redis = client
			b.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		case cfg.Tasks.LockBackend == "redis":
			return nil, fmt.Errorf("connect redis: %w", err)
		default:
			a.log.Warnw("redis unavailable, continuing without it", "addr", addr, "error", err)
		}
	}

	var db *mongo.Database
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, mongoConnectAttempts)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		a.mongo = client
		db = client.Database(cfg.MongoDB.Database)
		b.checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	}

	if db != nil {
		docs := repository.NewMongoRepo(db.Collection("documents"))
		store := task.NewMongoStore(db.Collection("tasks"), db.Collection("batches"))
		if err := docs.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("document indexes: %w", err)
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("task indexes: %w", err)
		}
		b.docs, b.store = docs, store
	} else {
		a.log.Warn("MONGODB_URI not set, documents and tasks are kept in memory")
		b.docs, b.store = repository.NewMemoryRepo(), task.NewMemoryStore()
	}

	switch {
	case cfg.Tasks.LockBackend == "redis" && a.redis != nil:
		b.locks = lock.NewRedisStore(a.redis, "")
	case cfg.Tasks.LockBackend == "mongo" && db != nil:
		locks := lock.NewMongoStore(db.Collection("locks"))
		if err := locks.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("lock indexes: %w", err)
		}
		b.locks = locks
	default:
		b.locks = lock.NewMemoryStore()
	}

	if cfg.MinIO.Endpoint != "" {
		store, err := cdn.NewMinIOStore(ctx, cdn.MinIOOptions{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Bucket:    cfg.MinIO.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("connect minio: %w", err)
		}
		b.cdn = store
		b.checks["minio"] = store.Ping
	} else {
		b.cdn = cdn.NewMemoryStore()
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && a.redis != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			b.limiter = middleware.NewRedisLimiter(a.redis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win)
		} else {
			b.limiter = middleware.NewMemoryLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		}
	}

	a.log.Infow("backends ready",
		"mongo", a.mongo != nil, "redis", a.redis != nil, "minio", cfg.MinIO.Endpoint != "",
		"locks", fmt.Sprintf("%T", b.locks))
	return b, nil
}

// adminChain returns the middleware guarding mutating task routes. Without a
// configured verifier every admin request is refused.
func (a *App) adminChain(ctx context.Context, cfg *config.Config) []gin.HandlerFunc {
	verifier, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		if errors.Is(err, auth.ErrNotConfigured) {
			a.log.Warn("no token verifier configured, admin routes are disabled")
		} else {
			a.log.Errorw("token verifier unavailable, admin routes are disabled", "error", err)
		}
		return []gin.HandlerFunc{func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Authentication is not configured"})
		}}
	}
	return []gin.HandlerFunc{middleware.AuthMiddleware(verifier), middleware.RequireRole(cfg.Auth.AdminRole)}
}

func (a *App) router(cfg *config.Config, b *backends, admin []gin.HandlerFunc) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.CORS())
	if b.limiter != nil {
		r.Use(middleware.RateLimit(b.limiter))
	}

	handlers.RegisterHealth(r, b.checks)
	handlers.RegisterSwagger(r)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))
	cdn.RegisterRoutes(r, b.cdn)

	api := r.Group("/api/v1")
	dochandler.RegisterDocumentRoutes(api, docservice.New(b.docs))
	taskhandler.RegisterTaskRoutes(api, a.Service, admin...)
	return r
}

// Close stops the poller and releases backend connections.
func (a *App) Close(ctx context.Context) {
	if a.Poller != nil && a.Poller.IsRunning() {
		a.Poller.Stop()
	}
	if a.mongo != nil {
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.log.Warnw("mongo disconnect failed", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warnw("redis close failed", "error", err)
		}
	}
	logger.Sync()
}
