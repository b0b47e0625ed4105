package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/artromone/linkpulse/services/shortener/alias"
	"github.com/artromone/linkpulse/services/shortener/analytics"
	"github.com/artromone/linkpulse/services/shortener/cache"
	"github.com/artromone/linkpulse/services/shortener/config"
	"github.com/artromone/linkpulse/services/shortener/grpcapi"
	"github.com/artromone/linkpulse/services/shortener/handlers"
	"github.com/artromone/linkpulse/services/shortener/links"
	"github.com/artromone/linkpulse/services/shortener/middleware"
	"github.com/artromone/linkpulse/services/shortener/quota"
	"github.com/artromone/linkpulse/services/shortener/redirect"
	"github.com/artromone/linkpulse/services/shortener/repository"
	"github.com/artromone/linkpulse/services/shortener/resolver"
)

// app holds every long-lived component so main and the end-to-end tests
// share one wiring.
type app struct {
	log     *zap.Logger
	router  *gin.Engine
	grpc    *grpc.Server
	health  *health.Server
	repo    *repository.Repository
	pool    *analytics.WorkerPool
	sink    analytics.EventSink
	limiter *middleware.RateLimiter
	closers []func() error
}

func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{log: log}

	db, err := repository.Open(ctx, repository.Dialect(cfg.DB.Driver), cfg.DB.DSN, repository.PoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)

	a.repo = repository.New(db, repository.Dialect(cfg.DB.Driver))
	if err := a.repo.Migrate(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	var linkSource resolver.LinkStore = a.repo
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, link cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			rdb.Close()
		} else {
			c := cache.New(rdb, cfg.Redis.LocalTTL)
			a.closers = append(a.closers, func() error { c.Stop(); return nil }, rdb.Close)
			linkSource = cache.NewCachedLinks(a.repo, c, cfg.Redis.TTL, log.Named("cache"))
		}
	}

	if brokers := cfg.KafkaBrokers(); len(brokers) > 0 {
		a.sink = analytics.NewKafkaSink(brokers, cfg.Kafka.Topic)
		log.Info("publishing visit events", zap.Strings("brokers", brokers), zap.String("topic", cfg.Kafka.Topic))
	} else {
		a.sink = analytics.NopSink{}
	}

	geo := analytics.NewGeoClient(analytics.GeoConfig{
		BaseURL:      cfg.Geo.BaseURL,
		Token:        cfg.Geo.Token,
		Timeout:      cfg.Geo.Timeout,
		MaxFailures:  cfg.Geo.MaxFailures,
		ResetTimeout: cfg.Geo.ResetTimeout,
	}, log.Named("geo"))

	a.pool = analytics.NewWorkerPool(cfg.Analytics.Workers, cfg.Analytics.QueueSize, cfg.Analytics.TaskTimeout, log.Named("analytics"))
	a.pool.Start()

	engine := resolver.New(linkSource, resolver.Options{
		BaseURL:       cfg.Redirect.BaseURL,
		RoutePrefixes: cfg.Redirect.RoutePrefixes,
		Fuzzy:         cfg.Redirect.FuzzyFallback,
	}, log.Named("resolver"))

	orchestrator := redirect.New(
		engine,
		analytics.NewAccountant(a.repo, log.Named("clicks")),
		analytics.NewEnricher(a.repo, geo, a.sink, log.Named("enricher")),
		a.pool,
		cfg.Redirect.Deadline,
		log.Named("redirect"),
	)

	guard := quota.New(a.repo, a.repo, quota.Limits{
		Links:            cfg.Quota.Links,
		QRCodes:          cfg.Quota.QRCodes,
		CustomBackHalves: cfg.Quota.CustomBackHalves,
	}, log.Named("quota"))

	linkService := links.NewService(alias.New(a.repo), guard, a.repo, cfg.Redirect.BaseURL, log.Named("links"))
	reporter := analytics.NewReporter(a.repo, a.repo)

	gin.SetMode(cfg.Server.GinMode)
	a.router = gin.New()
	a.router.Use(middleware.Recovery(log), middleware.RequestLogger(log.Named("http")))

	a.limiter = middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Per, nil)
	h := handlers.New(orchestrator, linkService, guard, reporter, a.repo, log.Named("handlers"))
	h.Register(a.router, cfg.Redirect.RoutePrefixes, a.limiter.Middleware())

	a.grpc, a.health = grpcapi.NewServer(grpcapi.NewService(orchestrator, linkService, guard), log.Named("grpc"))
	return a, nil
}

// shutdown drains the analytics queue before closing the stores it writes to.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.pool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain analytics: %w", err))
	}
	a.limiter.Stop()
	if err := a.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close event sink: %w", err))
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) httpServer(cfg config.Server) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      a.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}
