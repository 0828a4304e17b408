package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/deskforge/deskforge/pkg/api"
	"github.com/deskforge/deskforge/pkg/apps"
	"github.com/deskforge/deskforge/pkg/audit"
	"github.com/deskforge/deskforge/pkg/config"
	"github.com/deskforge/deskforge/pkg/datasource"
	"github.com/deskforge/deskforge/pkg/middleware"
	"github.com/deskforge/deskforge/pkg/observability"
	"github.com/deskforge/deskforge/pkg/permissions"
	"github.com/deskforge/deskforge/pkg/records"
	"github.com/deskforge/deskforge/pkg/storage/postgres"
	"github.com/deskforge/deskforge/pkg/webhooks"
)

func main() {
	templateDir := flag.String("template-dir", "", "Directory of YAML app templates to seed on startup")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	httpLogger := logrus.New()
	httpLogger.SetFormatter(&logrus.JSONFormatter{})

	ctx := context.Background()

	var otelProviders *observability.OTelProviders
	if cfg.Observability.OTelEnabled {
		otelProviders, err = observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
		}
	}

	connManager, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: cfg.Database.ReplicaURLs,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	db := connManager.Primary()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = postgres.NewRedisClient(postgres.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		logger.Info("Redis cache tier enabled")
	}

	superRoles := config.NewSuperRoleSet(cfg.Permissions.SuperRoles)
	if cfg.Permissions.SuperRolesFile != "" {
		if err := superRoles.LoadFromFile(cfg.Permissions.SuperRolesFile); err != nil {
			log.Fatalf("Failed to load super roles file: %v", err)
		}
		if err := superRoles.Watch(cfg.Permissions.SuperRolesFile, logger); err != nil {
			logger.WithError(err).Warn("Super role file watch disabled")
		}
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	appStore := apps.NewStore(db, logger)
	permStore := permissions.NewStore(db)
	recordStore := records.NewStore(db, logger)
	webhookStore := webhooks.NewStore(db, logger)
	trail := audit.NewTrail(db, logger)

	if err := ensureSchema(ctx, appStore, permStore, recordStore, webhookStore, trail); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}

	if *templateDir != "" {
		if err := apps.SeedTemplates(ctx, appStore, *templateDir, logger); err != nil {
			log.Fatalf("Failed to seed templates: %v", err)
		}
	}

	evaluator := permissions.NewEvaluator(permStore, superRoles, permissions.EvaluatorConfig{
		CacheTTL: cfg.Permissions.CacheTTL,
		Redis:    redisClient,
		Metrics:  metrics,
		Logger:   logger,
	})

	dispatcher := webhooks.NewDispatcher(webhookStore, webhookStore, webhooks.DispatcherConfig{
		DeliveryTimeout: cfg.Webhooks.DeliveryTimeout,
		PoolSize:        cfg.Webhooks.PoolSize,
		MaxResponseBody: cfg.Webhooks.MaxResponseBody,
		Metrics:         metrics,
	}, logger)

	appService := apps.NewService(appStore, evaluator, superRoles, trail, logger)
	recordService := records.NewService(records.ServiceConfig{
		Store:         recordStore,
		AppSource:     appStore,
		Evaluator:     evaluator,
		Notifier:      dispatcher,
		Audit:         trail,
		Metrics:       metrics,
		Logger:        logger,
		FieldCacheTTL: 30 * time.Second,
	})

	mirror := datasource.NewMirror(recordStore, appStore, dispatcher, logger)
	if cfg.Mirror.Enabled && cfg.Mirror.SourcesFile != "" {
		sources, err := config.LoadMirrorSources(cfg.Mirror.SourcesFile)
		if err != nil {
			log.Fatalf("Failed to load mirror sources: %v", err)
		}
		for _, src := range sources {
			schedule := src.Schedule
			if schedule == "" {
				schedule = cfg.Mirror.Schedule
			}
			err := mirror.AddSource(datasource.Source{
				AppCode:  src.App,
				KeyField: src.KeyField,
				Client:   datasource.NewHTTPClient(src.URL, src.Headers, src.Timeout),
			}, schedule)
			if err != nil {
				log.Fatalf("Failed to register mirror source %q: %v", src.App, err)
			}
		}
		mirror.Start()
		logger.WithField("sources", len(sources)).Info("Data source mirror started")
	}

	var rateLimiter *middleware.RateLimiter
	if redisClient != nil {
		rateLimiter = middleware.NewRateLimiter(redisClient, middleware.DefaultRateLimitConfig(), httpLogger)
	}

	server := api.NewServer(api.ServerConfig{
		Logger:      httpLogger,
		Apps:        appService,
		Records:     recordService,
		Permissions: permStore,
		Evaluator:   evaluator,
		SuperRoles:  superRoles,
		Webhooks:    webhookStore,
		Trail:       trail,
		Health:      observability.NewHealthChecker(db, redisClient),
		Metrics:     metrics,
		Registry:    registry,
		RateLimiter: rateLimiter,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		mirror.Stop()
		return dispatcher.Shutdown(cfg.Server.ShutdownTimeout)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		superRoles.Close()
		if redisClient != nil {
			redisClient.Close()
		}
		return connManager.Close()
	})
	if otelProviders != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":        httpServer.Addr,
			"super_roles": superRoles.Roles(),
		}).Info("DeskForge listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

func ensureSchema(ctx context.Context, appStore *apps.Store, permStore *permissions.Store,
	recordStore *records.Store, webhookStore *webhooks.Store, trail *audit.Trail) error {
	if err := appStore.EnsureTables(ctx); err != nil {
		return err
	}
	if err := permStore.EnsureTables(); err != nil {
		return err
	}
	if err := recordStore.EnsureTables(ctx); err != nil {
		return err
	}
	if err := webhookStore.EnsureTables(ctx); err != nil {
		return err
	}
	return trail.EnsureTable(ctx)
}
