package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/prehisle/ustats/internal/admin"
	"github.com/prehisle/ustats/internal/ingest"
	"github.com/prehisle/ustats/internal/middleware"
	"github.com/prehisle/ustats/pkg/config"
	"github.com/prehisle/ustats/pkg/logline"
	"github.com/prehisle/ustats/pkg/metrics"
	"github.com/prehisle/ustats/pkg/routes"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	routeStore, cleanup := setupRouteStore(ctx, cfg)
	defer cleanup()

	serviceOpts := []routes.ServiceOption{routes.WithLogger(log.Default())}
	redisClient := setupRedis(cfg)
	if redisClient != nil {
		defer redisClient.Close()
		serviceOpts = append(serviceOpts,
			routes.WithCache(routes.NewRedisCache(redisClient, cfg.RedisCacheKey, cfg.RedisCacheTTL)),
			routes.WithEventBus(routes.NewRedisEventBus(redisClient, cfg.RedisChannel)),
		)
	}
	routeService := routes.NewService(routeStore, serviceOpts...)

	if err := seedRoutes(ctx, routeService, cfg.RoutePrefixes); err != nil {
		logger.Warn("failed to seed routes", "error", err)
	}
	routeService.StartBackgroundSync(ctx)

	store := metrics.NewStore(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithMaxTrackedUsers(cfg.MaxTrackedUsers),
	)
	tracker := metrics.NewTracker(store,
		metrics.WithActivityWindow(cfg.ActivityWindow),
		metrics.WithUpdateInterval(cfg.UpdateInterval),
	)
	go tracker.Run(ctx)

	parser := logline.NewParser(logline.WithRouteResolver(routeService.ResolveRoute))
	pipeline := ingest.NewPipeline(parser, store, tracker,
		ingest.WithResponseTimeout(cfg.ResponseTimeoutSeconds),
		ingest.WithPipelineLogger(logger),
	)
	tailer := ingest.NewTailer(cfg.AccessLogPath, ingest.WithTailerLogger(logger))
	go func() {
		if err := pipeline.Run(ctx, tailer); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("ingestion stopped", "error", err)
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLogger(logger, store))

	router.GET("/metrics", gin.WrapH(store.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	auth := admin.NewAuthenticator(cfg.AdminUsername, cfg.AdminPassword, cfg.AdminTokenSecret, cfg.AdminTokenTTL)
	adminHandler := admin.NewHandler(admin.NewService(routeService), auth,
		admin.WithActionRecorder(store.ObserveAdminAction))
	adminGroup := router.Group("/admin", middleware.CORS(cfg.AdminCORSOrigins))
	admin.RegisterPublicRoutes(adminGroup, adminHandler)
	protected := adminGroup.Group("", auth.Middleware())
	admin.RegisterProtectedRoutes(protected, adminHandler)

	server := &http.Server{
		Addr:              ":" + cfg.ExporterPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("exporter listening", "addr", server.Addr, "access_log", cfg.AccessLogPath)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// setupRouteStore 根据 DATABASE_DSN 选择持久化或内存路由表。
func setupRouteStore(ctx context.Context, cfg config.Config) (routes.Store, func()) {
	if cfg.DatabaseDSN == "" {
		return routes.NewMemoryStore(), func() {}
	}
	gormLogger := gormlogger.New(log.New(os.Stdout, "gorm: ", log.LstdFlags), gormlogger.Config{
		SlowThreshold: time.Second,
		LogLevel:      gormlogger.Silent,
	})
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{Logger: gormLogger})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	store := routes.NewDBStore(db)
	if err := store.AutoMigrate(ctx); err != nil {
		log.Fatalf("failed to migrate routes table: %v", err)
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return store, cleanup
}

func setupRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
}

// seedRoutes 确保配置的默认前缀存在，已有记录保持不变。
func seedRoutes(ctx context.Context, svc routes.Service, prefixes []string) error {
	for _, prefix := range prefixes {
		_, err := svc.GetRoute(ctx, prefix)
		if err == nil {
			continue
		}
		if !errors.Is(err, routes.ErrRouteNotFound) {
			return err
		}
		route := routes.Route{Prefix: prefix, Enabled: true, Comment: "bootstrap"}
		if err := svc.UpsertRoute(ctx, route); err != nil {
			return err
		}
	}
	return nil
}
