package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"sudooom.im.messaging/internal/api"
	"sudooom.im.messaging/internal/config"
	"sudooom.im.messaging/internal/gateway"
	"sudooom.im.messaging/internal/handler"
	"sudooom.im.messaging/internal/health"
	"sudooom.im.messaging/internal/identity"
	"sudooom.im.messaging/internal/location"
	imNats "sudooom.im.messaging/internal/nats"
	"sudooom.im.messaging/internal/service"
	"sudooom.im.messaging/internal/store"
	"sudooom.im.messaging/internal/workerpool"
)

func main() {
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.App.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接 NATS
	natsClient, err := imNats.NewClient(cfg.NATS)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	logger.Info("Connected to NATS", "url", cfg.NATS.URL)

	// 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer redisClient.Close()
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)

	// 连接数据库并初始化表结构
	pool, err := connectDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	st := store.New(pool)
	defer st.Close()
	if err := st.InitSchema(ctx); err != nil {
		logger.Error("Failed to init schema", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to PostgreSQL", "host", cfg.Database.Host)

	// 初始化服务
	resolver := identity.NewJWTResolver(cfg.Auth.TokenSecret, redisClient)
	registry := location.NewRegistry(redisClient, cfg.App.NodeID)
	publisher := imNats.NewMessagePublisher(natsClient.Conn())

	dispatcher := service.NewDispatcherService(registry, publisher)
	directory := service.NewDirectoryService(st, resolver)
	ingest := service.NewIngestService(st, dispatcher, cfg.Limits.MaxContentLength)
	reconcile := service.NewReconcileService(st)

	// 启动上行消息订阅（按会话分片的 worker pool 保证会话内保序）
	wpool := workerpool.New(cfg.NATS.WorkerCount, cfg.NATS.BufferSize, logger)
	upstreamHandler := handler.NewUpstreamHandler(ingest, reconcile, dispatcher)
	subscriber := imNats.NewMessageSubscriber(natsClient.Conn(), upstreamHandler, wpool)
	if err := subscriber.Start(ctx); err != nil {
		logger.Error("Failed to start subscriber", "error", err)
		os.Exit(1)
	}

	// 启动实时通道网关
	gwServer := gateway.New(cfg, natsClient, resolver, registry, logger)
	go func() {
		if err := gwServer.Start(ctx); err != nil {
			logger.Error("Gateway server stopped", "error", err)
		}
	}()

	// 启动 REST API
	checker := health.NewChecker(natsClient.Conn(), redisClient, st, gwServer.ConnManager())
	router := api.NewRouter(resolver, directory, ingest, reconcile, checker)
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}
	go func() {
		logger.Info("HTTP server started", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	logger.Info("Messaging service started",
		"name", cfg.App.Name,
		"nodeId", cfg.App.NodeID)

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	gwServer.Shutdown()
	subscriber.Stop()
	wpool.Shutdown()
	logger.Info("Messaging service stopped")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// connectDatabase 连接 PostgreSQL
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	return pgxpool.NewWithConfig(ctx, poolConfig)
}
