package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-router/internal/auth"
	"chat-router/internal/cache"
	"chat-router/internal/config"
	"chat-router/internal/db"
	"chat-router/internal/grpcserver"
	"chat-router/internal/handlers"
	"chat-router/internal/logging"
	"chat-router/internal/middleware"
	"chat-router/internal/observability"
	"chat-router/internal/persistence"
	"chat-router/internal/rabbitmq"
	"chat-router/internal/registry"
	"chat-router/internal/repositories"
	"chat-router/internal/router"
	"chat-router/internal/stream"
	"chat-router/internal/telemetry"
	"chat-router/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := logging.L()
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Log)
	logger := logging.L()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, cfg.Telemetry.Environment)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracer")
	}

	repo, closeRepo := openRepository(ctx, cfg.Database)
	defer closeRepo()

	historyCache := openCache(cfg.Redis)
	defer historyCache.Close()

	producer := stream.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	logger.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("noop_reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("event publisher ready")
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditRoutingKey, cfg.Telemetry.ServiceName, cfg.Telemetry.Environment)

	writer := persistence.NewWriter(repo,
		persistence.WithCache(historyCache),
		persistence.WithStream(producer),
	)
	reg := registry.New()
	rt := router.New(writer, reg, router.Config{PublicLatency: cfg.Router.PublicLatency})
	validator := auth.NewValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	messageHandler := handlers.NewMessageHandler(rt, writer, audit)
	wsHandler := ws.NewHandler(rt, reg, validator, cfg.WebSocket)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	engine.Use(middleware.RequestLogger(logger))
	engine.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(validator)

	engine.GET("/healthz", handlers.Health(writer))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.POST("/api/messages/public", authMiddleware, messageHandler.PostPublic)
	engine.POST("/api/messages/private", authMiddleware, messageHandler.PostPrivate)
	engine.GET("/api/messages/history/:user1/:user2", authMiddleware, messageHandler.GetHistory)
	engine.GET("/ws", wsHandler.Handle)
	handlers.RegisterDebugRoutes(engine, audit, cfg.Telemetry.DebugRoutes)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: engine,
	}
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	healthServer := grpcserver.New(writer)
	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to listen for grpc")
	}
	go healthServer.Watch(ctx, 10*time.Second)
	go func() {
		logger.Info().Str("addr", lis.Addr().String()).Msg("grpc health server listening")
		if err := healthServer.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("grpc server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	healthServer.Stop()
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracer shutdown error")
	}
}

func openRepository(ctx context.Context, cfg config.DatabaseConfig) (repositories.MessageRepository, func()) {
	logger := logging.L()
	if cfg.Driver == "memory" {
		logger.Warn().Msg("using in-memory message store; records are lost on restart")
		return repositories.NewMemoryMessageRepo(), func() {}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	database, err := db.Connect(connectCtx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to db")
	}
	return repositories.NewMessageRepo(database), func() { _ = database.Close() }
}

func openCache(cfg config.RedisConfig) cache.HistoryCache {
	logger := logging.L()
	if !cfg.Enabled {
		logger.Info().Msg("history cache disabled")
		return cache.NoopCache{}
	}
	c, err := cache.NewRedisHistoryCache(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("history cache unavailable, continuing without it")
		return cache.NoopCache{}
	}
	return c
}
