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
	"golang.org/x/time/rate"

	"github.com/rajyaabhishek/LawX-sub001/internal/config"
	"github.com/rajyaabhishek/LawX-sub001/internal/db"
	"github.com/rajyaabhishek/LawX-sub001/internal/delivery"
	"github.com/rajyaabhishek/LawX-sub001/internal/directory"
	"github.com/rajyaabhishek/LawX-sub001/internal/grpcapi"
	"github.com/rajyaabhishek/LawX-sub001/internal/handlers"
	"github.com/rajyaabhishek/LawX-sub001/internal/identity"
	"github.com/rajyaabhishek/LawX-sub001/internal/logger"
	"github.com/rajyaabhishek/LawX-sub001/internal/media"
	"github.com/rajyaabhishek/LawX-sub001/internal/messaging"
	"github.com/rajyaabhishek/LawX-sub001/internal/middleware"
	"github.com/rajyaabhishek/LawX-sub001/internal/notifications"
	"github.com/rajyaabhishek/LawX-sub001/internal/observability"
	"github.com/rajyaabhishek/LawX-sub001/internal/rabbitmq"
	"github.com/rajyaabhishek/LawX-sub001/internal/repositories"
	"github.com/rajyaabhishek/LawX-sub001/internal/retention"
	"github.com/rajyaabhishek/LawX-sub001/internal/telemetry"
	"github.com/rajyaabhishek/LawX-sub001/internal/ws"
)

// maxSendBody leaves room for the base64 overhead of an image at the
// configured limit plus the JSON envelope.
func maxSendBody(maxImageBytes int) int64 {
	return int64(maxImageBytes)*4/3 + 64*1024
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("production", "info")
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Server.Environment, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
		shutdownTracing = func(context.Context) error { return nil }
	}

	database, err := db.Connect(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	mongoClient, err := db.NewMongoConnection(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mongodb")
	}

	redisClient, err := db.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	var (
		identityCache identity.Cache
		sendCounter   middleware.Counter
	)
	if redisClient != nil {
		defer redisClient.Close()
		identityCache = identity.NewRedisCache(redisClient)
		sendCounter = middleware.NewRedisCounter(redisClient)
	} else {
		logger.Warn().Msg("redis not configured: identity cache and send limit disabled")
	}

	eventPublisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer eventPublisher.Close()
	observability.SetPublisher(eventPublisher)
	logger.Info().
		Str("mode", rabbitmq.PublisherMode(eventPublisher)).
		Str("reason", rabbitmq.PublisherNoopReason(eventPublisher)).
		Str("exchange", cfg.AMQP.Exchange).
		Msg("event publisher ready")

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.AuditExchange)
	defer auditPublisher.Close()
	audit := telemetry.NewAuditEmitter(auditPublisher, cfg.AMQP.AuditRouting, cfg.Telemetry.ServiceName, cfg.Server.Environment)

	users := directory.New(mongoClient.Database, cfg.MongoDB.UsersColl)
	resolver := identity.NewResolver(users, identityCache, cfg.Redis.CacheTTL)
	verifier := identity.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	images := media.NewGridFSStore(mongoClient.GridFS)

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database, cfg.Messaging.RetentionDays)
	notificationRepo := repositories.NewNotificationRepo(database)

	registry := ws.NewRegistry()
	dispatcher := delivery.New(registry, resolver, notificationRepo, users, delivery.Options{
		Workers:        cfg.Delivery.Workers,
		QueueSize:      cfg.Delivery.QueueSize,
		ReconnectBatch: cfg.Delivery.ReconnectBatch,
	})
	dispatcher.Start()

	messageService := messaging.NewService(conversationRepo, messageRepo, users, images, dispatcher, cfg.Messaging.MaxImageBytes)
	notificationService := notifications.NewService(notificationRepo, users, dispatcher)

	var wsVerifier ws.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		wsVerifier = verifier
	} else {
		logger.Warn().Msg("auth.jwt_secret not set: live channels trust the userId parameter")
	}
	wsHandler := ws.NewHandler(registry, resolver, wsVerifier, messageService, dispatcher, ws.Options{
		IdleTimeout:    cfg.Realtime.IdleTimeout,
		SendBuffer:     cfg.Realtime.SendBuffer,
		TypingInterval: cfg.Realtime.TypingInterval,
	})

	messageHandler := handlers.NewMessageHandler(messageService, maxSendBody(cfg.Messaging.MaxImageBytes))
	notificationHandler := handlers.NewNotificationHandler(notificationService, audit)
	presenceHandler := handlers.NewPresenceHandler(registry)
	mediaHandler := handlers.NewMediaHandler(images)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.Telemetry.ServiceName),
		middleware.RequestID(),
		middleware.LoggingMiddleware(),
		observability.HTTPMetricsMiddleware(),
	)

	ipLimiter := middleware.NewIPRateLimiter(ctx, rate.Limit(20), 40)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", middleware.RateLimitMiddleware(ipLimiter), wsHandler.Handle)
	handlers.RegisterDebugRoutes(router, audit, registry, cfg.Server.DebugRoutes)

	api := router.Group("/api/v1", middleware.RateLimitMiddleware(ipLimiter), middleware.AuthMiddleware(verifier, resolver))

	api.POST("/messages/send/:recipientId", middleware.SendRateLimit(sendCounter, cfg.Messaging.SendsPerMinute), messageHandler.SendMessage)
	api.GET("/messages/conversations", messageHandler.ListConversations)
	api.PUT("/messages/conversations/:conversationId/seen", messageHandler.MarkSeen)
	api.GET("/messages/:otherUserId", messageHandler.GetMessages)

	api.GET("/notifications", notificationHandler.List)
	api.GET("/notifications/unread-count", notificationHandler.UnreadCount)
	api.PUT("/notifications/read", notificationHandler.MarkRead)
	api.PUT("/notifications/read-all", notificationHandler.MarkAllRead)
	api.PUT("/notifications/:id/read", notificationHandler.MarkOneRead)
	api.DELETE("/notifications/:id", notificationHandler.Delete)

	api.GET("/users/online", presenceHandler.OnlineUsers)
	api.GET("/media/:id", mediaHandler.ServeImage)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer, grpcHealth := grpcapi.NewGRPCServer(notificationService)
	grpcListener, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		logger.Fatal().Err(err).Str("port", cfg.Server.GRPCPort).Msg("failed to listen for grpc")
	}

	go func() {
		logger.Info().Str("port", cfg.Server.GRPCPort).Msg("grpc server listening")
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
			stop()
		}
	}()

	go func() {
		logger.Info().Str("port", cfg.Server.Port).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	purger := retention.NewPurger(messageRepo, images, cfg.Messaging.PurgeInterval, cfg.Messaging.PurgeBatch)
	go purger.Run(ctx)

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	grpcHealth.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	grpcServer.GracefulStop()

	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("outbox not fully drained")
	}
	if err := mongoClient.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("mongodb disconnect")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracing shutdown")
	}
}
