package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"realtime-service/internal/auth"
	"realtime-service/internal/chat"
	"realtime-service/internal/config"
	"realtime-service/internal/db"
	grpcserver "realtime-service/internal/grpc"
	"realtime-service/internal/handlers"
	"realtime-service/internal/logging"
	"realtime-service/internal/middleware"
	"realtime-service/internal/models"
	"realtime-service/internal/notifications"
	"realtime-service/internal/observability"
	"realtime-service/internal/presence"
	"realtime-service/internal/push"
	"realtime-service/internal/rabbitmq"
	"realtime-service/internal/repositories"
	"realtime-service/internal/sourceref"
	"realtime-service/internal/stories"
	"realtime-service/internal/telemetry"
	"realtime-service/internal/ws"
)

const auditRoutingKey = "audit.events"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	database, err := db.Connect(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	presenceRepo := repositories.NewPresenceRepo(database)
	notificationRepo := repositories.NewNotificationRepo(database)
	deviceTokenRepo := repositories.NewDeviceTokenRepo(database)
	batchRepo := repositories.NewBatchRepo(database)
	userDirectory := repositories.NewUserDirectoryRepo(database)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	auditEmitter := telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.ServiceName, cfg.Environment, logger)
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)))

	var presenceCache presence.Cache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, presence cache disabled", zap.Error(err))
		} else {
			presenceCache = presence.NewRedisCache(redisClient)
		}
	}
	tracker := presence.NewTracker(presenceRepo, presenceCache, logger)

	hub := ws.NewHub(logger)

	sources := sourceref.NewRegistry()
	sources.Register(models.SourceRoom, func(ctx context.Context, id string) (any, error) {
		return roomRepo.GetRoom(ctx, id)
	})
	for _, kind := range []models.SourceKind{models.SourcePost, models.SourceComment, models.SourceUser} {
		sources.Register(kind, sourceref.ReferenceOnly(kind))
	}

	dispatcher := notifications.NewDispatcher(notifications.Deps{
		Store:       notificationRepo,
		Tokens:      deviceTokenRepo,
		Users:       userDirectory,
		Sources:     sources,
		Hub:         hub,
		Push:        push.NewQueue(publisher),
		DedupWindow: cfg.DedupWindow,
		Logger:      logger,
	})
	chatService := chat.NewService(roomRepo, messageRepo, hub, dispatcher, tracker, logger)
	batchSender := notifications.NewBatchSender(batchRepo, userDirectory, dispatcher, logger)

	var storyStore stories.Store
	if cfg.MongoURI != "" {
		store, disconnect, err := stories.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.Warn("mongo unavailable, story cleanup disabled", zap.Error(err))
		} else {
			storyStore = store
			defer disconnect(context.Background())
		}
	}
	cleaner := notifications.NewCleaner(dispatcher, deviceTokenRepo, storyStore, notifications.CleanerConfig{
		NotificationRetentionDays: cfg.NotificationRetentionDays,
		DeviceTokenInactiveDays:   cfg.DeviceTokenInactiveDays,
		Interval:                  cfg.CleanupInterval,
	}, logger)
	go cleaner.Run(ctx)

	startPushWorker(ctx, cfg, deviceTokenRepo, logger)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	authMiddleware := middleware.AuthMiddleware(verifier)

	roomHandler := handlers.NewRoomHandler(chatService, logger)
	notificationHandler := handlers.NewNotificationHandler(dispatcher, logger)
	deviceHandler := handlers.NewDeviceHandler(deviceTokenRepo, logger)
	batchHandler := handlers.NewBatchHandler(batchSender, auditEmitter, logger)

	chatWS := chat.NewWebSocketHandler(chatService, hub, tracker, verifier, logger)
	notificationWS := notifications.NewWebSocketHandler(hub, dispatcher, tracker, verifier, logger)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/", authMiddleware)
	api.POST("/rooms", roomHandler.CreateGroupRoom)
	api.POST("/rooms/direct", roomHandler.StartDirect)
	api.POST("/rooms/:room_id/join", roomHandler.Join)
	api.POST("/rooms/:room_id/leave", roomHandler.Leave)
	api.GET("/rooms/:room_id/online", roomHandler.Online)

	api.GET("/notifications", notificationHandler.List)
	api.POST("/notifications/read", notificationHandler.MarkRead)
	api.GET("/notifications/settings", notificationHandler.GetSettings)
	api.PUT("/notifications/settings", notificationHandler.UpdateSettings)
	api.GET("/notifications/stats", notificationHandler.Stats)

	api.POST("/devices", deviceHandler.Register)
	api.DELETE("/devices/:token", deviceHandler.Revoke)

	api.POST("/batches", batchHandler.Create)
	api.POST("/batches/:batch_id/send", batchHandler.Send)

	handlers.RegisterDebugRoutes(api, auditEmitter, cleaner, cfg.DebugRoutes)

	router.GET("/ws/chat/:room_id", chatWS.Handle)
	router.GET("/ws/notifications", notificationWS.Handle)

	healthServer := grpcserver.NewHealthServer(cfg.ServiceName, logger)
	go healthServer.Watch(ctx, database.PingContext, 15*time.Second)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal("failed to listen for grpc", zap.Error(err))
	}
	go func() {
		if err := healthServer.Serve(grpcListener); err != nil {
			logger.Error("grpc server error", zap.Error(err))
		}
	}()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr), zap.String("grpc_port", cfg.GRPCPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	healthServer.Stop()
	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

// startPushWorker consumes queued push jobs when AMQP is configured. Without
// Firebase credentials jobs are only logged.
func startPushWorker(ctx context.Context, cfg *config.Config, tokens push.TokenStore, logger *zap.Logger) {
	if cfg.AMQPURL == "" {
		logger.Warn("push worker disabled", zap.String("reason", "empty amqp url"))
		return
	}

	var sender push.Sender = push.NewLogSender(logger)
	if cfg.FirebaseCredentials != "" {
		fcm, err := push.NewFCMSender(ctx, cfg.FirebaseCredentials)
		if err != nil {
			logger.Warn("firebase unavailable, logging push jobs", zap.Error(err))
		} else {
			sender = fcm
		}
	}

	consumer, err := rabbitmq.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.PushQueue, push.RoutingKey, 16, logger)
	if err != nil {
		logger.Warn("push worker disabled", zap.Error(err))
		return
	}
	worker := push.NewWorker(sender, tokens, logger)

	go func() {
		defer consumer.Close()
		if err := consumer.Run(ctx, worker.Handle); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("push consumer stopped", zap.Error(err))
		}
	}()
}
