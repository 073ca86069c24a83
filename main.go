package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"dm-service/internal/auth"
	"dm-service/internal/chat"
	"dm-service/internal/config"
	"dm-service/internal/db"
	"dm-service/internal/handlers"
	"dm-service/internal/logging"
	"dm-service/internal/middleware"
	"dm-service/internal/observability"
	"dm-service/internal/rabbitmq"
	"dm-service/internal/repositories"
	"dm-service/internal/telemetry"
	"dm-service/internal/ws"
)

const serviceName = "dm-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		defer shutdownTracing(context.Background())
	}

	redis, err := db.Connect(cfg.RedisAddr, cfg.RedisPoolSize)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redis.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRouting, serviceName, cfg.Env)

	hub := ws.NewHub()
	var notifier chat.Notifier = hub
	if rabbitmq.PublisherMode(publisher) == "amqp" {
		relay, err := rabbitmq.NewRelay(cfg.AMQPURL, cfg.AMQPExchange, hub)
		if err != nil {
			logger.Warn("push relay unavailable, delivering locally", zap.Error(err))
		} else {
			defer relay.Close()
			go func() {
				if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("push relay stopped", zap.Error(err))
				}
			}()
			notifier = rabbitmq.NewBus(publisher)
		}
	}

	var opts []chat.Option
	if cfg.LikeBroadcast == config.LikeBroadcastFull {
		opts = append(opts, chat.WithFullLikeBroadcast())
	}
	service := chat.NewService(
		repositories.NewMessageRepo(redis),
		repositories.NewFriendRepo(redis),
		repositories.NewUserRepo(redis),
		notifier,
		opts...,
	)

	tokens := auth.NewManager(cfg.JWTSecret, 24*time.Hour)
	limiter := middleware.NewLimiterPool(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)
	go limiter.Run(time.Minute, ctx.Done())

	messageHandler := handlers.NewMessageHandler(service, audit)
	subscribeHandler := ws.NewSubscribeHandler(hub, service, tokens)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/metrics", observability.MetricsHandler())

	api := router.Group("/api", middleware.AuthMiddleware(tokens))
	api.POST("/message/send", middleware.RateLimitMiddleware(limiter), messageHandler.Send)
	api.PUT("/message/like", middleware.RateLimitMiddleware(limiter), messageHandler.Like)
	api.GET("/chats/:chat_id/messages", messageHandler.History)

	router.GET("/ws", subscribeHandler.Handle)

	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("like_broadcast", cfg.LikeBroadcast))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
