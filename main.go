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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"opschat/internal/config"
	"opschat/internal/db"
	"opschat/internal/handlers"
	"opschat/internal/identity"
	"opschat/internal/middleware"
	"opschat/internal/observability"
	"opschat/internal/pipeline"
	"opschat/internal/rabbitmq"
	"opschat/internal/registry"
	"opschat/internal/repositories"
	"opschat/internal/telemetry"
	"opschat/internal/ws"
)

const serviceName = "opschat"

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(shutdownCtx); err != nil {
				log.Printf("tracer shutdown: %v", err)
			}
		}()
	}

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer database.Close()

	eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		log.Printf("event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer auditPublisher.Close()
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit.chat", serviceName, cfg.Environment)

	verifier := identity.NewJWTVerifier(cfg.JWTSecret)
	directory := identity.NewSQLDirectory(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	reg := registry.New()
	pipe := pipeline.NewService(chatRepo, messageRepo, directory, reg)
	chatHandler := handlers.NewChatHandler(chatRepo, messageRepo, directory, pipe, reg, audit)
	wsHandler := ws.NewHandler(reg, verifier, chatRepo)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", wsHandler.Handle)

	api := router.Group("/", middleware.Auth(verifier))
	{
		api.GET("/chats", chatHandler.ListChats)
		api.GET("/chats/:chat_id", chatHandler.GetChat)
		api.POST("/chats/direct", chatHandler.CreateDirectChat)
		api.POST("/chats/group", chatHandler.CreateGroupChat)
		api.GET("/chats/:chat_id/messages", chatHandler.ListMessages)
		api.POST("/chats/:chat_id/messages", chatHandler.PostMessage)
		api.POST("/chats/:chat_id/read", chatHandler.MarkRead)
		api.GET("/messages/:message_id/statuses", chatHandler.MessageStatuses)
		api.PATCH("/messages/:message_id", chatHandler.EditMessage)
		api.DELETE("/messages/:message_id", chatHandler.DeleteMessage)
	}

	handlers.RegisterDebugRoutes(router, reg, audit, cfg.DebugEndpoints)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("chat service listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	reg.CloseAll()
}
