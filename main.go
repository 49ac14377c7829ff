package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"dm-service/internal/auth"
	"dm-service/internal/blobstore"
	"dm-service/internal/chat"
	"dm-service/internal/config"
	"dm-service/internal/db"
	grpcserver "dm-service/internal/grpc"
	"dm-service/internal/handlers"
	"dm-service/internal/middleware"
	"dm-service/internal/observability"
	"dm-service/internal/rabbitmq"
	"dm-service/internal/repositories"
	"dm-service/internal/repositories/memory"
	"dm-service/internal/telemetry"
	"dm-service/internal/ws"
)

const auditRoutingKey = "audit.dm-service"

type stores struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	visibility    repositories.VisibilityRepository
	presence      repositories.PresenceRepository
	users         repositories.UserRepository
	close         func() error
}

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogFormat).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment, logger)
	if err != nil {
		fatal(logger, "failed to setup tracing", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "failed to open storage", err)
	}
	defer st.close()

	revocations, closeRevocations := openRevocations(ctx, cfg, logger)
	defer closeRevocations()
	tokens := auth.NewAuthenticator(cfg.JWTSecret, cfg.TokenTTL, revocations)
	accounts := auth.NewAccounts(st.users, tokens, logger)

	blobs, err := blobstore.Open(cfg.BlobPath, cfg.PublicURL)
	if err != nil {
		fatal(logger, "failed to open blob store", err)
	}
	defer blobs.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	logger.Info("event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "noop_reason", rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	auditEmitter := telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.ServiceName, cfg.Environment, logger)

	hub := ws.NewHub(logger)
	svc := chat.NewService(chat.Deps{
		Conversations: st.conversations,
		Messages:      st.messages,
		Visibility:    st.visibility,
		Presence:      st.presence,
		Users:         st.users,
		Blobs:         blobs,
		Notifier:      hub,
		Events:        observability.DomainEvents{},
		Logger:        logger,
		PageSize:      cfg.PageSize,
		TypingTTL:     cfg.TypingTTL,
	})

	chatHandler := handlers.NewChatHandler(svc, auditEmitter)
	authHandler := handlers.NewAuthHandler(accounts)
	fileHandler := handlers.NewFileHandler(blobs)
	conversationWS := ws.NewConversationWebSocketHandler(hub, st.conversations, tokens)

	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(observability.RequestIDMiddleware())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/files/:folder/:key", fileHandler.Serve)

	router.POST("/auth/register", authHandler.Register)
	router.POST("/auth/login", authHandler.Login)
	router.POST("/auth/logout", authHandler.Logout)

	authed := router.Group("/", middleware.AuthMiddleware(tokens, svc, logger))
	authed.GET("/users/:user_id", chatHandler.Profile)

	authed.GET("/conversations", chatHandler.ListConversations)
	authed.POST("/conversations/direct", chatHandler.OpenDirect)
	authed.POST("/conversations/group", chatHandler.CreateGroup)
	authed.DELETE("/conversations/:conversation_id/me", chatHandler.HideConversation)
	authed.GET("/conversations/:conversation_id/messages", chatHandler.ListMessages)
	authed.POST("/conversations/:conversation_id/messages", chatHandler.PostMessage)
	authed.POST("/conversations/:conversation_id/typing", chatHandler.PingTyping)
	authed.GET("/conversations/:conversation_id/typing", chatHandler.ListTyping)

	authed.DELETE("/messages/:message_id", chatHandler.DeleteMessage)
	authed.POST("/messages/:message_id/hide", chatHandler.HideMessage)
	authed.DELETE("/messages/:message_id/hide", chatHandler.UnhideMessage)
	authed.POST("/messages/:message_id/reactions", chatHandler.ToggleReaction)

	router.GET("/ws/conversations/:conversation_id", conversationWS.Handle)

	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugRoutes)

	health := grpcserver.NewHealthServer(logger)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		fatal(logger, "failed to listen grpc", err)
	}
	grpcDone := make(chan struct{})
	go func() {
		defer close(grpcDone)
		if err := health.Serve(ctx, lis); err != nil {
			logger.Error("grpc server error", "error", err)
			stop()
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "addr", srv.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	health.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}

	select {
	case <-grpcDone:
	case <-shutdownCtx.Done():
		logger.Warn("grpc drain timed out")
	}
}

func newLogger(format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		m := memory.NewStore()
		return stores{
			conversations: m,
			messages:      m,
			visibility:    m,
			presence:      m,
			users:         m,
			close:         func() error { return nil },
		}, nil
	}

	database, err := db.Connect(ctx, cfg.DBDSN, logger)
	if err != nil {
		return stores{}, err
	}
	return stores{
		conversations: repositories.NewConversationRepo(database),
		messages:      repositories.NewMessageRepo(database),
		visibility:    repositories.NewVisibilityRepo(database),
		presence:      repositories.NewPresenceRepo(database),
		users:         repositories.NewUserRepo(database),
		close:         database.Close,
	}, nil
}

func openRevocations(ctx context.Context, cfg config.Config, logger *slog.Logger) (auth.RevocationStore, func()) {
	if cfg.RedisAddr == "" {
		return auth.NewMemoryRevocationStore(), func() {}
	}
	store, err := auth.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, revocations kept in memory", "error", err)
		return auth.NewMemoryRevocationStore(), func() {}
	}
	return store, func() { _ = store.Close() }
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
