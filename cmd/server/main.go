package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kiran-v/ripplechat/internal/api"
	"github.com/kiran-v/ripplechat/internal/auth"
	"github.com/kiran-v/ripplechat/internal/cache"
	"github.com/kiran-v/ripplechat/internal/config"
	"github.com/kiran-v/ripplechat/internal/db"
	"github.com/kiran-v/ripplechat/internal/middleware"
	"github.com/kiran-v/ripplechat/internal/observ"
	"github.com/kiran-v/ripplechat/internal/repository/postgres"
	"github.com/kiran-v/ripplechat/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// ---------------------------------------------------------------
	// Storage: Postgres is required, redis is a soft dependency. With
	// redis down the service still runs, history replay just reads the
	// database every time.
	// ---------------------------------------------------------------
	database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	var historyCache ws.HistoryCache
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis unavailable, history replay will read Postgres directly", zap.Error(err))
	} else {
		historyCache = cache.NewHistory(rdb, cfg.HistoryLimit)
		logger.Info("redis history cache enabled", zap.Int("window", cfg.HistoryLimit))
	}
	defer rdb.Close()

	pool := database.Pool()
	userRepo := postgres.NewUserStore(pool)
	chatRepo := postgres.NewChatStore(pool)
	messageRepo := postgres.NewMessageStore(pool)

	// ---------------------------------------------------------------
	// Real-time core
	// ---------------------------------------------------------------
	verifier := auth.NewVerifier(cfg.JWTSecret)
	registry := ws.NewRegistry(logger)
	broadcaster := ws.NewBroadcaster(registry, logger)
	pipeline := ws.NewPipeline(registry, messageRepo, historyCache, broadcaster, logger)
	history := ws.NewHistory(historyCache, messageRepo, cfg.HistoryLimit, logger)
	gateway := ws.NewGateway(registry, verifier, chatRepo, pipeline, history, logger)

	// ---------------------------------------------------------------
	// HTTP surface
	// ---------------------------------------------------------------
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	authHandler := api.NewAuthHandler(userRepo, cfg.JWTSecret, logger)
	chatHandler := api.NewChatHandler(chatRepo, logger)
	messageHandler := api.NewMessageHandler(messageRepo, chatRepo, logger)
	userHandler := api.NewUserHandler(userRepo, logger)

	// Public: health for load balancers, signup/login to obtain tokens,
	// and the websocket upgrade (it authenticates over the socket).
	engine.GET("/v1/health", func(c *gin.Context) {
		if err := database.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.POST("/v1/auth/signup", authHandler.Signup)
	engine.POST("/v1/auth/login", authHandler.Login)
	engine.GET("/v1/ws", gateway.Handle)

	v1 := engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware(verifier))
	v1.GET("/users/me", userHandler.GetMe)
	v1.POST("/chats", chatHandler.Create)
	v1.GET("/chats", chatHandler.List)
	v1.GET("/chats/:id", chatHandler.GetByID)
	v1.DELETE("/chats/:id", chatHandler.Delete)
	v1.GET("/chats/:id/messages", messageHandler.List)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	logger.Info("starting ripplechat",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	// Close live connections first so their pumps stop writing, then
	// drain the HTTP server.
	registry.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}
