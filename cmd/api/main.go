// Package main is the entry point for the chat gateway.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/deputeti-ai/chat-gateway/internal/app"
	"github.com/deputeti-ai/chat-gateway/internal/config"
	"github.com/deputeti-ai/chat-gateway/internal/handler"
	"github.com/deputeti-ai/chat-gateway/internal/middleware"
	"github.com/deputeti-ai/chat-gateway/internal/service"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
	"github.com/deputeti-ai/chat-gateway/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var (
		log *logger.Logger
		err error
	)
	if cfg.IsDevelopment() {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting chat gateway",
		zap.String("contract", cfg.BackendContract),
		zap.String("backend_url", cfg.BackendURL),
		zap.String("store", cfg.StoreDriver),
	)

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "deputeti-chat-gateway", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	stack, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize chat stack", zap.Error(err))
	}
	defer stack.Close()

	// Initialize services
	sessions := service.NewConversationSessions(stack.Sessions, log)
	defer sessions.Close()

	// Initialize handlers
	api := &handler.API{
		Health:   handler.NewHealthHandler(stack.NATS),
		Sessions: handler.NewSessionsHandler(stack.Sessions, sessions, log),
		Chat:     handler.NewChatHandler(stack.Client, stack.Sessions, service.NewGuard(), log),
		Stream:   handler.NewStreamHandler(sessions, handler.DefaultHeartbeat, log),
	}

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	apiMiddleware := []func(http.Handler) http.Handler{
		middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow),
	}
	if cfg.JWTSecret != "" {
		apiMiddleware = append([]func(http.Handler) http.Handler{middleware.Auth(cfg.JWTSecret)}, apiMiddleware...)
	} else {
		log.Warn("JWT_SECRET not set, API is unauthenticated")
	}
	api.Mount(r, apiMiddleware...)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
