// Legal AI chat server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/legalchat/internal/agent"
	"github.com/ashureev/legalchat/internal/api"
	"github.com/ashureev/legalchat/internal/chat"
	"github.com/ashureev/legalchat/internal/config"
	"github.com/ashureev/legalchat/internal/domain"
	"github.com/ashureev/legalchat/internal/extract"
	"github.com/ashureev/legalchat/internal/metrics"
	"github.com/ashureev/legalchat/internal/middleware"
	"github.com/ashureev/legalchat/internal/store"
	"github.com/ashureev/legalchat/internal/stream"
	"github.com/ashureev/legalchat/internal/tracker"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "agent_backend", cfg.Agent.Backend)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize the reasoning agent. A missing credential or unreachable
	// agent leaves the server up with every turn answering 503.
	var reasoner chat.Reasoner
	processor, err := agent.NewProcessorFromConfig(cfg, repo, logger)
	if err != nil {
		slog.Error("Failed to initialize Legal AI Agent", "error", err)
	} else {
		svc, svcErr := agent.NewServiceWithProcessor(processor, cfg.Agent.Timeout, logger)
		if svcErr != nil {
			slog.Error("Failed to initialize agent service", "error", svcErr)
			processor.Close()
		} else {
			defer svc.Close()
			reasoner = svc
			slog.Info("Legal AI Agent initialized successfully", "backend", cfg.Agent.Backend)
		}
	}

	// Extractors.
	var imageExtractor extract.Extractor = extract.Unavailable{Kind: domain.SourceImage, Logger: logger}
	if cfg.VisionEnabled() {
		imageExtractor = extract.NewVisionExtractor(agent.NewOpenAIClient(cfg.OpenAI), cfg.OpenAI.VisionModel, logger)
	} else {
		slog.Info("Image text extraction disabled (OPENAI_API_KEY not set)")
	}

	conversationLogger, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() { _ = conversationLogger.Close() }()

	// Initialize services.
	m := metrics.New()
	actions := tracker.New()
	publisher := stream.NewPublisher(actions, cfg.Stream.Interval, m, logger)
	go publisher.Run(ctx)

	orchestrator := chat.NewOrchestrator(chat.Config{
		Tracker:         actions,
		Document:        extract.NewDocumentExtractor(logger),
		Image:           imageExtractor,
		Agent:           reasoner,
		Turns:           repo,
		Metrics:         m,
		ConversationLog: conversationLogger,
		ConversationID:  cfg.History.ConversationID,
		Logger:          logger,
	})

	store.StartRetentionWorker(ctx, repo, cfg.History.TTL, store.DefaultRetentionInterval)

	// Initialize handlers.
	chatHandler := api.NewChatHandler(orchestrator, cfg.MaxUploadBytes, logger)
	streamHandler := api.NewStreamHandler(publisher, cfg.Stream.KeepaliveInterval, cfg.AllowedOrigins, logger)
	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	chatHandler.RegisterRoutes(r, middleware.RateLimit(limiter))
	streamHandler.RegisterRoutes(r)
	r.Handle("/metrics", m.Handler())

	// Create server.
	// Note: action streams are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
