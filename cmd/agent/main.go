// Standalone reasoning agent served over gRPC, for use with AGENT_BACKEND=grpc.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/legalchat/internal/agent"
	"github.com/ashureev/legalchat/internal/config"
	"github.com/ashureev/legalchat/internal/store"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
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

	// The agent process always runs the in-process model regardless of AGENT_BACKEND.
	cfg.Agent.Backend = config.BackendLLM
	if err := cfg.AgentCredentials(); err != nil {
		slog.Error("Cannot start agent", "error", err)
		os.Exit(1)
	}

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store.StartRetentionWorker(ctx, repo, cfg.History.TTL, store.DefaultRetentionInterval)

	legal := agent.NewLegalAgentFromConfig(cfg, repo, logger)
	srv := grpc.NewServer()
	agent.RegisterReasoningAgentServer(srv, agent.NewProcessorServer(legal, logger))

	lis, err := net.Listen("tcp", cfg.Agent.ListenAddr)
	if err != nil {
		slog.Error("Failed to listen", "addr", cfg.Agent.ListenAddr, "error", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("Reasoning agent listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			slog.Error("gRPC server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")
	srv.GracefulStop()
	slog.Info("Agent stopped successfully")
}
