package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/legalchat/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errAgentUnhealthy           = errors.New("remote agent reported unhealthy")
)

// GrpcClient provides a gRPC client to a remote reasoning agent.
type GrpcClient struct {
	conn         *grpc.ClientConn
	addr         string
	pollInterval time.Duration
	logger       *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address            string
	ConnectTimeout     time.Duration
	KeepaliveTime      time.Duration
	KeepaliveTimeout   time.Duration
	ActionPollInterval time.Duration
}

// DefaultGrpcClientConfig returns default configuration.
func DefaultGrpcClientConfig() GrpcClientConfig {
	return GrpcClientConfig{
		Address:            "localhost:50051",
		ConnectTimeout:     5 * time.Second,
		KeepaliveTime:      2 * time.Minute,
		KeepaliveTimeout:   10 * time.Second,
		ActionPollInterval: 250 * time.Millisecond,
	}
}

// NewGrpcClient creates a new gRPC client to the agent at addr.
func NewGrpcClient(addr string, logger *slog.Logger) (*GrpcClient, error) {
	cfg := DefaultGrpcClientConfig()
	if addr != "" {
		cfg.Address = addr
	}
	return NewGrpcClientWithConfig(cfg, logger)
}

// NewGrpcClientWithConfig creates a client from cfg. Extra dial options are
// appended after the defaults.
func NewGrpcClientWithConfig(cfg GrpcClientConfig, logger *slog.Logger, opts ...grpc.DialOption) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultGrpcClientConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = defaults.KeepaliveTime
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = defaults.KeepaliveTimeout
	}
	if cfg.ActionPollInterval <= 0 {
		cfg.ActionPollInterval = defaults.ActionPollInterval
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agent at %s: %w", cfg.Address, err)
	}

	// Force a connection attempt during startup so we fail fast on bad agent endpoints.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("agent at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to reasoning agent", "address", cfg.Address)

	return &GrpcClient{
		conn:         conn,
		addr:         cfg.Address,
		pollInterval: cfg.ActionPollInterval,
		logger:       logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Health checks if the remote agent is healthy.
func (c *GrpcClient) Health(ctx context.Context) error {
	out := new(wrapperspb.BoolValue)
	if err := c.conn.Invoke(ctx, methodHealth, &emptypb.Empty{}, out); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if !out.GetValue() {
		return errAgentUnhealthy
	}
	return nil
}

// GetActions returns the remote agent's current action log.
func (c *GrpcClient) GetActions(ctx context.Context) ([]domain.AgentAction, error) {
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, methodGetActions, &emptypb.Empty{}, out); err != nil {
		return nil, fmt.Errorf("get actions failed: %w", err)
	}
	return listToActions(out), nil
}

// ClearHistory asks the remote agent to forget its conversation.
func (c *GrpcClient) ClearHistory(ctx context.Context) error {
	if err := c.conn.Invoke(ctx, methodClearHistory, &emptypb.Empty{}, &emptypb.Empty{}); err != nil {
		return fmt.Errorf("clear history failed: %w", err)
	}
	return nil
}

// Chat sends prompt to the remote agent. The remote action log is cleared
// first and mirrored into rec while the call runs.
func (c *GrpcClient) Chat(ctx context.Context, prompt string, rec Recorder) (string, error) {
	rec = recorderOrDiscard(rec)

	if err := c.conn.Invoke(ctx, methodClearActions, &emptypb.Empty{}, &emptypb.Empty{}); err != nil {
		return "", fmt.Errorf("clear remote actions failed: %w", err)
	}

	mirror := &actionMirror{rec: rec}
	pollCtx, stopPolling := context.WithCancel(ctx)
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		c.pollActions(pollCtx, mirror)
	}()

	out := new(wrapperspb.StringValue)
	err := c.conn.Invoke(ctx, methodChat, wrapperspb.String(prompt), out)

	stopPolling()
	<-polled

	if ctx.Err() == nil {
		c.syncActions(ctx, mirror)
	}

	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	return out.GetValue(), nil
}

func (c *GrpcClient) pollActions(ctx context.Context, mirror *actionMirror) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.syncActions(ctx, mirror)
		}
	}
}

func (c *GrpcClient) syncActions(ctx context.Context, mirror *actionMirror) {
	actions, err := c.GetActions(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Debug("action sync failed", "address", c.addr, "error", err)
		}
		return
	}
	mirror.apply(actions)
}

// actionMirror forwards each remote action to the recorder exactly once.
// It is only used from one goroutine at a time.
type actionMirror struct {
	rec  Recorder
	seen int
}

func (m *actionMirror) apply(remote []domain.AgentAction) {
	if len(remote) < m.seen {
		// Remote log was reset; everything in it is new.
		m.seen = 0
	}
	for _, a := range remote[m.seen:] {
		m.rec.Append(a)
	}
	m.seen = len(remote)
}
