package agent

import (
	"context"
	"log/slog"

	"github.com/ashureev/legalchat/internal/tracker"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ProcessorServer serves a local Processor over the ReasoningAgent contract.
// Remote callers observe the actions of the most recent Chat through GetActions.
type ProcessorServer struct {
	processor Processor
	actions   *tracker.Tracker
	logger    *slog.Logger
}

var _ ReasoningAgentServer = (*ProcessorServer)(nil)

// NewProcessorServer wraps p for registration with RegisterReasoningAgentServer.
func NewProcessorServer(p Processor, logger *slog.Logger) *ProcessorServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessorServer{processor: p, actions: tracker.New(), logger: logger}
}

// Chat runs one reasoning call and records its actions as the current log.
func (s *ProcessorServer) Chat(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	turn := s.actions.Begin(uuid.NewString())
	resp, err := s.processor.Chat(ctx, in.GetValue(), turn)
	if err != nil {
		s.logger.Warn("remote chat failed", "turn_id", turn.ID(), "error", err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.String(resp), nil
}

// GetActions returns the current action log.
func (s *ProcessorServer) GetActions(_ context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	list, err := actionsToList(s.actions.Snapshot())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return list, nil
}

// ClearActions empties the current action log.
func (s *ProcessorServer) ClearActions(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.actions.Clear()
	return &emptypb.Empty{}, nil
}

// ClearHistory forwards to the wrapped processor.
func (s *ProcessorServer) ClearHistory(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.processor.ClearHistory(ctx); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &emptypb.Empty{}, nil
}

// Health reports that the processor is serving.
func (s *ProcessorServer) Health(_ context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	return wrapperspb.Bool(true), nil
}
