package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeout bounds a single reasoning call when none is configured.
const DefaultTimeout = 120 * time.Second

var errNoProcessor = errors.New("agent processor not configured")

// Service provides legal reasoning on top of a Processor backend.
type Service struct {
	processor Processor
	timeout   time.Duration
	logger    *slog.Logger
}

// NewServiceWithProcessor creates a new agent service with a custom processor.
func NewServiceWithProcessor(processor Processor, timeout time.Duration, logger *slog.Logger) (*Service, error) {
	if processor == nil {
		return nil, errNoProcessor
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		processor: processor,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Chat forwards a composed prompt to the processor under the service timeout.
func (s *Service) Chat(ctx context.Context, prompt string, rec Recorder) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.processor.Chat(ctx, prompt, recorderOrDiscard(rec))
	if err != nil {
		s.logger.Warn("agent chat failed", "error", err, "elapsed", time.Since(start))
		return "", fmt.Errorf("agent chat: %w", err)
	}
	s.logger.Debug("agent chat completed", "elapsed", time.Since(start), "response_len", len(resp))
	return resp, nil
}

// ClearHistory clears the processor's conversation memory.
func (s *Service) ClearHistory(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.processor.ClearHistory(ctx); err != nil {
		return fmt.Errorf("clear agent history: %w", err)
	}
	s.logger.Info("agent conversation history cleared")
	return nil
}

// Close releases resources.
func (s *Service) Close() {
	if s.processor != nil {
		s.processor.Close()
	}
}
