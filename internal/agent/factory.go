package agent

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/legalchat/internal/config"
	openai "github.com/sashabaranov/go-openai"
)

const searchTimeout = 15 * time.Second

// NewOpenAIClient builds a client for the configured OpenAI-compatible API.
func NewOpenAIClient(cfg config.OpenAIConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// NewProcessorFromConfig builds the reasoning agent selected by AGENT_BACKEND.
// It returns the credentials error from cfg.AgentCredentials unchanged so the
// caller can keep serving with the agent unavailable.
func NewProcessorFromConfig(cfg *config.Config, history History, logger *slog.Logger) (Processor, error) {
	if err := cfg.AgentCredentials(); err != nil {
		return nil, err
	}

	switch cfg.Agent.Backend {
	case config.BackendGRPC:
		client, err := NewGrpcClient(cfg.Agent.Addr, logger)
		if err != nil {
			return nil, fmt.Errorf("connect remote agent: %w", err)
		}
		return client, nil
	default:
		return NewLegalAgentFromConfig(cfg, history, logger), nil
	}
}

// NewLegalAgentFromConfig builds the in-process agent from cfg.
func NewLegalAgentFromConfig(cfg *config.Config, history History, logger *slog.Logger) *LegalAgent {
	return NewLegalAgent(
		NewOpenAIClient(cfg.OpenAI),
		NewWebSearcher(cfg.Search.URL, cfg.Search.APIKey, searchTimeout),
		history,
		LegalAgentConfig{
			Model:          cfg.OpenAI.Model,
			MaxRounds:      cfg.Agent.MaxRounds,
			ConversationID: cfg.History.ConversationID,
			HistoryLimit:   cfg.History.Limit,
		},
		logger,
	)
}
