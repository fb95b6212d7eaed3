package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/legalchat/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

// Action kinds recorded by LegalAgent.
const (
	ActionAnalyze       = "analyze"
	ActionSearch        = "search"
	ActionSearchResults = "search_results"
	ActionSearchFailed  = "search_failed"
	ActionRespond       = "respond"
)

const (
	defaultModel        = "gpt-4o-mini"
	defaultMaxRounds    = 6
	defaultHistoryLimit = 20
)

var (
	errEmptyCompletion = errors.New("model returned no choices")
	errRoundsExhausted = errors.New("model kept requesting tools past the round limit")
)

// ChatCompleter is the subset of the OpenAI client used by LegalAgent.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// History persists the agent's conversation between turns.
type History interface {
	AppendMessages(ctx context.Context, conversationID string, msgs ...domain.StoredMessage) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.StoredMessage, error)
	ClearMessages(ctx context.Context, conversationID string) (int64, error)
}

// LegalAgentConfig holds LegalAgent tuning.
type LegalAgentConfig struct {
	Model          string
	MaxRounds      int
	ConversationID string
	HistoryLimit   int
}

// LegalAgent answers legal questions with an OpenAI-compatible model that may
// call a web search tool.
type LegalAgent struct {
	client   ChatCompleter
	searcher Searcher
	history  History
	cfg      LegalAgentConfig
	logger   *slog.Logger
}

// NewLegalAgent creates an in-process agent. history may be nil, in which case
// no conversation is remembered between turns.
func NewLegalAgent(client ChatCompleter, searcher Searcher, history History, cfg LegalAgentConfig, logger *slog.Logger) *LegalAgent {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	if cfg.ConversationID == "" {
		cfg.ConversationID = "default"
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	return &LegalAgent{
		client:   client,
		searcher: searcher,
		history:  history,
		cfg:      cfg,
		logger:   logger,
	}
}

// Chat answers prompt. Each tool round-trip is recorded on rec.
func (a *LegalAgent) Chat(ctx context.Context, prompt string, rec Recorder) (string, error) {
	rec = recorderOrDiscard(rec)
	rec.Append(domain.NewAgentAction(ActionAnalyze, "Analyzing legal query"))

	messages, err := a.buildMessages(ctx, prompt)
	if err != nil {
		return "", err
	}

	var tools []openai.Tool
	if a.searcher != nil {
		tools = []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        searchToolName,
				Description: searchToolDescription,
				Parameters:  searchToolParameters,
			},
		}}
	}

	var answer string
	for round := 0; ; round++ {
		if round == a.cfg.MaxRounds {
			return "", errRoundsExhausted
		}

		req := openai.ChatCompletionRequest{
			Model:    a.cfg.Model,
			Messages: messages,
		}
		// The final round withholds tools so the model has to answer.
		if round < a.cfg.MaxRounds-1 {
			req.Tools = tools
		}

		resp, err := a.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", fmt.Errorf("chat completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errEmptyCompletion
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			answer = strings.TrimSpace(msg.Content)
			break
		}
		if req.Tools == nil {
			continue
		}

		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    a.runTool(ctx, call, rec),
			})
		}
	}

	rec.Append(domain.NewAgentAction(ActionRespond, "Generated response"))
	a.remember(ctx, prompt, answer)
	return answer, nil
}

func (a *LegalAgent) buildMessages(ctx context.Context, prompt string) ([]openai.ChatCompletionMessage, error) {
	messages := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: legalSystemPrompt,
	}}

	if a.history != nil {
		past, err := a.history.ListMessages(ctx, a.cfg.ConversationID, a.cfg.HistoryLimit)
		if err != nil {
			return nil, fmt.Errorf("load conversation history: %w", err)
		}
		for _, m := range past {
			role := openai.ChatMessageRoleUser
			if m.Role == domain.RoleAssistant {
				role = openai.ChatMessageRoleAssistant
			}
			messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
		}
	}

	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	}), nil
}

type searchArgs struct {
	Query string `json:"query"`
}

// runTool executes one tool call and returns the content handed back to the model.
// Tool failures are reported to the model rather than aborting the turn.
func (a *LegalAgent) runTool(ctx context.Context, call openai.ToolCall, rec Recorder) string {
	if call.Function.Name != searchToolName || a.searcher == nil {
		a.logger.Warn("model requested unknown tool", "tool", call.Function.Name)
		return fmt.Sprintf("Unknown tool %q", call.Function.Name)
	}

	var args searchArgs
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		rec.Append(domain.NewAgentAction(ActionSearchFailed, "Invalid search arguments"))
		return fmt.Sprintf("Invalid arguments: %v", err)
	}

	rec.Append(domain.NewAgentAction(ActionSearch, "Searching for: "+args.Query))
	results, err := a.searcher.Search(ctx, args.Query)
	if err != nil {
		a.logger.Warn("web search failed", "query", args.Query, "error", err)
		rec.Append(domain.NewAgentAction(ActionSearchFailed, "Search failed: "+err.Error()))
		return "Search failed: " + err.Error()
	}

	rec.Append(domain.NewAgentAction(ActionSearchResults, fmt.Sprintf("Found %d results", len(results))))
	return formatResults(results)
}

func (a *LegalAgent) remember(ctx context.Context, prompt, answer string) {
	if a.history == nil {
		return
	}
	err := a.history.AppendMessages(ctx, a.cfg.ConversationID,
		domain.StoredMessage{Role: domain.RoleUser, Content: prompt},
		domain.StoredMessage{Role: domain.RoleAssistant, Content: answer},
	)
	if err != nil {
		a.logger.Warn("failed to persist conversation history", "error", err)
	}
}

// ClearHistory deletes the stored conversation.
func (a *LegalAgent) ClearHistory(ctx context.Context) error {
	if a.history == nil {
		return nil
	}
	n, err := a.history.ClearMessages(ctx, a.cfg.ConversationID)
	if err != nil {
		return fmt.Errorf("clear conversation %s: %w", a.cfg.ConversationID, err)
	}
	a.logger.Info("conversation history cleared", "conversation_id", a.cfg.ConversationID, "messages", n)
	return nil
}

// Close releases resources. The history store is owned by the caller.
func (a *LegalAgent) Close() {}
