// Package chat runs chat turns: extraction, budget enforcement, prompt
// composition and the reasoning agent call.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/legalchat/internal/agent"
	"github.com/ashureev/legalchat/internal/budget"
	"github.com/ashureev/legalchat/internal/domain"
	"github.com/ashureev/legalchat/internal/extract"
	"github.com/ashureev/legalchat/internal/metrics"
	"github.com/ashureev/legalchat/internal/prompt"
	"github.com/ashureev/legalchat/internal/tracker"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrAgentUnavailable is returned when no reasoning agent was initialized.
	ErrAgentUnavailable = errors.New("legal AI agent not available")
	// ErrEmptyMessage is returned when a turn has no user message.
	ErrEmptyMessage = errors.New("message is required")
)

// AgentError wraps a failed reasoning agent call.
type AgentError struct {
	Err error
}

func (e *AgentError) Error() string { return e.Err.Error() }

func (e *AgentError) Unwrap() error { return e.Err }

// Reasoner is the reasoning agent used by the orchestrator.
type Reasoner interface {
	Chat(ctx context.Context, prompt string, rec agent.Recorder) (string, error)
	ClearHistory(ctx context.Context) error
}

// TurnRecorder stores the audit record of finished turns.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, turn *domain.TurnRecord) error
}

const (
	logChannel            = "chat_http"
	turnRecordTimeout     = 5 * time.Second
	defaultConversationID = "default"
)

// Config wires the orchestrator's collaborators. Agent may be nil, in which
// case every turn fails with ErrAgentUnavailable.
type Config struct {
	Tracker         *tracker.Tracker
	Document        extract.Extractor
	Image           extract.Extractor
	Agent           Reasoner
	Turns           TurnRecorder
	Metrics         *metrics.Metrics
	ConversationLog *ConversationLogger
	ConversationID  string
	Logger          *slog.Logger
}

// Orchestrator handles chat turns and history resets.
type Orchestrator struct {
	tracker        *tracker.Tracker
	document       extract.Extractor
	image          extract.Extractor
	agent          Reasoner
	turns          TurnRecorder
	metrics        *metrics.Metrics
	convLog        *ConversationLogger
	conversationID string
	logger         *slog.Logger
}

// NewOrchestrator creates an orchestrator from cfg.
func NewOrchestrator(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tr := cfg.Tracker
	if tr == nil {
		tr = tracker.New()
	}
	doc := cfg.Document
	if doc == nil {
		doc = extract.Unavailable{Kind: domain.SourceDocument, Logger: logger}
	}
	img := cfg.Image
	if img == nil {
		img = extract.Unavailable{Kind: domain.SourceImage, Logger: logger}
	}
	convID := cfg.ConversationID
	if convID == "" {
		convID = defaultConversationID
	}
	return &Orchestrator{
		tracker:        tr,
		document:       doc,
		image:          img,
		agent:          cfg.Agent,
		turns:          cfg.Turns,
		metrics:        cfg.Metrics,
		convLog:        cfg.ConversationLog,
		conversationID: convID,
		logger:         logger,
	}
}

// AgentReady reports whether a reasoning agent is configured.
func (o *Orchestrator) AgentReady() bool {
	return o.agent != nil
}

// Tracker returns the action tracker whose current turn is streamed.
func (o *Orchestrator) Tracker() *tracker.Tracker {
	return o.tracker
}

// Turn runs one chat turn.
func (o *Orchestrator) Turn(ctx context.Context, req domain.ChatTurnRequest) (*domain.ChatTurnResponse, error) {
	start := time.Now()

	if o.agent == nil {
		o.metrics.ObserveTurn(metrics.OutcomeAgentUnavailable, time.Since(start))
		return nil, ErrAgentUnavailable
	}
	if strings.TrimSpace(req.Message) == "" {
		o.metrics.ObserveTurn(metrics.OutcomeError, time.Since(start))
		return nil, ErrEmptyMessage
	}

	turnID := uuid.NewString()
	turn := o.tracker.Begin(turnID)
	logger := o.logger.With("turn_id", turnID)

	documentText, imageText, err := o.extract(ctx, req, logger)
	if err != nil {
		o.fail(turnID, metrics.OutcomeError, start, err)
		return nil, fmt.Errorf("extract content: %w", err)
	}

	contextText := req.Context
	if contextText != nil && *contextText == "" {
		contextText = nil
	}

	total := budget.Total([]domain.ExtractedContent{
		{Source: domain.SourceDocument, Text: documentText},
		{Source: domain.SourceImage, Text: imageText},
	}, contextText)
	o.metrics.ObserveWords(total)
	if err := budget.Check(total); err != nil {
		logger.Info("Turn rejected by word budget", "total", total, "limit", budget.WordLimit)
		o.fail(turnID, metrics.OutcomeBudgetExceeded, start, err)
		return nil, err
	}

	composed := prompt.Compose(documentText, imageText, contextText, req.Message)
	o.convLog.Log(ConversationLogEvent{
		ConversationID: o.conversationID,
		TurnID:         turnID,
		Channel:        logChannel,
		Direction:      "inbound",
		EventType:      EventUserMessage,
		ContentRaw:     composed,
		WordCount:      total,
	})

	logger.Info("Sending request to reasoning agent", "prompt_len", len(composed), "word_count", total)
	answer, err := o.agent.Chat(ctx, composed, turn)
	if err != nil {
		logger.Error("Reasoning agent failed", "error", err)
		o.fail(turnID, metrics.OutcomeAgentFailed, start, err)
		return nil, &AgentError{Err: err}
	}

	actions := turn.Snapshot()
	if actions == nil {
		actions = []domain.AgentAction{}
	}

	resp := &domain.ChatTurnResponse{
		Response:     answer,
		DocumentText: documentText,
		ImageText:    imageText,
		Prompt:       composed,
		AgentActions: actions,
	}
	if total > 0 {
		resp.WordCount = &total
	}

	o.convLog.Log(ConversationLogEvent{
		ConversationID: o.conversationID,
		TurnID:         turnID,
		Channel:        logChannel,
		Direction:      "outbound",
		EventType:      EventAssistantResponse,
		ContentRaw:     answer,
		ActionCount:    len(actions),
	})
	o.recordTurn(ctx, turnID, resp, total, logger)
	o.metrics.ObserveActions(len(actions))
	o.metrics.ObserveTurn(metrics.OutcomeSuccess, time.Since(start))

	logger.Info("Turn completed", "actions", len(actions), "elapsed", time.Since(start))
	return resp, nil
}

// extract runs the document and image extractors concurrently. Only
// unrecoverable extractor errors are returned.
func (o *Orchestrator) extract(ctx context.Context, req domain.ChatTurnRequest, logger *slog.Logger) (*string, *string, error) {
	var documentText, imageText *string
	g, gctx := errgroup.WithContext(ctx)

	if req.Document != nil {
		doc := *req.Document
		g.Go(func() error {
			logger.Info("Processing document", "filename", doc.Filename)
			text, err := o.document.Extract(gctx, doc)
			if err != nil {
				return fmt.Errorf("document %q: %w", doc.Filename, err)
			}
			documentText = text
			return nil
		})
	}
	if req.Image != nil {
		img := *req.Image
		g.Go(func() error {
			logger.Info("Processing image", "filename", img.Filename)
			text, err := o.image.Extract(gctx, img)
			if err != nil {
				return fmt.Errorf("image %q: %w", img.Filename, err)
			}
			imageText = text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return documentText, imageText, nil
}

func (o *Orchestrator) fail(turnID, outcome string, start time.Time, err error) {
	o.metrics.ObserveTurn(outcome, time.Since(start))
	o.convLog.Log(ConversationLogEvent{
		ConversationID: o.conversationID,
		TurnID:         turnID,
		Channel:        logChannel,
		Direction:      "outbound",
		EventType:      EventTurnFailed,
		Error:          err.Error(),
	})
}

// recordTurn stores the turn audit row. Failures are logged and ignored.
func (o *Orchestrator) recordTurn(ctx context.Context, turnID string, resp *domain.ChatTurnResponse, total int, logger *slog.Logger) {
	if o.turns == nil {
		return
	}
	actionsJSON, err := json.Marshal(resp.AgentActions)
	if err != nil {
		logger.Warn("Failed to encode turn actions", "error", err)
		actionsJSON = []byte("[]")
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), turnRecordTimeout)
	defer cancel()
	err = o.turns.RecordTurn(ctx, &domain.TurnRecord{
		TurnID:      turnID,
		Prompt:      resp.Prompt,
		Response:    resp.Response,
		WordCount:   total,
		ActionsJSON: string(actionsJSON),
	})
	if err != nil {
		logger.Warn("Failed to record turn", "error", err)
	}
}

// ResetHistory clears the reasoning agent's conversation history.
func (o *Orchestrator) ResetHistory(ctx context.Context) error {
	if o.agent == nil {
		return ErrAgentUnavailable
	}
	if err := o.agent.ClearHistory(ctx); err != nil {
		o.logger.Error("Error clearing conversation", "error", err)
		return err
	}
	o.convLog.Log(ConversationLogEvent{
		ConversationID: o.conversationID,
		Channel:        logChannel,
		Direction:      "inbound",
		EventType:      EventHistoryCleared,
	})
	return nil
}
