package agent

import (
	"context"

	"github.com/ashureev/legalchat/internal/domain"
)

// Recorder receives the actions an agent performs while handling one turn.
type Recorder interface {
	Append(action domain.AgentAction)
}

// Processor defines the interface for reasoning agent backends.
// It is implemented by the in-process LegalAgent and the gRPC client.
type Processor interface {
	// Chat answers a composed prompt, recording intermediate actions on rec.
	Chat(ctx context.Context, prompt string, rec Recorder) (string, error)

	// ClearHistory forgets the agent's conversation memory.
	ClearHistory(ctx context.Context) error

	// Close releases resources
	Close()
}

// Ensure both backends implement Processor.
var (
	_ Processor = (*GrpcClient)(nil)
	_ Processor = (*LegalAgent)(nil)
)

type discardRecorder struct{}

func (discardRecorder) Append(domain.AgentAction) {}

func recorderOrDiscard(rec Recorder) Recorder {
	if rec == nil {
		return discardRecorder{}
	}
	return rec
}
