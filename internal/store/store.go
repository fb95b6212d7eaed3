// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/legalchat/internal/domain"
)

// Repository persists conversation history and turn audit records.
type Repository interface {
	// AppendMessages stores messages at the end of a conversation.
	AppendMessages(ctx context.Context, conversationID string, msgs ...domain.StoredMessage) error

	// ListMessages returns up to limit most recent messages in chronological
	// order. A limit <= 0 returns the whole conversation.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.StoredMessage, error)

	// ClearMessages deletes a conversation's history.
	ClearMessages(ctx context.Context, conversationID string) (int64, error)

	// RecordTurn stores the audit record of a finished turn.
	RecordTurn(ctx context.Context, turn *domain.TurnRecord) error

	// PruneMessages deletes messages older than the given age.
	PruneMessages(ctx context.Context, olderThan time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
