package domain

import "time"

// Message roles persisted in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StoredMessage is a serialized chat message entry.
type StoredMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// TurnRecord is the audit row written after a successful turn.
type TurnRecord struct {
	TurnID      string
	Prompt      string
	Response    string
	WordCount   int
	ActionsJSON string
	CreatedAt   time.Time
}
