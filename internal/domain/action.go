// Package domain contains core domain types shared across the chat service.
package domain

import "time"

// AgentAction is a discrete step the reasoning agent reports having taken
// while producing a response. The service stores and relays actions without
// interpreting them.
type AgentAction struct {
	Action      string `json:"action"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
}

// NewAgentAction stamps an action with the current UTC time in ISO-8601 form.
func NewAgentAction(kind, description string) AgentAction {
	return AgentAction{
		Action:      kind,
		Description: description,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
	}
}
