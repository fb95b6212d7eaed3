// Package tracker records the actions a reasoning agent reports during a chat turn.
//
// Every turn gets its own append-only log. The most recently begun turn is the
// "current" one; its log is what live action feeds show.
package tracker

import (
	"slices"
	"sync"
	"time"

	"github.com/ashureev/legalchat/internal/domain"
)

// Turn is the action log of a single chat turn. It is safe for concurrent use.
type Turn struct {
	id        string
	startedAt time.Time

	mu      sync.RWMutex
	actions []domain.AgentAction
}

func newTurn(id string) *Turn {
	return &Turn{id: id, startedAt: time.Now()}
}

// ID returns the turn identifier.
func (t *Turn) ID() string {
	return t.id
}

// StartedAt returns when the turn began.
func (t *Turn) StartedAt() time.Time {
	return t.startedAt
}

// Append adds an action to the end of the log.
func (t *Turn) Append(action domain.AgentAction) {
	t.mu.Lock()
	t.actions = append(t.actions, action)
	t.mu.Unlock()
}

// Snapshot returns a copy of the log in append order.
func (t *Turn) Snapshot() []domain.AgentAction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.actions)
}

// Len returns the number of recorded actions.
func (t *Turn) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.actions)
}

// Tracker owns the current turn. The zero value is not usable; call New.
type Tracker struct {
	mu      sync.RWMutex
	current *Turn
}

// New returns a tracker with an empty current log.
func New() *Tracker {
	return &Tracker{current: newTurn("")}
}

// Begin starts a fresh, empty log for turnID and makes it current. Turns that
// began earlier keep their own logs but are no longer visible to Snapshot.
func (tr *Tracker) Begin(turnID string) *Turn {
	turn := newTurn(turnID)
	tr.mu.Lock()
	tr.current = turn
	tr.mu.Unlock()
	return turn
}

// Current returns the most recently begun turn.
func (tr *Tracker) Current() *Turn {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.current
}

// Snapshot returns the current turn's actions.
func (tr *Tracker) Snapshot() []domain.AgentAction {
	return tr.Current().Snapshot()
}

// Clear replaces the current view with an empty, anonymous log.
func (tr *Tracker) Clear() {
	tr.Begin("")
}
