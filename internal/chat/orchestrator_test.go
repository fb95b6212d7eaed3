package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/legalchat/internal/agent"
	"github.com/ashureev/legalchat/internal/budget"
	"github.com/ashureev/legalchat/internal/domain"
	"github.com/ashureev/legalchat/internal/extract"
	"github.com/ashureev/legalchat/internal/metrics"
	"github.com/ashureev/legalchat/internal/tracker"
)

type fakeReasoner struct {
	mu       sync.Mutex
	prompts  []string
	response string
	err      error
	clearErr error
	cleared  int
	// onChat runs inside Chat before the response is returned.
	onChat func(prompt string, rec agent.Recorder)
}

func (r *fakeReasoner) Chat(_ context.Context, prompt string, rec agent.Recorder) (string, error) {
	r.mu.Lock()
	r.prompts = append(r.prompts, prompt)
	r.mu.Unlock()
	if r.onChat != nil {
		r.onChat(prompt, rec)
	}
	return r.response, r.err
}

func (r *fakeReasoner) ClearHistory(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
	return r.clearErr
}

func (r *fakeReasoner) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

type fakeExtractor struct {
	text *string
	err  error
}

func (e fakeExtractor) Extract(context.Context, domain.Upload) (*string, error) {
	return e.text, e.err
}

type fakeTurns struct {
	mu      sync.Mutex
	records []*domain.TurnRecord
}

func (f *fakeTurns) RecordTurn(_ context.Context, rec *domain.TurnRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func strPtr(s string) *string { return &s }

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func newTestOrchestrator(r Reasoner, doc, img extract.Extractor) *Orchestrator {
	return NewOrchestrator(Config{
		Document: doc,
		Image:    img,
		Agent:    r,
		Metrics:  metrics.New(),
	})
}

func TestTurnMessageOnly(t *testing.T) {
	t.Parallel()

	r := &fakeReasoner{
		response: "A contract is an agreement.",
		onChat: func(_ string, rec agent.Recorder) {
			rec.Append(domain.NewAgentAction("analyze", "Analyzing legal query"))
		},
	}
	o := newTestOrchestrator(r, nil, nil)

	resp, err := o.Turn(context.Background(), domain.ChatTurnRequest{Message: "What is a contract?"})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if resp.Prompt != "What is a contract?" {
		t.Errorf("Prompt = %q, want message unchanged", resp.Prompt)
	}
	if resp.WordCount != nil {
		t.Errorf("WordCount = %d, want absent", *resp.WordCount)
	}
	if resp.DocumentText != nil || resp.ImageText != nil {
		t.Errorf("unexpected extracted text: %+v", resp)
	}
	if resp.Response != "A contract is an agreement." {
		t.Errorf("Response = %q", resp.Response)
	}
	if len(resp.AgentActions) != 1 || resp.AgentActions[0].Action != "analyze" {
		t.Errorf("AgentActions = %+v", resp.AgentActions)
	}
}

func TestTurnMultimodalPrompt(t *testing.T) {
	t.Parallel()

	r := &fakeReasoner{response: "ok"}
	o := newTestOrchestrator(r,
		fakeExtractor{text: strPtr("Lease agreement terms")},
		fakeExtractor{text: strPtr("Eviction notice")},
	)

	resp, err := o.Turn(context.Background(), domain.ChatTurnRequest{
		Message:  "Am I being evicted legally?",
		Document: &domain.Upload{Filename: "lease.pdf"},
		Image:    &domain.Upload{Filename: "notice.png"},
		Context:  strPtr("Filed yesterday"),
	})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}

	want := "Document content:\nLease agreement terms\n\nImage content:\nEviction notice\n\n" +
		"Additional context:\nFiled yesterday\n\nUser question: Am I being evicted legally?"
	if resp.Prompt != want {
		t.Errorf("Prompt = %q, want %q", resp.Prompt, want)
	}
	if r.prompts[0] != want {
		t.Errorf("agent prompt = %q, want composed prompt", r.prompts[0])
	}
	if resp.WordCount == nil || *resp.WordCount != 7 {
		t.Errorf("WordCount = %v, want 7", resp.WordCount)
	}
	if resp.AgentActions == nil {
		t.Error("AgentActions = nil, want empty list")
	}
}

func TestTurnContextPresence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		context *string
		want    string
	}{
		{name: "absent", context: nil, want: "Is this valid?"},
		{name: "empty string", context: strPtr(""), want: "Is this valid?"},
		{
			name:    "whitespace only",
			context: strPtr("   "),
			want:    "Additional context:\n   \n\nUser question: Is this valid?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			o := newTestOrchestrator(&fakeReasoner{response: "ok"}, nil, nil)
			resp, err := o.Turn(context.Background(), domain.ChatTurnRequest{
				Message: "Is this valid?",
				Context: tt.context,
			})
			if err != nil {
				t.Fatalf("Turn() error = %v", err)
			}
			if resp.Prompt != tt.want {
				t.Errorf("Prompt = %q, want %q", resp.Prompt, tt.want)
			}
			if resp.WordCount != nil {
				t.Errorf("WordCount = %d, want absent", *resp.WordCount)
			}
		})
	}
}

func TestTurnBudgetBoundary(t *testing.T) {
	t.Parallel()

	r := &fakeReasoner{response: "ok"}
	o := newTestOrchestrator(r, nil, nil)

	resp, err := o.Turn(context.Background(), domain.ChatTurnRequest{Message: "Hi", Context: strPtr(words(500))})
	if err != nil {
		t.Fatalf("Turn(500 words) error = %v", err)
	}
	if *resp.WordCount != 500 {
		t.Fatalf("WordCount = %d, want 500", *resp.WordCount)
	}

	_, err = o.Turn(context.Background(), domain.ChatTurnRequest{Message: "Hi", Context: strPtr(words(501))})
	var exceeded *budget.ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("Turn(501 words) error = %v, want ExceededError", err)
	}
	if exceeded.Total != 501 || exceeded.Limit != 500 {
		t.Fatalf("ExceededError = %+v", exceeded)
	}
	if !strings.Contains(err.Error(), "501") || !strings.Contains(err.Error(), "500") {
		t.Fatalf("error text %q should mention 501 and 500", err.Error())
	}
	if r.calls() != 1 {
		t.Fatalf("agent calls = %d, want 1 (no call for over-budget turn)", r.calls())
	}
}

func TestTurnMessageWordsNotCounted(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(&fakeReasoner{}, nil, nil)
	resp, err := o.Turn(context.Background(), domain.ChatTurnRequest{Message: words(800)})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if resp.WordCount != nil {
		t.Fatalf("WordCount = %d, want absent", *resp.WordCount)
	}
}

func TestTurnAgentUnavailable(t *testing.T) {
	t.Parallel()

	o := NewOrchestrator(Config{})
	if o.AgentReady() {
		t.Fatal("AgentReady() = true with no agent")
	}
	if _, err := o.Turn(context.Background(), domain.ChatTurnRequest{Message: "Hi"}); !errors.Is(err, ErrAgentUnavailable) {
		t.Fatalf("Turn() error = %v, want ErrAgentUnavailable", err)
	}
	if err := o.ResetHistory(context.Background()); !errors.Is(err, ErrAgentUnavailable) {
		t.Fatalf("ResetHistory() error = %v, want ErrAgentUnavailable", err)
	}
}

func TestTurnEmptyMessage(t *testing.T) {
	t.Parallel()

	r := &fakeReasoner{}
	o := newTestOrchestrator(r, nil, nil)
	if _, err := o.Turn(context.Background(), domain.ChatTurnRequest{Message: "  "}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("Turn() error = %v, want ErrEmptyMessage", err)
	}
	if r.calls() != 0 {
		t.Fatal("agent called for empty message")
	}
}

func TestTurnAgentFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("model timeout")
	o := newTestOrchestrator(&fakeReasoner{err: cause}, nil, nil)

	_, err := o.Turn(context.Background(), domain.ChatTurnRequest{Message: "Hi"})
	var agentErr *AgentError
	if !errors.As(err, &agentErr) {
		t.Fatalf("Turn() error = %v, want AgentError", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("AgentError does not unwrap to cause: %v", err)
	}
	if err.Error() != "model timeout" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestTurnExtractionOutcomes(t *testing.T) {
	t.Parallel()

	t.Run("absent text is omitted", func(t *testing.T) {
		r := &fakeReasoner{}
		o := newTestOrchestrator(r, fakeExtractor{}, fakeExtractor{text: strPtr("Stop sign")})
		resp, err := o.Turn(context.Background(), domain.ChatTurnRequest{
			Message:  "q",
			Document: &domain.Upload{Filename: "broken.pdf"},
			Image:    &domain.Upload{Filename: "x.png"},
		})
		if err != nil {
			t.Fatalf("Turn() error = %v", err)
		}
		if resp.DocumentText != nil {
			t.Fatalf("DocumentText = %q, want absent", *resp.DocumentText)
		}
		if resp.Prompt != "Image content:\nStop sign\n\nUser question: q" {
			t.Fatalf("Prompt = %q", resp.Prompt)
		}
	})

	t.Run("unrecoverable error aborts", func(t *testing.T) {
		r := &fakeReasoner{}
		o := newTestOrchestrator(r, fakeExtractor{err: errors.New("disk gone")}, nil)
		_, err := o.Turn(context.Background(), domain.ChatTurnRequest{
			Message:  "q",
			Document: &domain.Upload{Filename: "a.pdf"},
		})
		if err == nil || !strings.Contains(err.Error(), "disk gone") {
			t.Fatalf("Turn() error = %v, want extraction failure", err)
		}
		if r.calls() != 0 {
			t.Fatal("agent called after extraction failure")
		}
	})

	t.Run("empty context is absent", func(t *testing.T) {
		o := newTestOrchestrator(&fakeReasoner{}, nil, nil)
		resp, err := o.Turn(context.Background(), domain.ChatTurnRequest{Message: "q", Context: strPtr("")})
		if err != nil {
			t.Fatalf("Turn() error = %v", err)
		}
		if resp.Prompt != "q" {
			t.Fatalf("Prompt = %q, want message only", resp.Prompt)
		}
	})
}

func TestTurnDoesNotSeePriorActions(t *testing.T) {
	t.Parallel()

	tr := tracker.New()
	n := 0
	r := &fakeReasoner{onChat: func(_ string, rec agent.Recorder) {
		n++
		rec.Append(domain.NewAgentAction("step", strings.Repeat("x", n)))
	}}
	o := NewOrchestrator(Config{Tracker: tr, Agent: r})

	if _, err := o.Turn(context.Background(), domain.ChatTurnRequest{Message: "first"}); err != nil {
		t.Fatalf("first Turn() error = %v", err)
	}
	resp, err := o.Turn(context.Background(), domain.ChatTurnRequest{Message: "second"})
	if err != nil {
		t.Fatalf("second Turn() error = %v", err)
	}
	if len(resp.AgentActions) != 1 || resp.AgentActions[0].Description != "xx" {
		t.Fatalf("AgentActions = %+v, want only the second turn's action", resp.AgentActions)
	}
	if got := tr.Snapshot(); len(got) != 1 || got[0].Description != "xx" {
		t.Fatalf("streamed snapshot = %+v, want second turn", got)
	}
}

func TestConcurrentTurnsAreIsolated(t *testing.T) {
	t.Parallel()

	var barrier sync.WaitGroup
	barrier.Add(2)
	r := &fakeReasoner{onChat: func(prompt string, rec agent.Recorder) {
		rec.Append(domain.NewAgentAction("before", prompt))
		barrier.Done()
		barrier.Wait()
		rec.Append(domain.NewAgentAction("after", prompt))
	}}
	o := newTestOrchestrator(r, nil, nil)

	var wg sync.WaitGroup
	results := make([]*domain.ChatTurnResponse, 2)
	errs := make([]error, 2)
	for i, msg := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = o.Turn(context.Background(), domain.ChatTurnRequest{Message: msg})
		}()
	}
	wg.Wait()

	for i, msg := range []string{"alpha", "beta"} {
		if errs[i] != nil {
			t.Fatalf("Turn(%s) error = %v", msg, errs[i])
		}
		actions := results[i].AgentActions
		if len(actions) != 2 {
			t.Fatalf("Turn(%s) actions = %+v, want 2", msg, actions)
		}
		for _, a := range actions {
			if a.Description != msg {
				t.Fatalf("Turn(%s) saw foreign action %+v", msg, a)
			}
		}
	}
}

func TestTurnRecordsAudit(t *testing.T) {
	t.Parallel()

	turns := &fakeTurns{}
	r := &fakeReasoner{response: "answer", onChat: func(_ string, rec agent.Recorder) {
		rec.Append(domain.NewAgentAction("respond", "done"))
	}}
	o := NewOrchestrator(Config{Agent: r, Turns: turns})

	if _, err := o.Turn(context.Background(), domain.ChatTurnRequest{Message: "q", Context: strPtr("two words")}); err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if len(turns.records) != 1 {
		t.Fatalf("records = %d, want 1", len(turns.records))
	}
	rec := turns.records[0]
	if rec.TurnID == "" || rec.Response != "answer" || rec.WordCount != 2 {
		t.Fatalf("record = %+v", rec)
	}
	if !strings.Contains(rec.ActionsJSON, `"action":"respond"`) {
		t.Fatalf("ActionsJSON = %s", rec.ActionsJSON)
	}
}

func TestResetHistory(t *testing.T) {
	t.Parallel()

	r := &fakeReasoner{}
	o := newTestOrchestrator(r, nil, nil)
	if err := o.ResetHistory(context.Background()); err != nil {
		t.Fatalf("ResetHistory() error = %v", err)
	}
	if r.cleared != 1 {
		t.Fatalf("cleared = %d, want 1", r.cleared)
	}

	failing := newTestOrchestrator(&fakeReasoner{clearErr: errors.New("db down")}, nil, nil)
	if err := failing.ResetHistory(context.Background()); err == nil || err.Error() != "db down" {
		t.Fatalf("ResetHistory() error = %v, want db down", err)
	}
}
