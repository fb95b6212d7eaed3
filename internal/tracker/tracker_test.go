package tracker

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ashureev/legalchat/internal/domain"
)

func TestBeginStartsEmptyLog(t *testing.T) {
	t.Parallel()

	tr := New()
	first := tr.Begin("turn-1")
	first.Append(domain.NewAgentAction("search", "looking up statutes"))
	if got := len(tr.Snapshot()); got != 1 {
		t.Fatalf("expected 1 action, got %d", got)
	}

	second := tr.Begin("turn-2")
	if got := len(tr.Snapshot()); got != 0 {
		t.Fatalf("expected empty log after Begin, got %d actions", got)
	}
	if second.Len() != 0 {
		t.Fatalf("new turn must start empty")
	}
	if first.Len() != 1 {
		t.Fatalf("earlier turn must keep its own actions, got %d", first.Len())
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	tr := New()
	turn := tr.Begin("turn-1")
	turn.Append(domain.AgentAction{Action: "a", Description: "first"})

	snap := turn.Snapshot()
	snap[0].Description = "mutated"
	turn.Append(domain.AgentAction{Action: "b", Description: "second"})

	again := turn.Snapshot()
	if again[0].Description != "first" {
		t.Fatalf("snapshot mutation leaked into log: %+v", again[0])
	}
	if len(snap) != 1 || len(again) != 2 {
		t.Fatalf("expected prefix-extended snapshots, got %d then %d", len(snap), len(again))
	}
}

func TestClearEmptiesCurrentView(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.Begin("turn-1").Append(domain.AgentAction{Action: "a"})
	tr.Clear()
	if got := tr.Snapshot(); len(got) != 0 {
		t.Fatalf("expected empty snapshot after Clear, got %v", got)
	}
}

func TestConcurrentAppendAndSnapshot(t *testing.T) {
	t.Parallel()

	tr := New()
	turn := tr.Begin("turn-1")

	const writers, perWriter = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				turn.Append(domain.AgentAction{Action: "step", Description: fmt.Sprintf("%d-%d", w, i)})
			}
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		prev := 0
		for i := 0; i < 200; i++ {
			n := len(tr.Snapshot())
			if n < prev {
				t.Errorf("snapshot shrank from %d to %d within a turn", prev, n)
				return
			}
			prev = n
		}
	}()

	wg.Wait()
	if got := turn.Len(); got != writers*perWriter {
		t.Fatalf("expected %d actions, got %d", writers*perWriter, got)
	}
}
