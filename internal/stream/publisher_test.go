package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/legalchat/internal/domain"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	mu      sync.Mutex
	actions []domain.AgentAction
}

func (f *fakeSource) Snapshot() []domain.AgentAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.AgentAction, len(f.actions))
	copy(out, f.actions)
	return out
}

func (f *fakeSource) add(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, domain.AgentAction{Action: kind})
}

func startPublisher(t *testing.T, src Source) (*Publisher, func()) {
	t.Helper()
	pub := NewPublisher(src, 10*time.Millisecond, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		pub.Run(ctx)
	}()
	return pub, func() {
		cancel()
		<-done
	}
}

func TestNoEmissionWhileEmpty(t *testing.T) {
	src := &fakeSource{}
	pub, stop := startPublisher(t, src)
	defer stop()

	sub := pub.Subscribe()
	defer sub.Close()

	select {
	case snap := <-sub.C():
		t.Fatalf("expected no emission for empty log, got %v", snap)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestEmitsFullSnapshotEachTick(t *testing.T) {
	src := &fakeSource{}
	src.add("analyze")
	pub, stop := startPublisher(t, src)
	defer stop()

	sub := pub.Subscribe()
	defer sub.Close()

	first := receive(t, sub)
	if len(first) != 1 {
		t.Fatalf("expected 1 action, got %d", len(first))
	}

	src.add("search")
	deadline := time.After(time.Second)
	for {
		select {
		case snap := <-sub.C():
			if len(snap) == 2 {
				if snap[0].Action != "analyze" || snap[1].Action != "search" {
					t.Fatalf("expected full ordered snapshot, got %+v", snap)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for extended snapshot")
		}
	}
}

func TestSlowSubscriberSeesLatestOnly(t *testing.T) {
	src := &fakeSource{}
	src.add("analyze")
	pub, stop := startPublisher(t, src)
	defer stop()

	sub := pub.Subscribe()
	defer sub.Close()

	src.add("search")
	src.add("respond")
	time.Sleep(50 * time.Millisecond)

	if got := len(sub.C()); got > 1 {
		t.Fatalf("expected at most one pending snapshot, got %d", got)
	}
	snap := receive(t, sub)
	if len(snap) != 3 {
		t.Fatalf("expected latest snapshot with 3 actions, got %d", len(snap))
	}
}

func TestCloseUnregisters(t *testing.T) {
	src := &fakeSource{}
	pub, stop := startPublisher(t, src)
	defer stop()

	sub := pub.Subscribe()
	if pub.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", pub.Subscribers())
	}
	sub.Close()
	sub.Close()
	if pub.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", pub.Subscribers())
	}
	if _, ok := <-sub.C(); ok {
		t.Fatal("expected closed channel after Close")
	}
}

func TestRunStopClosesSubscriptions(t *testing.T) {
	src := &fakeSource{}
	pub, stop := startPublisher(t, src)

	sub := pub.Subscribe()
	stop()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("expected channel to be closed on shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed on shutdown")
	}

	late := pub.Subscribe()
	if _, ok := <-late.C(); ok {
		t.Fatal("subscribing after shutdown must yield a closed subscription")
	}
}

func receive(t *testing.T, sub *Subscription) []domain.AgentAction {
	t.Helper()
	select {
	case snap, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}
