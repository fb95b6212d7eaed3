// Package stream pushes live snapshots of the agent action log to subscribers.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/legalchat/internal/domain"
	"github.com/ashureev/legalchat/internal/metrics"
)

// DefaultInterval is the publishing cadence.
const DefaultInterval = time.Second

// Source provides the action log being published.
type Source interface {
	Snapshot() []domain.AgentAction
}

// Subscription receives full snapshots of the action log. Only the latest
// undelivered snapshot is kept; a slow reader skips straight to current state.
type Subscription struct {
	id   uint64
	ch   chan []domain.AgentAction
	pub  *Publisher
	once sync.Once
}

// C returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan []domain.AgentAction {
	return s.ch
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.pub.remove(s)
}

// Publisher polls a Source at a fixed interval and fans non-empty snapshots
// out to every subscriber.
type Publisher struct {
	src      Source
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	subs    map[uint64]*Subscription
	nextID  uint64
	stopped bool
}

// NewPublisher creates a publisher. Run must be called to start publishing.
func NewPublisher(src Source, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		src:      src,
		interval: interval,
		metrics:  m,
		logger:   logger,
		subs:     make(map[uint64]*Subscription),
	}
}

// Subscribe registers a new subscriber. After Run has returned the
// subscription is delivered already closed.
func (p *Publisher) Subscribe() *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	sub := &Subscription{
		id:  p.nextID,
		ch:  make(chan []domain.AgentAction, 1),
		pub: p,
	}
	if p.stopped {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	p.subs[sub.id] = sub
	p.metrics.SetSubscribers(len(p.subs))
	return sub
}

// Subscribers returns the number of registered subscribers.
func (p *Publisher) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *Publisher) remove(sub *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.subs[sub.id]; ok {
		delete(p.subs, sub.id)
		p.metrics.SetSubscribers(len(p.subs))
	}
	sub.once.Do(func() { close(sub.ch) })
}

// Run publishes until ctx is cancelled, then closes every subscription.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Action stream publisher started", "interval", p.interval)
	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			p.logger.Info("Action stream publisher stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			p.publish()
		}
	}
}

func (p *Publisher) publish() {
	snap := p.src.Snapshot()
	if len(snap) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sub := range p.subs {
		deliverLatest(sub.ch, snap)
	}
}

// deliverLatest replaces any pending snapshot with snap. Only the publisher
// sends on ch, and it does so under p.mu, so the second send cannot block.
func deliverLatest(ch chan []domain.AgentAction, snap []domain.AgentAction) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

func (p *Publisher) shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = true
	for id, sub := range p.subs {
		delete(p.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
	p.metrics.SetSubscribers(0)
}
