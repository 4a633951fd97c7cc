// Package memory provides in-process implementations of the broker
// contracts. They stand in for the managed topic/queue services in tests
// and local runs, including redrive accounting.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker"
)

// Topic is an in-memory fan-out channel. Publish delivers synchronously to
// every subscription whose filter accepts the message; a subscription
// error is logged and does not affect sibling subscriptions or the
// publisher.
type Topic struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
}

type subscription struct {
	name    string
	filter  broker.FilterFunc
	handler broker.Handler
}

// NewTopic creates an in-memory topic. logger may be nil.
func NewTopic(logger *slog.Logger) *Topic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Topic{logger: logger}
}

func (t *Topic) SubscribeWithFilter(name string, filter broker.FilterFunc, h broker.Handler) error {
	if name == "" {
		return fmt.Errorf("subscription name is required")
	}
	if h == nil {
		return fmt.Errorf("subscription %q: handler is required", name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.subs {
		if s.name == name {
			return fmt.Errorf("subscription %q already exists", name)
		}
	}
	t.subs = append(t.subs, subscription{name: name, filter: filter, handler: h})
	return nil
}

func (t *Topic) Publish(ctx context.Context, m broker.Message) error {
	t.mu.RLock()
	subs := append([]subscription(nil), t.subs...)
	t.mu.RUnlock()

	for _, s := range subs {
		if s.filter != nil && !s.filter(m) {
			continue
		}
		d := broker.Delivery{Message: m, Receipt: uuid.New().String(), Attempts: 1}
		if err := s.handler(ctx, d); err != nil {
			t.logger.Error("subscription handler failed",
				"subscription", s.name, "message_id", m.ID, "err", err)
		}
	}
	return nil
}

type queueItem struct {
	msg       broker.Message
	attempts  int
	notBefore time.Time
}

// Queue is an in-memory work queue with per-message delivery-attempt
// accounting, a visibility window for in-flight messages, and optional
// redrive to a dead-letter queue.
type Queue struct {
	mu         sync.Mutex
	pending    []*queueItem
	inflight   map[string]*queueItem
	visibility time.Duration
	policy     *broker.RedrivePolicy
}

// NewQueue creates an in-memory queue. A zero visibility defaults to 30s.
func NewQueue(visibility time.Duration) *Queue {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &Queue{
		inflight:   make(map[string]*queueItem),
		visibility: visibility,
	}
}

// WithRedrive attaches a redrive policy and returns the queue.
func (q *Queue) WithRedrive(policy broker.RedrivePolicy) *Queue {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.policy = &policy
	return q
}

func (q *Queue) Send(ctx context.Context, m broker.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, &queueItem{msg: m})
	return nil
}

func (q *Queue) Receive(ctx context.Context, max int) ([]broker.Delivery, error) {
	if max <= 0 {
		max = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.reclaimExpiredLocked(ctx)

	now := time.Now()
	var out []broker.Delivery
	var rest []*queueItem
	for _, it := range q.pending {
		if len(out) >= max || now.Before(it.notBefore) {
			rest = append(rest, it)
			continue
		}
		it.attempts++
		it.notBefore = now.Add(q.visibility)
		receipt := uuid.New().String()
		q.inflight[receipt] = it
		out = append(out, broker.Delivery{Message: it.msg, Receipt: receipt, Attempts: it.attempts})
	}
	q.pending = rest
	return out, nil
}

func (q *Queue) Ack(ctx context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[receipt]; !ok {
		return fmt.Errorf("unknown receipt %q", receipt)
	}
	delete(q.inflight, receipt)
	return nil
}

func (q *Queue) Nack(ctx context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.inflight[receipt]
	if !ok {
		return fmt.Errorf("unknown receipt %q", receipt)
	}
	delete(q.inflight, receipt)
	return q.requeueLocked(ctx, it)
}

// Depth reports pending messages (in-flight excluded).
func (q *Queue) Depth(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reclaimExpiredLocked(ctx)
	return len(q.pending), nil
}

// requeueLocked puts a failed delivery back on the queue, or moves it to
// the dead-letter queue when the attempt budget is exhausted.
func (q *Queue) requeueLocked(ctx context.Context, it *queueItem) error {
	if q.policy != nil && it.attempts >= q.policy.MaxAttempts {
		return q.policy.DeadLetter.Send(ctx, it.msg)
	}
	it.notBefore = time.Time{}
	q.pending = append(q.pending, it)
	return nil
}

// reclaimExpiredLocked returns in-flight items whose visibility window has
// lapsed; expiry counts against the redrive budget like a nack.
func (q *Queue) reclaimExpiredLocked(ctx context.Context) {
	now := time.Now()
	for receipt, it := range q.inflight {
		if now.Before(it.notBefore) {
			continue
		}
		delete(q.inflight, receipt)
		// Send on another memory queue cannot fail.
		_ = q.requeueLocked(ctx, it)
	}
}
