package photopipe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker"
)

// Subscription names on the fan-out topic.
const (
	subWorkQueue    = "work-queue"
	subConfirmation = "confirmation-mailer"
	subMetadata     = "metadata-updater"
)

// Pipeline wires the workers to a broker, a record store, an object store
// and a mailer. Every dependency is injected; nothing here talks to a
// managed service directly.
//
// When the topic also implements broker.Topic, the confirmation and
// metadata subscriptions are registered in-process. With a managed topic
// that only publishes, those workers instead consume the subscription
// queues set via WithConfirmationQueue / WithMetadataQueue.
type Pipeline struct {
	topic     broker.Publisher
	work      broker.Queue
	dead      broker.Queue
	confQueue broker.Queue
	metaQueue broker.Queue
	records   RecordStore
	objects   ObjectStore
	mailer    Mailer
	logger    *slog.Logger

	recipient  string
	sender     string
	mode       RejectionMode
	confFilter broker.FilterFunc
	workBatch  int
	deadBatch  int
	poll       time.Duration

	router       *Router
	validator    *Validator
	rejection    *RejectionNotifier
	confirmation *ConfirmationNotifier
	metadata     *MetadataUpdater
}

// Option represents a functional option for configuring the pipeline.
type Option func(*Pipeline)

// WithTopic sets the fan-out topic.
func WithTopic(t broker.Publisher) Option {
	return func(p *Pipeline) { p.topic = t }
}

// WithConfirmationQueue sets a managed subscription queue for the
// confirmation notifier. Only needed when the topic cannot register
// in-process subscriptions.
func WithConfirmationQueue(q broker.Queue) Option {
	return func(p *Pipeline) { p.confQueue = q }
}

// WithMetadataQueue sets a managed subscription queue for the metadata
// updater.
func WithMetadataQueue(q broker.Queue) Option {
	return func(p *Pipeline) { p.metaQueue = q }
}

// WithWorkQueue sets the validation work queue.
func WithWorkQueue(q broker.Queue) Option {
	return func(p *Pipeline) { p.work = q }
}

// WithDeadLetterQueue sets the dead-letter queue drained by the rejection
// notifier.
func WithDeadLetterQueue(q broker.Queue) Option {
	return func(p *Pipeline) { p.dead = q }
}

// WithRecordStore sets the image metadata table.
func WithRecordStore(s RecordStore) Option {
	return func(p *Pipeline) { p.records = s }
}

// WithObjectStore sets the object storage read by the validation worker.
func WithObjectStore(s ObjectStore) Option {
	return func(p *Pipeline) { p.objects = s }
}

// WithMailer sets the notification mailer.
func WithMailer(m Mailer) Option {
	return func(p *Pipeline) { p.mailer = m }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithNotificationAddresses sets the fixed recipient and the sender
// identity rendered into notification bodies.
func WithNotificationAddresses(recipient, sender string) Option {
	return func(p *Pipeline) {
		p.recipient = recipient
		p.sender = sender
	}
}

// WithRejectionMode selects the invalid-file disposal strategy.
func WithRejectionMode(mode RejectionMode) Option {
	return func(p *Pipeline) { p.mode = mode }
}

// WithConfirmationFilter restricts the confirmation subscription, e.g. to
// an object-key prefix. Default is unfiltered.
func WithConfirmationFilter(f broker.FilterFunc) Option {
	return func(p *Pipeline) { p.confFilter = f }
}

// WithBatchSizes sets the per-receive batch sizes for the work and
// dead-letter loops.
func WithBatchSizes(work, dead int) Option {
	return func(p *Pipeline) {
		p.workBatch = work
		p.deadBatch = dead
	}
}

// WithPollInterval sets the idle sleep between empty receives.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.poll = d }
}

// New creates a pipeline, validates its dependencies, and registers the
// fan-out subscriptions: work queue (unfiltered), confirmation notifier,
// and metadata updater (attribute allow-list).
func New(options ...Option) (*Pipeline, error) {
	p := &Pipeline{
		mode:      RejectPublish,
		workBatch: 1,
		deadBatch: 5,
		poll:      time.Second,
	}
	for _, option := range options {
		option(p)
	}

	if p.topic == nil {
		return nil, fmt.Errorf("topic is required")
	}
	if p.work == nil {
		return nil, fmt.Errorf("work queue is required")
	}
	if p.dead == nil {
		return nil, fmt.Errorf("dead-letter queue is required")
	}
	if p.records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if p.mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if p.recipient == "" {
		return nil, fmt.Errorf("notification recipient is required")
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	var err error
	if p.router, err = NewRouter(p.topic, p.logger); err != nil {
		return nil, err
	}
	if p.validator, err = NewValidator(p.records, p.objects, p.dead, p.mode, p.logger); err != nil {
		return nil, err
	}
	if p.rejection, err = NewRejectionNotifier(p.mailer, p.recipient, p.sender, p.logger); err != nil {
		return nil, err
	}
	if p.confirmation, err = NewConfirmationNotifier(p.mailer, p.recipient, p.sender, p.logger); err != nil {
		return nil, err
	}
	if p.metadata, err = NewMetadataUpdater(p.records, p.logger); err != nil {
		return nil, err
	}

	if err := p.subscribe(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) subscribe() error {
	topic, ok := p.topic.(broker.Topic)
	if !ok {
		// Managed topic: subscriptions live in the broker, delivered via
		// the per-worker queues.
		return nil
	}
	forward := func(ctx context.Context, d broker.Delivery) error {
		return p.work.Send(ctx, d.Message)
	}
	if err := topic.SubscribeWithFilter(subWorkQueue, nil, forward); err != nil {
		return err
	}
	if err := topic.SubscribeWithFilter(subConfirmation, p.confFilter, p.confirmation.Handle); err != nil {
		return err
	}
	return topic.SubscribeWithFilter(subMetadata, p.metadata.Filter(), p.metadata.Handle)
}

// Router returns the upload event router.
func (p *Pipeline) Router() *Router { return p.router }

// Validator returns the validation worker.
func (p *Pipeline) Validator() *Validator { return p.validator }

// RejectionNotifier returns the dead-letter notifier.
func (p *Pipeline) RejectionNotifier() *RejectionNotifier { return p.rejection }

// ConfirmationNotifier returns the fan-out confirmation notifier.
func (p *Pipeline) ConfirmationNotifier() *ConfirmationNotifier { return p.confirmation }

// MetadataUpdater returns the metadata update worker.
func (p *Pipeline) MetadataUpdater() *MetadataUpdater { return p.metadata }

// QueueDepths returns the pipeline's queues that can report their depth,
// keyed by role. Used by the ops endpoints.
func (p *Pipeline) QueueDepths() map[string]broker.DepthReporter {
	depths := make(map[string]broker.DepthReporter)
	add := func(name string, q broker.Queue) {
		if q == nil {
			return
		}
		if r, ok := q.(broker.DepthReporter); ok {
			depths[name] = r
		}
	}
	add("work", p.work)
	add("dead-letter", p.dead)
	add("confirmation", p.confQueue)
	add("metadata", p.metaQueue)
	return depths
}

// Run starts the queue consumer loops and blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	run := func(name string, q broker.Queue, batch int, h broker.Handler) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.consume(ctx, name, q, batch, h)
		}()
	}
	run("validator", p.work, p.workBatch, p.validator.Process)
	run("rejection-mailer", p.dead, p.deadBatch, p.rejection.Process)
	if p.confQueue != nil {
		run("confirmation-mailer", p.confQueue, p.deadBatch, p.confirmation.Handle)
	}
	if p.metaQueue != nil {
		run("metadata-updater", p.metaQueue, p.deadBatch, p.metadata.Handle)
	}
	wg.Wait()
	return ctx.Err()
}

// consume is the shared receive loop. Items are handled and acknowledged
// independently: one item's failure nacks only that item.
func (p *Pipeline) consume(ctx context.Context, name string, q broker.Queue, batch int, h broker.Handler) {
	for ctx.Err() == nil {
		ds, err := q.Receive(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("receive failed", "worker", name, "err", err)
			p.sleep(ctx)
			continue
		}
		if len(ds) == 0 {
			p.sleep(ctx)
			continue
		}
		for _, d := range ds {
			if err := h(ctx, d); err != nil {
				p.logger.Error("work item failed",
					"worker", name, "message_id", d.ID, "attempts", d.Attempts, "err", err)
				if nerr := q.Nack(ctx, d.Receipt); nerr != nil {
					p.logger.Error("nack failed", "worker", name, "message_id", d.ID, "err", nerr)
				}
				continue
			}
			if aerr := q.Ack(ctx, d.Receipt); aerr != nil {
				p.logger.Error("ack failed", "worker", name, "message_id", d.ID, "err", aerr)
			}
		}
	}
}

func (p *Pipeline) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.poll):
	}
}
