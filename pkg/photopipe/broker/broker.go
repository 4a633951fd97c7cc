package broker

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Well-known message attribute names used across the pipeline.
const (
	AttrMetadataType = "metadata_type"
	AttrEventType    = "event_type"
	AttrObjectKey    = "object_key"
)

// Message is the unit of transport between pipeline components. Body is an
// opaque JSON payload; Attributes travel out-of-band and are what
// subscription filters operate on.
type Message struct {
	ID         string            `json:"id"`
	Body       []byte            `json:"body"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewMessage creates a Message with a fresh ID.
func NewMessage(body []byte, attrs map[string]string) Message {
	return Message{
		ID:         uuid.New().String(),
		Body:       body,
		Attributes: attrs,
	}
}

// Delivery is one received queue message. Attempts is the delivery-attempt
// counter maintained by the queue, never by application code. Receipt
// identifies this delivery cycle for Ack/Nack.
type Delivery struct {
	Message
	Receipt  string
	Attempts int
}

// Handler processes one delivery. A non-nil error signals the broker to
// redeliver (subject to the queue's redrive policy).
type Handler func(ctx context.Context, d Delivery) error

// FilterFunc decides whether a subscription receives a message. A nil
// filter matches everything.
type FilterFunc func(m Message) bool

// Publisher is the write side of a fan-out topic.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
}

// Topic is a fan-out channel: every published message is delivered to each
// subscription whose filter accepts it.
type Topic interface {
	Publisher

	// SubscribeWithFilter registers a named subscription. filter may be nil
	// to receive every message.
	SubscribeWithFilter(name string, filter FilterFunc, h Handler) error
}

// Queue is a work queue with at-least-once delivery and an attempt counter
// per message.
type Queue interface {
	Send(ctx context.Context, m Message) error

	// Receive returns up to max deliveries. It may return fewer, including
	// none, without error.
	Receive(ctx context.Context, max int) ([]Delivery, error)

	// Ack removes the delivered message from the queue.
	Ack(ctx context.Context, receipt string) error

	// Nack returns the message to the queue for redelivery. When a redrive
	// policy is attached and the attempt budget is exhausted, the message
	// moves verbatim to the dead-letter queue instead.
	Nack(ctx context.Context, receipt string) error
}

// DepthReporter is implemented by queues that can report how many messages
// are waiting. Used by the ops endpoints.
type DepthReporter interface {
	Depth(ctx context.Context) (int, error)
}

// RedrivePolicy is the retry / dead-letter contract for a queue: after
// MaxAttempts failed delivery cycles the queue moves the message to
// DeadLetter. This is the sole retry mechanism in the pipeline; workers
// perform no application-level backoff.
type RedrivePolicy struct {
	MaxAttempts int
	DeadLetter  Queue
}

// AttributeAllowList returns a filter passing messages whose named
// attribute is one of the allowed values. Messages without the attribute
// are filtered out.
func AttributeAllowList(name string, allowed ...string) FilterFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, v := range allowed {
		set[v] = struct{}{}
	}
	return func(m Message) bool {
		v, ok := m.Attributes[name]
		if !ok {
			return false
		}
		_, ok = set[v]
		return ok
	}
}

// KeyPrefix returns a filter passing messages whose object-key attribute
// starts with the given prefix.
func KeyPrefix(prefix string) FilterFunc {
	return func(m Message) bool {
		return strings.HasPrefix(m.Attributes[AttrObjectKey], prefix)
	}
}
