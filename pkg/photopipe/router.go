package photopipe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker"
)

// Router receives raw object-store notifications and republishes each
// record on the fan-out topic as an UploadEvent. No business validation
// happens here; the router must never drop events.
type Router struct {
	topic  broker.Publisher
	logger *slog.Logger
}

// NewRouter creates a Router publishing to topic.
func NewRouter(topic broker.Publisher, logger *slog.Logger) (*Router, error) {
	if topic == nil {
		return nil, fmt.Errorf("topic is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{topic: topic, logger: logger}, nil
}

// Handle parses one raw notification and publishes one fan-out message per
// contained record, at-least-once. A publish failure is returned so the
// caller redelivers the notification.
func (r *Router) Handle(ctx context.Context, raw []byte) error {
	evs, err := DecodeUploadEvents(raw)
	if err != nil {
		return err
	}
	for _, ev := range evs {
		if err := r.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// Publish sends a single UploadEvent to the fan-out topic. The event type
// and decoded key ride along as message attributes for subscription
// filters.
func (r *Router) Publish(ctx context.Context, ev UploadEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding upload event: %w", err)
	}
	m := broker.NewMessage(body, map[string]string{
		broker.AttrEventType: string(ev.EventType),
		broker.AttrObjectKey: ev.Key,
	})
	if err := r.topic.Publish(ctx, m); err != nil {
		return fmt.Errorf("publishing upload event for %s: %w", ev.Key, err)
	}
	r.logger.Info("routed upload event",
		"bucket", ev.Bucket, "key", ev.Key, "event_type", ev.EventType)
	return nil
}
