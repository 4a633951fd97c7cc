package photopipe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker"
)

// MetadataUpdater subscribes to the fan-out topic, filtered to messages
// carrying an allow-listed metadata_type attribute, and patches exactly
// one named attribute on the image record.
type MetadataUpdater struct {
	records RecordStore
	logger  *slog.Logger
}

// NewMetadataUpdater creates a metadata updater.
func NewMetadataUpdater(records RecordStore, logger *slog.Logger) (*MetadataUpdater, error) {
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataUpdater{records: records, logger: logger}, nil
}

// Filter returns the subscription filter for this worker: only messages
// whose metadata_type is an updatable attribute are delivered.
func (u *MetadataUpdater) Filter() broker.FilterFunc {
	return broker.AttributeAllowList(broker.AttrMetadataType, MetadataAttributes()...)
}

// Handle applies one metadata update. A store failure is returned, not
// swallowed: metadata loss is user-visible and the broker is expected to
// redeliver.
func (u *MetadataUpdater) Handle(ctx context.Context, d broker.Delivery) error {
	body := d.Body
	attr := d.Attributes[broker.AttrMetadataType]
	if inner, attrs, ok := UnwrapTopicEnvelope(body); ok {
		body = inner
		if v, found := attrs[broker.AttrMetadataType]; found {
			attr = v
		}
	}
	if !ValidMetadataAttribute(attr) {
		return fmt.Errorf("metadata_type %q: %w", attr, ErrUnknownAttribute)
	}

	var msg MetadataUpdateMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		u.logger.Error("skipping malformed metadata message", "message_id", d.ID, "err", err)
		return nil
	}
	if msg.ID == "" {
		u.logger.Error("skipping metadata message without file name", "message_id", d.ID)
		return nil
	}

	if err := u.records.UpdateAttribute(ctx, msg.ID, attr, msg.Value); err != nil {
		return &StoreError{Op: "update", FileName: msg.ID, Err: err}
	}
	u.logger.Info("image metadata updated", "file", msg.ID, "attribute", attr)
	return nil
}
