package photopipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker"
)

// RejectionMode selects how the validation worker disposes of an invalid
// upload. Both behaviors exist in production topologies, so the choice is
// configuration, not code.
type RejectionMode string

const (
	// RejectPublish publishes a RejectionRecord straight to the dead-letter
	// queue and acknowledges the work item as handled.
	RejectPublish RejectionMode = "publish"

	// RejectRetry signals failure for the work item so the broker's redrive
	// policy eventually dead-letters the original message.
	RejectRetry RejectionMode = "retry"
)

// ParseRejectionMode parses a configured mode string. Empty defaults to
// RejectPublish, the only mode that preserves a structured reason for the
// rejection notifier.
func ParseRejectionMode(s string) (RejectionMode, error) {
	switch RejectionMode(strings.ToLower(s)) {
	case "", RejectPublish:
		return RejectPublish, nil
	case RejectRetry:
		return RejectRetry, nil
	}
	return "", fmt.Errorf("unsupported rejection mode %q", s)
}

// FileExtension returns the lowercased extension of key including the
// leading dot, or "" when the key has none.
func FileExtension(key string) string {
	idx := strings.LastIndex(key, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(key[idx:])
}

// Validator consumes work-queue deliveries, validates each upload, and
// either persists its metadata or routes it to the rejection path.
type Validator struct {
	records RecordStore
	objects ObjectStore
	rejects broker.Queue
	mode    RejectionMode
	logger  *slog.Logger
}

// NewValidator creates a validation worker. objects may be nil when no
// object store is wired; the post-acceptance read is then skipped.
func NewValidator(records RecordStore, objects ObjectStore, rejects broker.Queue, mode RejectionMode, logger *slog.Logger) (*Validator, error) {
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if mode == RejectPublish && rejects == nil {
		return nil, fmt.Errorf("rejection queue is required in publish mode")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{records: records, objects: objects, rejects: rejects, mode: mode, logger: logger}, nil
}

// Process handles one work-queue delivery. A nil return acknowledges the
// item; a non-nil return nacks it, which increments the broker's attempt
// counter and feeds the redrive policy.
func (v *Validator) Process(ctx context.Context, d broker.Delivery) error {
	evs, err := DecodeUploadEvents(d.Body)
	if err != nil {
		// Poison message: log and acknowledge so it cannot block the queue.
		v.logger.Error("skipping malformed work item",
			"message_id", d.ID, "attempts", d.Attempts, "err", err)
		return nil
	}

	var errs []error
	for _, ev := range evs {
		if err := v.processEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (v *Validator) processEvent(ctx context.Context, ev UploadEvent) error {
	if ev.EventType == EventObjectRemoved {
		v.logger.Info("ignoring removed object", "key", ev.Key)
		return nil
	}

	if ext := FileExtension(ev.Key); !isAllowedExtension(ext) {
		return v.reject(ctx, &ValidationError{FileName: ev.Key, Extension: ext})
	}

	if err := v.records.PutRecord(ctx, ImageRecord{FileName: ev.Key}); err != nil {
		return &StoreError{Op: "put", FileName: ev.Key, Err: err}
	}
	v.logger.Info("image metadata stored", "key", ev.Key)

	// Content processing is out of scope; the read is best-effort and a
	// failure must not fail the accepted item.
	if v.objects != nil {
		body, err := v.objects.Download(ctx, ev.Bucket, ev.Key)
		if err != nil {
			v.logger.Error("object read failed after acceptance",
				"bucket", ev.Bucket, "key", ev.Key, "err", err)
			return nil
		}
		body.Close()
	}
	return nil
}

// reject disposes of an invalid upload according to the configured mode.
func (v *Validator) reject(ctx context.Context, verr *ValidationError) error {
	v.logger.Error("rejected file",
		"key", verr.FileName, "reason", verr.Reason())

	if v.mode == RejectRetry {
		return verr
	}

	rec := RejectionRecord{FileName: verr.FileName, Reason: verr.Reason()}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding rejection record: %w", err)
	}
	if err := v.rejects.Send(ctx, broker.NewMessage(body, nil)); err != nil {
		return fmt.Errorf("publishing rejection for %s: %w", verr.FileName, err)
	}
	return nil
}

func isAllowedExtension(ext string) bool {
	_, ok := allowedExtensions[ext]
	return ok
}
