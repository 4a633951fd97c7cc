package photopipe

import (
	"context"
	"io"
)

// RecordStore is the key-value table holding one ImageRecord per fileName.
// All access is key-scoped; there are no multi-item transactions.
type RecordStore interface {
	// PutRecord inserts the record if absent. Re-inserting the same
	// fileName is a no-op, which makes redelivered inserts idempotent.
	PutRecord(ctx context.Context, rec ImageRecord) error

	// UpdateAttribute sets exactly one named attribute on the record,
	// leaving every other attribute untouched. The record is created if it
	// does not exist yet.
	UpdateAttribute(ctx context.Context, fileName, attr, value string) error

	// GetRecord returns the record for fileName, or ErrRecordNotFound.
	GetRecord(ctx context.Context, fileName string) (*ImageRecord, error)
}

// ObjectStore is the object storage the upload events refer to. The
// pipeline only reads from it; content processing itself is out of scope.
type ObjectStore interface {
	// Download returns the raw object content.
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Upload stores content. Used by tooling and tests; the pipeline never
	// writes objects.
	Upload(ctx context.Context, bucket, key string, reader io.Reader) error
}

// Mailer delivers rendered notifications. Sends are best-effort from the
// pipeline's point of view: duplicates under redelivery are tolerated.
type Mailer interface {
	Send(ctx context.Context, req NotificationRequest) error
}
