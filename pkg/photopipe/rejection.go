package photopipe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker"
)

// unknownField substitutes for a missing fileName or reason on a
// dead-letter item. Deliberate graceful degradation: a partial rejection
// still produces a useful notification.
const unknownField = "Unknown"

// rejectionCategory is the known rejection reason family. Dead-letter
// items with any other reason are skipped without error.
const rejectionCategory = "Invalid file type"

// RejectionNotifier drains the dead-letter queue and emails the
// configured recipient one rejection notice per matching item.
type RejectionNotifier struct {
	mailer    Mailer
	recipient string
	sender    string
	logger    *slog.Logger
}

// NewRejectionNotifier creates a rejection notifier.
func NewRejectionNotifier(mailer Mailer, recipient, sender string, logger *slog.Logger) (*RejectionNotifier, error) {
	if mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if recipient == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RejectionNotifier{mailer: mailer, recipient: recipient, sender: sender, logger: logger}, nil
}

// Process handles one dead-letter delivery. Notification is best-effort:
// every path acknowledges the item, so a bad or unsendable rejection can
// never wedge the dead-letter queue.
func (n *RejectionNotifier) Process(ctx context.Context, d broker.Delivery) error {
	rec := n.parseRejection(d.Body)

	if !strings.Contains(rec.Reason, rejectionCategory) {
		n.logger.Info("skipping dead-letter item with unrecognized reason",
			"message_id", d.ID, "file", rec.FileName, "reason", rec.Reason)
		return nil
	}

	req := NotificationRequest{
		Recipient: n.recipient,
		Subject:   "Image upload rejected",
		BodyHTML: renderMailBody(senderName, n.sender,
			fmt.Sprintf("Your upload %s was rejected. %s", rec.FileName, rec.Reason)),
	}
	if err := n.mailer.Send(ctx, req); err != nil {
		n.logger.Error("rejection notification failed",
			"file", rec.FileName, "recipient", n.recipient, "err", err)
		return nil
	}
	n.logger.Info("rejection notification sent", "file", rec.FileName, "reason", rec.Reason)
	return nil
}

// parseRejection extracts a RejectionRecord from a dead-letter payload.
// The payload is either the record itself or a broker envelope containing
// the original work item; missing fields default to Unknown.
func (n *RejectionNotifier) parseRejection(body []byte) RejectionRecord {
	rec := decodeRejection(body)
	if rec.FileName != "" || rec.Reason != "" {
		return withUnknownDefaults(rec)
	}

	// Redrive moves work items verbatim, so the payload may still be
	// wrapped the way the work queue received it.
	if msg, _, ok := UnwrapTopicEnvelope(body); ok {
		rec = decodeRejection(msg)
	}
	return withUnknownDefaults(rec)
}

func decodeRejection(body []byte) RejectionRecord {
	var rec RejectionRecord
	_ = json.Unmarshal(body, &rec)
	return rec
}

func withUnknownDefaults(rec RejectionRecord) RejectionRecord {
	if rec.FileName == "" {
		rec.FileName = unknownField
	}
	if rec.Reason == "" {
		rec.Reason = unknownField
	}
	return rec
}
