package photopipe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker"
)

// senderName is the display name rendered into every notification body.
const senderName = "The Photo Album"

// storeScheme is the URL scheme of the backing object store.
const storeScheme = "s3"

// ConfirmationNotifier subscribes to the fan-out topic and emails the
// configured recipient once per accepted upload.
type ConfirmationNotifier struct {
	mailer    Mailer
	recipient string
	sender    string
	logger    *slog.Logger
}

// NewConfirmationNotifier creates a confirmation notifier.
func NewConfirmationNotifier(mailer Mailer, recipient, sender string, logger *slog.Logger) (*ConfirmationNotifier, error) {
	if mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if recipient == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfirmationNotifier{mailer: mailer, recipient: recipient, sender: sender, logger: logger}, nil
}

// Handle processes one fan-out delivery. Errors are logged per message and
// never propagated: one bad message must not abort siblings in the same
// delivery batch.
func (n *ConfirmationNotifier) Handle(ctx context.Context, d broker.Delivery) error {
	body := d.Body
	if msg, _, ok := UnwrapTopicEnvelope(body); ok {
		body = msg
	}
	var ev UploadEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.Key == "" {
		n.logger.Error("skipping unparseable fan-out message", "message_id", d.ID, "err", err)
		return nil
	}
	if ev.EventType == EventObjectRemoved {
		return nil
	}

	req := NotificationRequest{
		Recipient: n.recipient,
		Subject:   "New image Upload",
		BodyHTML: renderMailBody(senderName, n.sender,
			fmt.Sprintf("We received your Image. Its URL is %s://%s/%s", storeScheme, ev.Bucket, ev.Key)),
	}
	if err := n.mailer.Send(ctx, req); err != nil {
		n.logger.Error("confirmation notification failed",
			"key", ev.Key, "recipient", n.recipient, "err", err)
		return nil
	}
	n.logger.Info("confirmation notification sent", "bucket", ev.Bucket, "key", ev.Key)
	return nil
}

// renderMailBody renders the shared notification HTML: sender identity
// followed by the message line.
func renderMailBody(name, email, message string) string {
	return fmt.Sprintf(`<html>
  <body>
    <h2>Sent from:</h2>
    <ul>
      <li style="font-size:18px"><b>%s</b></li>
      <li style="font-size:18px"><b>%s</b></li>
    </ul>
    <p style="font-size:18px">%s</p>
  </body>
</html>`, name, email, message)
}
