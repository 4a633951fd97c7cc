package photopipe_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe"
	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker"
	mailmemory "github.com/mediakeep/photo-pipeline/pkg/photopipe/mail/memory"
)

func rejectionDelivery(body string) broker.Delivery {
	return broker.Delivery{Message: broker.NewMessage([]byte(body), nil), Receipt: "r-1", Attempts: 1}
}

func TestRejectionNotifierSendsOneEmail(t *testing.T) {
	mailer := mailmemory.New()
	n, err := photopipe.NewRejectionNotifier(mailer, "owner@example.com", "noreply@example.com", nil)
	require.NoError(t, err)

	d := rejectionDelivery(`{"file":"docs/readme.txt","reason":"Invalid file type: .txt"}`)
	require.NoError(t, n.Process(context.Background(), d))

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "owner@example.com", sent[0].Recipient)
	assert.Equal(t, "Image upload rejected", sent[0].Subject)
	assert.Contains(t, sent[0].BodyHTML, "docs/readme.txt")
	assert.Contains(t, sent[0].BodyHTML, "Invalid file type: .txt")
}

func TestRejectionNotifierSkipsUnrecognizedReason(t *testing.T) {
	mailer := mailmemory.New()
	n, err := photopipe.NewRejectionNotifier(mailer, "owner@example.com", "", nil)
	require.NoError(t, err)

	d := rejectionDelivery(`{"file":"a.png","reason":"Storage unavailable"}`)
	require.NoError(t, n.Process(context.Background(), d))

	assert.Empty(t, mailer.Sent())
}

func TestRejectionNotifierDefaultsMissingFields(t *testing.T) {
	mailer := mailmemory.New()
	n, err := photopipe.NewRejectionNotifier(mailer, "owner@example.com", "", nil)
	require.NoError(t, err)

	d := rejectionDelivery(`{"reason":"Invalid file type: .exe"}`)
	require.NoError(t, n.Process(context.Background(), d))

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].BodyHTML, "Unknown")
}

func TestRejectionNotifierSkipsRedrivenWorkItem(t *testing.T) {
	// In retry mode the dead-letter queue holds original upload events,
	// not rejection records. Their reason defaults to Unknown and no mail
	// goes out.
	mailer := mailmemory.New()
	n, err := photopipe.NewRejectionNotifier(mailer, "owner@example.com", "", nil)
	require.NoError(t, err)

	d := rejectionDelivery(`{"bucket":"uploads","key":"a.gif"}`)
	require.NoError(t, n.Process(context.Background(), d))

	assert.Empty(t, mailer.Sent())
}

func TestRejectionNotifierParsesWrappedRecord(t *testing.T) {
	mailer := mailmemory.New()
	n, err := photopipe.NewRejectionNotifier(mailer, "owner@example.com", "", nil)
	require.NoError(t, err)

	inner := []byte(`{"file":"b.gif","reason":"Invalid file type: .gif"}`)
	d := broker.Delivery{
		Message: broker.NewMessage(topicEnvelopeJSON(t, inner, nil), nil),
		Receipt: "r-1", Attempts: 1,
	}
	require.NoError(t, n.Process(context.Background(), d))

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].BodyHTML, "b.gif")
}

func TestRejectionNotifierSendFailureIsNotFatal(t *testing.T) {
	mailer := mailmemory.New()
	mailer.FailWith = errors.New("mail service down")
	n, err := photopipe.NewRejectionNotifier(mailer, "owner@example.com", "", nil)
	require.NoError(t, err)

	d := rejectionDelivery(`{"file":"a.gif","reason":"Invalid file type: .gif"}`)
	assert.NoError(t, n.Process(context.Background(), d))
}

func TestRejectionNotifierRequiresRecipient(t *testing.T) {
	_, err := photopipe.NewRejectionNotifier(mailmemory.New(), "", "", nil)
	assert.Error(t, err)
}
