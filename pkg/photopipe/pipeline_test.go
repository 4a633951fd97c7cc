package photopipe_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe"
	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker"
	brokermemory "github.com/mediakeep/photo-pipeline/pkg/photopipe/broker/memory"
	mailmemory "github.com/mediakeep/photo-pipeline/pkg/photopipe/mail/memory"
	storagememory "github.com/mediakeep/photo-pipeline/pkg/photopipe/storage/memory"
	storememory "github.com/mediakeep/photo-pipeline/pkg/photopipe/store/memory"
)

type pipelineFixture struct {
	pipeline *photopipe.Pipeline
	topic    *brokermemory.Topic
	work     *brokermemory.Queue
	dead     *brokermemory.Queue
	records  *storememory.Store
	mailer   *mailmemory.Mailer
}

func newPipelineFixture(t *testing.T, extra ...photopipe.Option) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		topic:   brokermemory.NewTopic(nil),
		dead:    brokermemory.NewQueue(0),
		records: storememory.New(),
		mailer:  mailmemory.New(),
	}
	f.work = brokermemory.NewQueue(0).WithRedrive(broker.RedrivePolicy{
		MaxAttempts: 5,
		DeadLetter:  f.dead,
	})

	options := []photopipe.Option{
		photopipe.WithTopic(f.topic),
		photopipe.WithWorkQueue(f.work),
		photopipe.WithDeadLetterQueue(f.dead),
		photopipe.WithRecordStore(f.records),
		photopipe.WithObjectStore(storagememory.New()),
		photopipe.WithMailer(f.mailer),
		photopipe.WithNotificationAddresses("owner@example.com", "noreply@example.com"),
	}
	options = append(options, extra...)

	p, err := photopipe.New(options...)
	require.NoError(t, err)
	f.pipeline = p
	return f
}

// drain pumps every pending item of q through h, acking or nacking like
// the consumer loop does.
func drain(t *testing.T, q *brokermemory.Queue, h broker.Handler) {
	t.Helper()
	ctx := context.Background()
	for {
		ds, err := q.Receive(ctx, 10)
		require.NoError(t, err)
		if len(ds) == 0 {
			return
		}
		for _, d := range ds {
			if err := h(ctx, d); err != nil {
				require.NoError(t, q.Nack(ctx, d.Receipt))
				continue
			}
			require.NoError(t, q.Ack(ctx, d.Receipt))
		}
	}
}

func TestPipelineRequiresDependencies(t *testing.T) {
	_, err := photopipe.New()
	assert.Error(t, err)

	_, err = photopipe.New(photopipe.WithTopic(brokermemory.NewTopic(nil)))
	assert.Error(t, err)
}

func TestPipelineAcceptedUpload(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	raw := storageEventJSON(t, "uploads", "photos/sun+set.png", "ObjectCreated:Put")
	require.NoError(t, f.pipeline.Router().Handle(ctx, raw))

	// Fan-out delivered the confirmation synchronously.
	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "New image Upload", sent[0].Subject)
	assert.Contains(t, sent[0].BodyHTML, "s3://uploads/photos/sun set.png")

	// The work queue copy produces the record.
	drain(t, f.work, f.pipeline.Validator().Process)

	rec, err := f.records.GetRecord(ctx, "photos/sun set.png")
	require.NoError(t, err)
	assert.Equal(t, "photos/sun set.png", rec.FileName)

	depth, err := f.dead.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestPipelineRejectedUpload(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	raw := storageEventJSON(t, "uploads", "docs/readme.txt", "ObjectCreated:Put")
	require.NoError(t, f.pipeline.Router().Handle(ctx, raw))

	drain(t, f.work, f.pipeline.Validator().Process)

	// No record, one rejection on the dead-letter queue.
	_, err := f.records.GetRecord(ctx, "docs/readme.txt")
	assert.ErrorIs(t, err, photopipe.ErrRecordNotFound)

	drain(t, f.dead, f.pipeline.RejectionNotifier().Process)

	sent := f.mailer.Sent()
	require.Len(t, sent, 2, "one confirmation from fan-out, one rejection notice")
	assert.Equal(t, "Image upload rejected", sent[1].Subject)
	assert.Contains(t, sent[1].BodyHTML, "docs/readme.txt")
	assert.Contains(t, sent[1].BodyHTML, "Invalid file type: .txt")
}

func TestPipelineMetadataFanOut(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.pipeline.Router().Publish(ctx, photopipe.UploadEvent{
		Bucket: "uploads", Key: "a.png",
	}))
	drain(t, f.work, f.pipeline.Validator().Process)

	// A metadata update rides the fan-out with the attribute out-of-band;
	// only the metadata subscription passes its filter.
	body := []byte(`{"id":"a.png","value":"golden hour"}`)
	require.NoError(t, f.topic.Publish(ctx, broker.NewMessage(body, map[string]string{
		broker.AttrMetadataType: photopipe.AttrCaption,
	})))

	rec, err := f.records.GetRecord(ctx, "a.png")
	require.NoError(t, err)
	assert.Equal(t, "golden hour", rec.Caption)
}

func TestPipelineRetryModeDeadLettersOriginalEvent(t *testing.T) {
	f := newPipelineFixture(t, photopipe.WithRejectionMode(photopipe.RejectRetry))
	ctx := context.Background()

	require.NoError(t, f.pipeline.Router().Publish(ctx, photopipe.UploadEvent{
		Bucket: "uploads", Key: "a.gif",
	}))

	// Each failed cycle requeues the event until the fifth nack redrives
	// the original message; drain keeps pumping until the queue is empty.
	drain(t, f.work, f.pipeline.Validator().Process)

	depth, err := f.dead.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	// The redriven payload is an upload event, not a rejection record, so
	// the notifier skips it without mailing.
	before := len(f.mailer.Sent())
	drain(t, f.dead, f.pipeline.RejectionNotifier().Process)
	assert.Len(t, f.mailer.Sent(), before)
}

func TestPipelineRunConsumesQueues(t *testing.T) {
	f := newPipelineFixture(t, photopipe.WithPollInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.pipeline.Run(ctx)
	}()

	require.NoError(t, f.pipeline.Router().Publish(ctx, photopipe.UploadEvent{
		Bucket: "uploads", Key: "b.jpeg",
	}))

	require.Eventually(t, func() bool {
		_, err := f.records.GetRecord(context.Background(), "b.jpeg")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
}

func TestPipelineQueueDepths(t *testing.T) {
	f := newPipelineFixture(t)

	depths := f.pipeline.QueueDepths()
	require.Contains(t, depths, "work")
	require.Contains(t, depths, "dead-letter")

	n, err := depths["work"].Depth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
