package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker"
	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker/memory"
)

func TestTopicFanOutWithFilters(t *testing.T) {
	topic := memory.NewTopic(nil)

	var everything, filtered []broker.Message
	require.NoError(t, topic.SubscribeWithFilter("all", nil, func(ctx context.Context, d broker.Delivery) error {
		everything = append(everything, d.Message)
		return nil
	}))
	filter := broker.AttributeAllowList("metadata_type", "Caption", "Date")
	require.NoError(t, topic.SubscribeWithFilter("meta", filter, func(ctx context.Context, d broker.Delivery) error {
		filtered = append(filtered, d.Message)
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, topic.Publish(ctx, broker.NewMessage([]byte("a"), map[string]string{"metadata_type": "Caption"})))
	require.NoError(t, topic.Publish(ctx, broker.NewMessage([]byte("b"), map[string]string{"metadata_type": "Location"})))
	require.NoError(t, topic.Publish(ctx, broker.NewMessage([]byte("c"), nil)))

	assert.Len(t, everything, 3)
	require.Len(t, filtered, 1)
	assert.Equal(t, []byte("a"), filtered[0].Body)
}

func TestTopicDuplicateSubscriptionName(t *testing.T) {
	topic := memory.NewTopic(nil)
	h := func(ctx context.Context, d broker.Delivery) error { return nil }

	require.NoError(t, topic.SubscribeWithFilter("a", nil, h))
	assert.Error(t, topic.SubscribeWithFilter("a", nil, h))
}

func TestTopicHandlerErrorDoesNotStopSiblings(t *testing.T) {
	topic := memory.NewTopic(nil)

	var delivered int
	require.NoError(t, topic.SubscribeWithFilter("failing", nil, func(ctx context.Context, d broker.Delivery) error {
		return assert.AnError
	}))
	require.NoError(t, topic.SubscribeWithFilter("healthy", nil, func(ctx context.Context, d broker.Delivery) error {
		delivered++
		return nil
	}))

	require.NoError(t, topic.Publish(context.Background(), broker.NewMessage([]byte("x"), nil)))
	assert.Equal(t, 1, delivered)
}

func TestQueueSendReceiveAck(t *testing.T) {
	q := memory.NewQueue(0)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, broker.NewMessage([]byte("x"), nil)))

	ds, err := q.Receive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, 1, ds[0].Attempts)

	require.NoError(t, q.Ack(ctx, ds[0].Receipt))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestQueueNackIncrementsAttempts(t *testing.T) {
	q := memory.NewQueue(0)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, broker.NewMessage([]byte("x"), nil)))

	ds, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	require.NoError(t, q.Nack(ctx, ds[0].Receipt))

	ds, err = q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, 2, ds[0].Attempts)
}

func TestQueueRedriveBound(t *testing.T) {
	dead := memory.NewQueue(0)
	q := memory.NewQueue(0).WithRedrive(broker.RedrivePolicy{MaxAttempts: 3, DeadLetter: dead})
	ctx := context.Background()

	msg := broker.NewMessage([]byte("poison"), map[string]string{"k": "v"})
	require.NoError(t, q.Send(ctx, msg))

	// The first two failed cycles stay on the queue.
	for i := 0; i < 2; i++ {
		ds, err := q.Receive(ctx, 1)
		require.NoError(t, err)
		require.Len(t, ds, 1)
		require.NoError(t, q.Nack(ctx, ds[0].Receipt))

		depth, err := dead.Depth(ctx)
		require.NoError(t, err)
		assert.Zero(t, depth, "dead-lettered before the attempt bound")
	}

	// The third failed cycle moves it to the dead-letter queue.
	ds, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, 3, ds[0].Attempts)
	require.NoError(t, q.Nack(ctx, ds[0].Receipt))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)

	dls, err := dead.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, dls, 1)
	assert.Equal(t, msg.ID, dls[0].ID, "message must move verbatim")
	assert.Equal(t, msg.Body, dls[0].Body)
	assert.Equal(t, msg.Attributes, dls[0].Attributes)
	assert.Equal(t, 1, dls[0].Attempts, "attempt counting restarts on the dead-letter queue")
}

func TestQueueVisibilityWindowExpiry(t *testing.T) {
	q := memory.NewQueue(20 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, broker.NewMessage([]byte("x"), nil)))

	ds, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, ds, 1)

	// Unacked past the window: the item becomes receivable again.
	time.Sleep(30 * time.Millisecond)

	ds, err = q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, 2, ds[0].Attempts)
}

func TestQueueAckUnknownReceipt(t *testing.T) {
	q := memory.NewQueue(0)
	assert.Error(t, q.Ack(context.Background(), "nope"))
	assert.Error(t, q.Nack(context.Background(), "nope"))
}

func TestKeyPrefixFilter(t *testing.T) {
	filter := broker.KeyPrefix("photos/")

	assert.True(t, filter(broker.Message{Attributes: map[string]string{broker.AttrObjectKey: "photos/a.png"}}))
	assert.False(t, filter(broker.Message{Attributes: map[string]string{broker.AttrObjectKey: "docs/a.png"}}))
	assert.False(t, filter(broker.Message{}))
}
