package photopipe_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe"
	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker"
)

// capturePublisher records every published message.
type capturePublisher struct {
	mu       sync.Mutex
	messages []broker.Message
	failWith error
}

func (p *capturePublisher) Publish(ctx context.Context, m broker.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.messages = append(p.messages, m)
	return nil
}

func TestRouterPublishesPerRecord(t *testing.T) {
	pub := &capturePublisher{}
	r, err := photopipe.NewRouter(pub, nil)
	require.NoError(t, err)

	raw := storageEventJSON(t, "uploads", "photos/sun+set.png", "ObjectCreated:Put")
	require.NoError(t, r.Handle(context.Background(), raw))

	require.Len(t, pub.messages, 1)
	m := pub.messages[0]
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "created", m.Attributes[broker.AttrEventType])
	assert.Equal(t, "photos/sun set.png", m.Attributes[broker.AttrObjectKey])

	var ev photopipe.UploadEvent
	require.NoError(t, json.Unmarshal(m.Body, &ev))
	assert.Equal(t, "uploads", ev.Bucket)
	assert.Equal(t, "photos/sun set.png", ev.Key)
}

func TestRouterPropagatesDecodeFailure(t *testing.T) {
	pub := &capturePublisher{}
	r, err := photopipe.NewRouter(pub, nil)
	require.NoError(t, err)

	err = r.Handle(context.Background(), []byte("not json"))
	assert.Error(t, err)
	assert.Empty(t, pub.messages)
}

func TestRouterPropagatesPublishFailure(t *testing.T) {
	pub := &capturePublisher{failWith: assert.AnError}
	r, err := photopipe.NewRouter(pub, nil)
	require.NoError(t, err)

	raw := storageEventJSON(t, "uploads", "a.png", "ObjectCreated:Put")
	err = r.Handle(context.Background(), raw)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRouterRequiresTopic(t *testing.T) {
	_, err := photopipe.NewRouter(nil, nil)
	assert.Error(t, err)
}
