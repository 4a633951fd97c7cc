package memory

import (
	"context"
	"sync"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe"
)

// Mailer is an in-memory implementation of photopipe.Mailer that records
// every send. Useful for tests and local runs.
type Mailer struct {
	mu   sync.Mutex
	sent []photopipe.NotificationRequest

	// FailWith, when set, makes every Send return this error.
	FailWith error
}

// New creates a new capture mailer.
func New() *Mailer {
	return &Mailer{}
}

func (m *Mailer) Send(ctx context.Context, req photopipe.NotificationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.sent = append(m.sent, req)
	return nil
}

// Sent returns a snapshot of every recorded notification.
func (m *Mailer) Sent() []photopipe.NotificationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]photopipe.NotificationRequest(nil), m.sent...)
}
