package memory

import (
	"context"
	"sync"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe"
)

// Store implements photopipe.RecordStore using in-memory storage. Useful
// for tests and local runs.
type Store struct {
	mu      sync.RWMutex
	records map[string]*photopipe.ImageRecord
}

// New creates a new in-memory record store.
func New() *Store {
	return &Store{records: make(map[string]*photopipe.ImageRecord)}
}

func (s *Store) PutRecord(ctx context.Context, rec photopipe.ImageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.FileName]; exists {
		// Insert-if-absent: redelivered inserts are no-ops.
		return nil
	}
	recCopy := rec
	s.records[rec.FileName] = &recCopy
	return nil
}

func (s *Store) UpdateAttribute(ctx context.Context, fileName, attr, value string) error {
	if !photopipe.ValidMetadataAttribute(attr) {
		return photopipe.ErrUnknownAttribute
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[fileName]
	if !exists {
		rec = &photopipe.ImageRecord{FileName: fileName}
		s.records[fileName] = rec
	}
	switch attr {
	case photopipe.AttrCaption:
		rec.Caption = value
	case photopipe.AttrDate:
		rec.Date = value
	case photopipe.AttrPhotographer:
		rec.Photographer = value
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, fileName string) (*photopipe.ImageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[fileName]
	if !exists {
		return nil, photopipe.ErrRecordNotFound
	}
	// Return a copy to prevent external modifications.
	recCopy := *rec
	return &recCopy, nil
}
