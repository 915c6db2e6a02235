package resume

import (
	"context"
	"sync"
	"time"

	"github.com/stwalsh4118/marquee/internal/models"
)

// MemoryStorage keeps records in a map
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[models.SourceID]models.ResumeRecord
}

// NewMemoryStorage creates an empty in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[models.SourceID]models.ResumeRecord)}
}

// Get returns a copy of the record
func (m *MemoryStorage) Get(_ context.Context, sourceID models.SourceID) (*models.ResumeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.data[sourceID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// Put stores the record
func (m *MemoryStorage) Put(_ context.Context, record models.ResumeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[record.SourceID] = record
	return nil
}

// Delete removes the record
func (m *MemoryStorage) Delete(_ context.Context, sourceID models.SourceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, sourceID)
	return nil
}

// DeleteUpdatedBefore removes records last updated before cutoff
func (m *MemoryStorage) DeleteUpdatedBefore(_ context.Context, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, record := range m.data {
		if record.LastUpdated.Before(cutoff) {
			delete(m.data, id)
		}
	}
	return nil
}

// Len returns the number of stored records
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Close drops all records
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[models.SourceID]models.ResumeRecord)
	return nil
}
