// Package resume remembers how far into an on-demand source playback got.
package resume

import (
	"context"
	"time"

	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/models"
)

// DefaultRetention is how long an untouched position is kept
const DefaultRetention = 21 * 24 * time.Hour

// Storage is the durable key-value capability behind a Store.
// Get returns nil, nil when there is no record.
type Storage interface {
	Get(ctx context.Context, sourceID models.SourceID) (*models.ResumeRecord, error)
	Put(ctx context.Context, record models.ResumeRecord) error
	Delete(ctx context.Context, sourceID models.SourceID) error
	DeleteUpdatedBefore(ctx context.Context, cutoff time.Time) error
	Close() error
}

// pruningStorage is implemented by backends that can prune and write atomically
type pruningStorage interface {
	PruneAndPut(ctx context.Context, cutoff time.Time, record models.ResumeRecord) error
}

// Store records and looks up playback positions. It never returns storage
// errors to its callers: failures are logged and treated as "no position".
type Store struct {
	storage   Storage
	retention time.Duration
	now       func() time.Time
}

// NewStore wraps storage. A nil storage behaves like NullStorage.
func NewStore(storage Storage, retention time.Duration) *Store {
	if storage == nil {
		storage = NullStorage{}
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		storage:   storage,
		retention: retention,
		now:       time.Now,
	}
}

// RecordPosition stores seconds for sourceID after purging expired entries
func (s *Store) RecordPosition(ctx context.Context, sourceID models.SourceID, seconds float64) {
	if sourceID == "" {
		return
	}

	now := s.now().UTC()
	cutoff := now.Add(-s.retention)
	record := models.ResumeRecord{SourceID: sourceID, PositionSeconds: seconds, LastUpdated: now}

	if p, ok := s.storage.(pruningStorage); ok {
		if err := p.PruneAndPut(ctx, cutoff, record); err != nil {
			logger.Log.Warn().Err(err).Str("source_id", string(sourceID)).Msg("Failed to record playback position")
		}
		return
	}

	if err := s.storage.DeleteUpdatedBefore(ctx, cutoff); err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to prune expired playback positions")
	}
	if err := s.storage.Put(ctx, record); err != nil {
		logger.Log.Warn().Err(err).Str("source_id", string(sourceID)).Msg("Failed to record playback position")
	}
}

// Position returns the position to resume sourceID from. An authoritative
// server value wins, local storage is only consulted without one.
func (s *Store) Position(ctx context.Context, sourceID models.SourceID, serverPosition *float64) *float64 {
	if sourceID == "" {
		return nil
	}
	if serverPosition != nil {
		pos := *serverPosition
		return &pos
	}

	record, err := s.storage.Get(ctx, sourceID)
	if err != nil {
		logger.Log.Warn().Err(err).Str("source_id", string(sourceID)).Msg("Failed to read playback position")
		return nil
	}
	if record == nil {
		return nil
	}
	pos := record.PositionSeconds
	return &pos
}

// Forget removes the remembered position of sourceID
func (s *Store) Forget(ctx context.Context, sourceID models.SourceID) {
	if err := s.storage.Delete(ctx, sourceID); err != nil {
		logger.Log.Warn().Err(err).Str("source_id", string(sourceID)).Msg("Failed to delete playback position")
	}
}

// Health checks the underlying storage when it supports health checks
func (s *Store) Health(ctx context.Context) error {
	if h, ok := s.storage.(interface{ Health(context.Context) error }); ok {
		return h.Health(ctx)
	}
	return nil
}

// Close releases the underlying storage
func (s *Store) Close() error {
	return s.storage.Close()
}

// NullStorage is used where no durable storage is available: reads find
// nothing and writes are dropped.
type NullStorage struct{}

// Get always reports no record
func (NullStorage) Get(context.Context, models.SourceID) (*models.ResumeRecord, error) {
	return nil, nil
}

// Put drops the record
func (NullStorage) Put(context.Context, models.ResumeRecord) error { return nil }

// Delete does nothing
func (NullStorage) Delete(context.Context, models.SourceID) error { return nil }

// DeleteUpdatedBefore does nothing
func (NullStorage) DeleteUpdatedBefore(context.Context, time.Time) error { return nil }

// Close does nothing
func (NullStorage) Close() error { return nil }
