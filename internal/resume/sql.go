package resume

import (
	"context"
	"fmt"
	"time"

	"github.com/stwalsh4118/marquee/internal/db"
	"github.com/stwalsh4118/marquee/internal/models"
)

// SQLStorage stores records in the playback_times table
type SQLStorage struct {
	database *db.DB
	repo     *db.PlaybackTimeRepository
}

// NewSQLStorage opens the database at path and applies migrations
func NewSQLStorage(path string) (*SQLStorage, error) {
	database, err := db.New(path)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("resume store: %w", err)
	}
	return &SQLStorage{
		database: database,
		repo:     db.NewRepositories(database).PlaybackTimes,
	}, nil
}

// Get returns the record, nil when missing
func (s *SQLStorage) Get(ctx context.Context, sourceID models.SourceID) (*models.ResumeRecord, error) {
	record, err := s.repo.Get(ctx, sourceID)
	if db.IsNotFound(err) {
		return nil, nil
	}
	return record, err
}

// Put upserts the record
func (s *SQLStorage) Put(ctx context.Context, record models.ResumeRecord) error {
	return s.repo.Upsert(ctx, &record)
}

// PruneAndPut prunes and writes in one transaction
func (s *SQLStorage) PruneAndPut(ctx context.Context, cutoff time.Time, record models.ResumeRecord) error {
	return s.repo.PruneAndUpsert(ctx, cutoff, &record)
}

// Delete removes the record
func (s *SQLStorage) Delete(ctx context.Context, sourceID models.SourceID) error {
	return s.repo.Delete(ctx, sourceID)
}

// DeleteUpdatedBefore removes records last updated before cutoff
func (s *SQLStorage) DeleteUpdatedBefore(ctx context.Context, cutoff time.Time) error {
	return s.repo.DeleteUpdatedBefore(ctx, cutoff)
}

// Health pings the database
func (s *SQLStorage) Health(ctx context.Context) error {
	return s.database.Health(ctx)
}

// Close closes the database
func (s *SQLStorage) Close() error {
	return s.database.Close()
}
