package db

import (
	"context"
	"fmt"
	"time"

	"github.com/stwalsh4118/marquee/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PlaybackTimeRepository handles database operations for remembered playback positions
type PlaybackTimeRepository struct {
	db *DB
}

// NewPlaybackTimeRepository creates a new playback time repository
func NewPlaybackTimeRepository(db *DB) *PlaybackTimeRepository {
	return &PlaybackTimeRepository{db: db}
}

// Get retrieves the record for a source
func (r *PlaybackTimeRepository) Get(ctx context.Context, sourceID models.SourceID) (*models.ResumeRecord, error) {
	var record models.ResumeRecord
	if err := r.db.WithContext(ctx).Where("source_id = ?", sourceID).First(&record).Error; err != nil {
		return nil, MapGormError(err)
	}
	return &record, nil
}

// Upsert creates or replaces the record for a source
func (r *PlaybackTimeRepository) Upsert(ctx context.Context, record *models.ResumeRecord) error {
	if record.SourceID == "" {
		return fmt.Errorf("%w: empty source id", ErrInvalidInput)
	}
	return upsertRecord(r.db.WithContext(ctx), record)
}

// PruneAndUpsert deletes records last updated before cutoff and writes record,
// both in one transaction
func (r *PlaybackTimeRepository) PruneAndUpsert(ctx context.Context, cutoff time.Time, record *models.ResumeRecord) error {
	if record.SourceID == "" {
		return fmt.Errorf("%w: empty source id", ErrInvalidInput)
	}
	return r.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := deleteBefore(tx, cutoff); err != nil {
			return err
		}
		return upsertRecord(tx, record)
	})
}

// Delete removes the record for a source
func (r *PlaybackTimeRepository) Delete(ctx context.Context, sourceID models.SourceID) error {
	result := r.db.WithContext(ctx).Where("source_id = ?", sourceID).Delete(&models.ResumeRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete playback time: %w", MapGormError(result.Error))
	}
	return nil
}

// DeleteUpdatedBefore removes every record last updated before cutoff
func (r *PlaybackTimeRepository) DeleteUpdatedBefore(ctx context.Context, cutoff time.Time) error {
	return deleteBefore(r.db.WithContext(ctx), cutoff)
}

// Count returns the number of stored records
func (r *PlaybackTimeRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ResumeRecord{}).Count(&count).Error; err != nil {
		return 0, MapGormError(err)
	}
	return count, nil
}

func upsertRecord(tx *gorm.DB, record *models.ResumeRecord) error {
	record.LastUpdated = record.LastUpdated.UTC()
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"position_seconds", "updated_at"}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert playback time: %w", MapGormError(err))
	}
	return nil
}

func deleteBefore(tx *gorm.DB, cutoff time.Time) error {
	err := tx.Where("updated_at < ?", cutoff.UTC()).Delete(&models.ResumeRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to prune playback times: %w", MapGormError(err))
	}
	return nil
}
