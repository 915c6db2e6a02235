package models

import "time"

// ResumeRecord stores the last playback position of an on-demand source
type ResumeRecord struct {
	SourceID        SourceID  `json:"source_id" gorm:"type:text;primaryKey;column:source_id"`
	PositionSeconds float64   `json:"position_seconds" gorm:"type:real;not null;column:position_seconds"`
	LastUpdated     time.Time `json:"last_updated" gorm:"type:datetime;not null;index:idx_playback_times_updated_at;column:updated_at"`
}

// TableName specifies the table name for GORM
func (ResumeRecord) TableName() string {
	return "playback_times"
}
