package db

// Repositories provides access to all database repositories
type Repositories struct {
	PlaybackTimes *PlaybackTimeRepository
}

// NewRepositories creates a new repository collection
func NewRepositories(db *DB) *Repositories {
	return &Repositories{
		PlaybackTimes: NewPlaybackTimeRepository(db),
	}
}
