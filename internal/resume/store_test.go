package resume

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/models"
)

// failingStorage returns errors from every operation
type failingStorage struct {
	err   error
	puts  int
	prune int
}

func (f *failingStorage) Get(context.Context, models.SourceID) (*models.ResumeRecord, error) {
	return nil, f.err
}

func (f *failingStorage) Put(context.Context, models.ResumeRecord) error {
	f.puts++
	return f.err
}

func (f *failingStorage) Delete(context.Context, models.SourceID) error { return f.err }

func (f *failingStorage) DeleteUpdatedBefore(context.Context, time.Time) error {
	f.prune++
	return f.err
}

func (f *failingStorage) Close() error { return f.err }

func TestStore_StorageFailuresAreSwallowed(t *testing.T) {
	storage := &failingStorage{err: errors.New("disk on fire")}
	store := NewStore(storage, 0)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		store.RecordPosition(ctx, "src", 10)
		store.Forget(ctx, "src")
	})
	assert.Equal(t, 1, storage.puts, "prune failure must not block the write")
	assert.Equal(t, 1, storage.prune)
	assert.Nil(t, store.Position(ctx, "src", nil))
}

func TestStore_ServerPositionWins(t *testing.T) {
	storage := NewMemoryStorage()
	store := NewStore(storage, 0)
	ctx := context.Background()

	store.RecordPosition(ctx, "src", 10)

	server := 42.0
	got := store.Position(ctx, "src", &server)
	require.NotNil(t, got)
	assert.Equal(t, 42.0, *got)

	got = store.Position(ctx, "src", nil)
	require.NotNil(t, got)
	assert.Equal(t, 10.0, *got)

	assert.Nil(t, store.Position(ctx, "other", nil))
	assert.Nil(t, store.Position(ctx, "", &server), "no source, nothing to resume")
}

func TestStore_NilStorageIsNull(t *testing.T) {
	store := NewStore(nil, 0)
	ctx := context.Background()

	store.RecordPosition(ctx, "src", 10)
	assert.Nil(t, store.Position(ctx, "src", nil))
	assert.NoError(t, store.Close())
}

func TestStore_PrunesOnWrite(t *testing.T) {
	storage := NewMemoryStorage()
	store := NewStore(storage, 0)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	store.RecordPosition(ctx, "old", 10)

	store.now = func() time.Time { return base.Add(20 * 24 * time.Hour) }
	store.RecordPosition(ctx, "recent", 20)
	assert.Equal(t, 2, storage.Len())

	store.now = func() time.Time { return base.Add(22 * 24 * time.Hour) }
	store.RecordPosition(ctx, "new", 30)

	assert.Nil(t, store.Position(ctx, "old", nil))
	assert.NotNil(t, store.Position(ctx, "recent", nil))
	assert.NotNil(t, store.Position(ctx, "new", nil))
}

func TestStorageBackends(t *testing.T) {
	backends := map[string]func(t *testing.T) Storage{
		"memory": func(t *testing.T) Storage { return NewMemoryStorage() },
		"sqlite": func(t *testing.T) Storage {
			s, err := NewSQLStorage(filepath.Join(t.TempDir(), "resume.db"))
			require.NoError(t, err)
			return s
		},
		"badger": func(t *testing.T) Storage {
			s, err := NewBadgerStorage("")
			require.NoError(t, err)
			return s
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			storage := open(t)
			defer func() { _ = storage.Close() }()
			ctx := context.Background()
			base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

			rec, err := storage.Get(ctx, "missing")
			require.NoError(t, err)
			assert.Nil(t, rec)

			require.NoError(t, storage.Put(ctx, models.ResumeRecord{SourceID: "a", PositionSeconds: 1, LastUpdated: base}))
			require.NoError(t, storage.Put(ctx, models.ResumeRecord{SourceID: "a", PositionSeconds: 2, LastUpdated: base.Add(48 * time.Hour)}))
			require.NoError(t, storage.Put(ctx, models.ResumeRecord{SourceID: "b", PositionSeconds: 3, LastUpdated: base.Add(time.Hour)}))

			rec, err = storage.Get(ctx, "a")
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, 2.0, rec.PositionSeconds)
			assert.True(t, rec.LastUpdated.Equal(base.Add(48*time.Hour)))

			// "a" was rewritten after the cutoff so only "b" expires
			require.NoError(t, storage.DeleteUpdatedBefore(ctx, base.Add(24*time.Hour)))

			rec, err = storage.Get(ctx, "a")
			require.NoError(t, err)
			assert.NotNil(t, rec)
			rec, err = storage.Get(ctx, "b")
			require.NoError(t, err)
			assert.Nil(t, rec)

			require.NoError(t, storage.Delete(ctx, "a"))
			require.NoError(t, storage.Delete(ctx, "a"))
			rec, err = storage.Get(ctx, "a")
			require.NoError(t, err)
			assert.Nil(t, rec)
		})
	}
}

func TestOpenStorage(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ResumeConfig
		want    interface{}
		wantErr bool
	}{
		{"none", config.ResumeConfig{Backend: BackendNone}, NullStorage{}, false},
		{"memory", config.ResumeConfig{Backend: BackendMemory}, &MemoryStorage{}, false},
		{"sqlite without path", config.ResumeConfig{Backend: BackendSQLite}, &MemoryStorage{}, false},
		{"sqlite", config.ResumeConfig{Backend: BackendSQLite, Path: filepath.Join(t.TempDir(), "r.db")}, &SQLStorage{}, false},
		{"badger in memory", config.ResumeConfig{Backend: BackendBadger}, &BadgerStorage{}, false},
		{"unknown", config.ResumeConfig{Backend: "bolt"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, err := OpenStorage(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, storage)
				return
			}
			require.NoError(t, err)
			defer func() { _ = storage.Close() }()
			assert.IsType(t, tt.want, storage)
		})
	}
}

func TestStore_Health(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, NewStore(NewMemoryStorage(), 0).Health(ctx))

	sql, err := NewSQLStorage(filepath.Join(t.TempDir(), "health.db"))
	require.NoError(t, err)
	store := NewStore(sql, 0)
	assert.NoError(t, store.Health(ctx))

	require.NoError(t, store.Close())
	assert.Error(t, store.Health(ctx))
}
