package resume

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/stwalsh4118/marquee/internal/models"
)

// Key prefixes for BadgerDB storage
const (
	recordKeyPrefix  = "pt:"
	updatedKeyPrefix = "pu:"
)

type badgerRecord struct {
	Position    float64 `json:"position"`
	UpdatedNano int64   `json:"updated"`
}

// BadgerStorage stores records in BadgerDB with a secondary index on the
// update time so pruning is a range scan
type BadgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage opens a BadgerDB at dir, or an in-memory one when dir is empty
func NewBadgerStorage(dir string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	database, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStorage{db: database}, nil
}

func recordKey(id models.SourceID) []byte {
	return []byte(recordKeyPrefix + string(id))
}

// updatedKey sorts by time: nanoseconds are zero padded to a fixed width
func updatedKey(nanos int64, id models.SourceID) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", updatedKeyPrefix, nanos, id))
}

func readRecord(txn *badger.Txn, id models.SourceID) (*badgerRecord, error) {
	item, err := txn.Get(recordKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	var rec badgerRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

// Get returns the record, nil when missing
func (s *BadgerStorage) Get(_ context.Context, sourceID models.SourceID) (*models.ResumeRecord, error) {
	var out *models.ResumeRecord
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := readRecord(txn, sourceID)
		if err != nil || rec == nil {
			return err
		}
		out = &models.ResumeRecord{
			SourceID:        sourceID,
			PositionSeconds: rec.Position,
			LastUpdated:     time.Unix(0, rec.UpdatedNano).UTC(),
		}
		return nil
	})
	return out, err
}

// Put writes the record and moves its index entry
func (s *BadgerStorage) Put(_ context.Context, record models.ResumeRecord) error {
	data, err := json.Marshal(badgerRecord{
		Position:    record.PositionSeconds,
		UpdatedNano: record.LastUpdated.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		prev, err := readRecord(txn, record.SourceID)
		if err != nil {
			return err
		}
		if prev != nil {
			if err := txn.Delete(updatedKey(prev.UpdatedNano, record.SourceID)); err != nil {
				return fmt.Errorf("delete index: %w", err)
			}
		}
		if err := txn.Set(recordKey(record.SourceID), data); err != nil {
			return fmt.Errorf("set record: %w", err)
		}
		if err := txn.Set(updatedKey(record.LastUpdated.UnixNano(), record.SourceID), nil); err != nil {
			return fmt.Errorf("set index: %w", err)
		}
		return nil
	})
}

// Delete removes the record and its index entry
func (s *BadgerStorage) Delete(_ context.Context, sourceID models.SourceID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		prev, err := readRecord(txn, sourceID)
		if err != nil || prev == nil {
			return err
		}
		if err := txn.Delete(updatedKey(prev.UpdatedNano, sourceID)); err != nil {
			return err
		}
		return txn.Delete(recordKey(sourceID))
	})
}

// DeleteUpdatedBefore walks the time index up to cutoff
func (s *BadgerStorage) DeleteUpdatedBefore(_ context.Context, cutoff time.Time) error {
	limit := updatedKey(cutoff.UnixNano(), "")
	var expired [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(updatedKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= string(limit) {
				break
			}
			expired = append(expired, key)
		}
		return nil
	})
	if err != nil || len(expired) == 0 {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range expired {
			// pu:<20 digit nanos>:<id>
			id := models.SourceID(key[len(updatedKeyPrefix)+21:])
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Delete(recordKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}
