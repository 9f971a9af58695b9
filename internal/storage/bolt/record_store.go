package bolt

import (
	"context"
	"fmt"

	"github.com/Nysah1997/qw/internal/storage"
	"go.etcd.io/bbolt"
)

type recordStore struct {
	db *bbolt.DB
}

func (s *recordStore) Get(ctx context.Context, userID string) (*storage.TimeRecord, error) {
	var record *storage.TimeRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketRecords))
		if b == nil {
			return fmt.Errorf("records bucket missing")
		}
		data := b.Get([]byte(userID))
		if data == nil {
			return storage.ErrNotFound
		}
		record = &storage.TimeRecord{}
		return unmarshal(data, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *recordStore) GetAll(ctx context.Context) (map[string]storage.TimeRecord, error) {
	records := make(map[string]storage.TimeRecord)
	return records, s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRecords))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var record storage.TimeRecord
			if err := unmarshal(v, &record); err != nil {
				return err
			}
			records[string(k)] = record
			return nil
		})
	})
}

func (s *recordStore) Upsert(ctx context.Context, record storage.TimeRecord) error {
	data, err := marshal(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketRecords))
		if b == nil {
			return fmt.Errorf("records bucket missing")
		}
		return b.Put([]byte(record.UserID), data)
	})
}

func (s *recordStore) Delete(ctx context.Context, userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketRecords))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(userID))
	})
}

func (s *recordStore) ClearAll(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := tx.DeleteBucket([]byte(bucketRecords)); err != nil {
			return fmt.Errorf("delete records bucket: %w", err)
		}
		if _, err := tx.CreateBucket([]byte(bucketRecords)); err != nil {
			return fmt.Errorf("recreate records bucket: %w", err)
		}
		return nil
	})
}
