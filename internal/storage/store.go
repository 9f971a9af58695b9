package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store is the root storage interface.
type Store interface {
	Close() error
	Records() RecordStore
}

// RecordStore persists per-user time records.
//
// Every operation is atomic with respect to a single record: a
// read-modify-write through Get/Upsert never observes a partially written
// record. GetAll returns a snapshot; callers must not assume it stays
// valid under concurrent mutation.
type RecordStore interface {
	Get(ctx context.Context, userID string) (*TimeRecord, error)
	GetAll(ctx context.Context) (map[string]TimeRecord, error)
	Upsert(ctx context.Context, record TimeRecord) error
	Delete(ctx context.Context, userID string) error
	ClearAll(ctx context.Context) error
}
