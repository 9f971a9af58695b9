package tracker

import (
	"context"
	"fmt"

	"github.com/Nysah1997/qw/internal/storage"
)

// UpdateRecord runs mutate on the user's record under the per-user lock
// and persists the result when mutate returns true. The record passed to
// mutate is nil when the user has no record; mutate must not retain the
// pointer past its return. Returns whether a write was applied.
//
// This is the serialized read-modify-write primitive the milestone
// evaluator uses so its mark-and-freeze step can never interleave with a
// concurrent pause or stop on the same record.
func (t *Tracker) UpdateRecord(ctx context.Context, userID string, mutate func(record *storage.TimeRecord) bool) (bool, error) {
	defer t.lockUser(userID)()

	record, err := t.load(ctx, userID)
	if err != nil {
		return false, err
	}

	if !mutate(record) {
		return false, nil
	}
	if record == nil {
		return false, nil
	}

	if err := t.records.Upsert(ctx, *record); err != nil {
		return false, fmt.Errorf("persist update for %s: %w", userID, err)
	}
	return true, nil
}
