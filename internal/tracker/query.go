package tracker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Nysah1997/qw/internal/storage"
)

// ListTracked returns a snapshot of every record keyed by user id.
func (t *Tracker) ListTracked(ctx context.Context) (map[string]storage.TimeRecord, error) {
	all, err := t.records.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	return all, nil
}

// ListPreRegistered returns every record in the pre-registered state,
// sorted by display name.
func (t *Tracker) ListPreRegistered(ctx context.Context) ([]storage.TimeRecord, error) {
	return t.ListFiltered(ctx, func(r storage.TimeRecord) bool {
		return r.PreRegistered()
	})
}

// ListActive returns every record with an open unpaused session, sorted
// by display name.
func (t *Tracker) ListActive(ctx context.Context) ([]storage.TimeRecord, error) {
	return t.ListFiltered(ctx, func(r storage.TimeRecord) bool {
		return r.Active && !r.Paused
	})
}

// ListFiltered returns the records matching pred, sorted by display name.
// Records whose user is no longer resolvable on the platform still list
// under their stored display name.
func (t *Tracker) ListFiltered(ctx context.Context, pred func(storage.TimeRecord) bool) ([]storage.TimeRecord, error) {
	all, err := t.records.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	matched := make([]storage.TimeRecord, 0, len(all))
	for _, record := range all {
		if pred == nil || pred(record) {
			matched = append(matched, record)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		a := strings.ToLower(matched[i].Name)
		b := strings.ToLower(matched[j].Name)
		if a == b {
			return matched[i].UserID < matched[j].UserID
		}
		return a < b
	})
	return matched, nil
}
