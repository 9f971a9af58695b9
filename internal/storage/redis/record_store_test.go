package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Nysah1997/qw/internal/config"
	"github.com/Nysah1997/qw/internal/storage"
	"github.com/alicebob/miniredis/v2"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := config.RedisConfig{
		Host:         mr.Addr(), // full "host:port" address
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestRecordStore_UpsertGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	records := store.Records()

	started := time.Now().UTC().Truncate(time.Second)
	record := storage.TimeRecord{
		UserID:             "user-1",
		Name:               "Alice",
		AccumulatedSeconds: 4900,
		SessionStartedAt:   &started,
		Active:             true,
		PauseCount:         2,
		NotifiedMilestones: []int{1},
	}

	if err := records.Upsert(ctx, record); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := records.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "Alice" || got.AccumulatedSeconds != 4900 || got.PauseCount != 2 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.HasNotified(1) {
		t.Fatalf("notified milestones not preserved: %v", got.NotifiedMilestones)
	}
}

func TestRecordStore_GetMissing(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.Records().Get(context.Background(), "nobody")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordStore_GetAll(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	records := store.Records()

	for _, id := range []string{"user-1", "user-2"} {
		if err := records.Upsert(ctx, storage.TimeRecord{UserID: id, Name: id}); err != nil {
			t.Fatalf("Upsert %s failed: %v", id, err)
		}
	}

	all, err := records.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}
	if _, ok := all["user-2"]; !ok {
		t.Fatalf("user-2 missing from snapshot: %v", all)
	}
}

func TestRecordStore_DeleteAndClear(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	records := store.Records()

	for _, id := range []string{"user-1", "user-2"} {
		if err := records.Upsert(ctx, storage.TimeRecord{UserID: id, Name: id}); err != nil {
			t.Fatalf("Upsert %s failed: %v", id, err)
		}
	}

	if err := records.Delete(ctx, "user-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := records.Get(ctx, "user-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	if err := records.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	all, err := records.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll after clear failed: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty store, got %d records", len(all))
	}
}
