package schedule

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Nysah1997/qw/internal/notify"
	"github.com/Nysah1997/qw/internal/storage"
	"github.com/Nysah1997/qw/internal/storage/bolt"
	"github.com/Nysah1997/qw/internal/tracker"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.MovementEvent
}

func (n *recordingNotifier) AutoStarted(_ context.Context, e notify.MovementEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func newTestAutoStart(t *testing.T, startTime string) (*AutoStart, *tracker.Tracker, *recordingNotifier) {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "test.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	trk := tracker.New(store.Records(), tracker.RealClock{}, zerolog.Nop())
	notifier := &recordingNotifier{}

	auto, err := New(trk, notifier, startTime, "UTC", zerolog.Nop())
	require.NoError(t, err)
	return auto, trk, notifier
}

func TestNewRejectsBadInput(t *testing.T) {
	store, err := bolt.Open(filepath.Join(t.TempDir(), "test.bolt"))
	require.NoError(t, err)
	defer store.Close()
	trk := tracker.New(store.Records(), tracker.RealClock{}, zerolog.Nop())

	_, err = New(trk, nil, "25:99", "UTC", zerolog.Nop())
	require.Error(t, err)

	_, err = New(trk, nil, "13:00", "Not/AZone", zerolog.Nop())
	require.Error(t, err)
}

func TestNextRun(t *testing.T) {
	auto, _, _ := newTestAutoStart(t, "13:00")

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"before today's run",
			time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
			time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC),
		},
		{
			"after today's run",
			time.Date(2025, 6, 1, 13, 0, 1, 0, time.UTC),
			time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC),
		},
		{
			"exactly at the run",
			time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC),
			time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := auto.NextRun(tt.now)
			require.True(t, got.Equal(tt.want), "NextRun(%v) = %v, want %v", tt.now, got, tt.want)
		})
	}
}

func TestRunOnceStartsPreRegistered(t *testing.T) {
	auto, trk, notifier := newTestAutoStart(t, "13:00")
	ctx := context.Background()

	by := &storage.Initiator{ID: "m1", Name: "mod"}
	for _, id := range []string{"u1", "u2"} {
		ok, err := trk.PreRegister(ctx, id, "user-"+id, by)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// An already-running user must not be touched.
	_, err := trk.Start(ctx, "u3", "carol")
	require.NoError(t, err)

	auto.RunOnce(ctx)

	for _, id := range []string{"u1", "u2"} {
		record, err := trk.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, record.Active, "pre-registered user %s should be running", id)
		require.False(t, record.PreRegistered())
	}

	require.Len(t, notifier.events, 1)
	require.Len(t, notifier.events[0].StartedUsers, 2)
}

func TestRunOnceNoPreRegistrations(t *testing.T) {
	auto, _, notifier := newTestAutoStart(t, "13:00")

	auto.RunOnce(context.Background())

	require.Empty(t, notifier.events, "no movement event when nobody was started")
}
