package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Nysah1997/qw/internal/milestone"
	"github.com/Nysah1997/qw/internal/notify"
	"github.com/Nysah1997/qw/internal/roles"
	"github.com/Nysah1997/qw/internal/storage"
	"github.com/Nysah1997/qw/internal/storage/bolt"
	"github.com/Nysah1997/qw/internal/tracker"
)

// recordingNotifier captures events instead of delivering them.
type recordingNotifier struct {
	mu            sync.Mutex
	milestones    []milestone.Notification
	pauses        []notify.PauseEvent
	cancellations []notify.CancellationEvent
}

func (n *recordingNotifier) MilestoneReached(_ context.Context, e milestone.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.milestones = append(n.milestones, e)
}

func (n *recordingNotifier) SessionPaused(_ context.Context, e notify.PauseEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pauses = append(n.pauses, e)
}

func (n *recordingNotifier) TrackingCancelled(_ context.Context, e notify.CancellationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancellations = append(n.cancellations, e)
}

func newTestService(t *testing.T, lookup roles.Lookup) (*Service, *tracker.Tracker, *tracker.TestClock, *recordingNotifier) {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "test.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := &tracker.TestClock{CurrentTime: time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)}
	trk := tracker.New(store.Records(), clock, zerolog.Nop())
	if lookup == nil {
		lookup = roles.Static{Role: roles.TypeNormal}
	}
	eval := milestone.NewEvaluator(trk, lookup, 4, clock, zerolog.Nop())
	notifier := &recordingNotifier{}

	svc := New(trk, eval, lookup, notifier, Config{
		Limits:      Limits{StandardHours: 1, GoldHours: 2, ExtendedHours: 4},
		PauseLimit:  3,
		StartHour:   13,
		StartMinute: 0,
		Location:    time.UTC,
	}, clock, zerolog.Nop())

	return svc, trk, clock, notifier
}

func TestPauseLimitAutoCancels(t *testing.T) {
	svc, trk, clock, notifier := newTestService(t, nil)
	ctx := context.Background()

	_, err := trk.Start(ctx, "u1", "alice")
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		clock.Advance(time.Minute)
		outcome, err := svc.Pause(ctx, "u1", "mod")
		require.NoError(t, err)
		require.Equal(t, PausePaused, outcome)

		ok, _, err := svc.Resume(ctx, "u1")
		require.NoError(t, err)
		require.True(t, ok)
	}

	clock.Advance(time.Minute)
	outcome, err := svc.Pause(ctx, "u1", "mod")
	require.NoError(t, err)
	require.Equal(t, PauseAutoCancelled, outcome)

	// The record is gone.
	record, err := trk.Get(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, record)

	require.Len(t, notifier.pauses, 2, "the limit-reaching pause emits a cancellation, not a pause event")
	require.Len(t, notifier.cancellations, 1)
	require.True(t, notifier.cancellations[0].Auto)
	require.Equal(t, 3, notifier.cancellations[0].PauseCount)
}

func TestPauseEmitsEvent(t *testing.T) {
	svc, trk, clock, notifier := newTestService(t, nil)
	ctx := context.Background()

	_, err := trk.Start(ctx, "u1", "alice")
	require.NoError(t, err)
	clock.Advance(25 * time.Minute)

	outcome, err := svc.Pause(ctx, "u1", "mod")
	require.NoError(t, err)
	require.Equal(t, PausePaused, outcome)

	require.Len(t, notifier.pauses, 1)
	event := notifier.pauses[0]
	require.Equal(t, "u1", event.UserID)
	require.InDelta(t, 1500, event.TotalSeconds, 0.001)
	require.InDelta(t, 1500, event.SessionSeconds, 0.001)
	require.Equal(t, 1, event.PauseCount)
	require.Equal(t, "25 Minutes", event.FormattedTotal)
}

func TestPauseNotActive(t *testing.T) {
	svc, _, _, notifier := newTestService(t, nil)

	outcome, err := svc.Pause(context.Background(), "missing", "mod")
	require.NoError(t, err)
	require.Equal(t, PauseNotActive, outcome)
	require.Empty(t, notifier.pauses)
}

func TestStartBeforeWindowPreRegisters(t *testing.T) {
	svc, trk, clock, _ := newTestService(t, nil)
	ctx := context.Background()

	// 09:30 is before the 13:00 start window.
	clock.CurrentTime = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

	outcome, err := svc.Start(ctx, "u1", "alice", storage.Initiator{ID: "m1", Name: "mod"})
	require.NoError(t, err)
	require.Equal(t, StartPreRegistered, outcome)

	record, err := trk.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, record.PreRegistered())
	require.NotNil(t, record.PreRegisteredBy)
	require.Equal(t, "m1", record.PreRegisteredBy.ID)

	// Asking again before the window is refused.
	outcome, err = svc.Start(ctx, "u1", "alice", storage.Initiator{ID: "m1", Name: "mod"})
	require.NoError(t, err)
	require.Equal(t, StartAlreadyTracked, outcome)
}

func TestStartInsideWindow(t *testing.T) {
	svc, trk, _, _ := newTestService(t, nil)
	ctx := context.Background()

	outcome, err := svc.Start(ctx, "u1", "alice", storage.Initiator{})
	require.NoError(t, err)
	require.Equal(t, StartStarted, outcome)

	record, err := trk.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, record.Active)

	outcome, err = svc.Start(ctx, "u1", "alice", storage.Initiator{})
	require.NoError(t, err)
	require.Equal(t, StartAlreadyTracked, outcome)
}

func TestStartRefusedAtRoleCap(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		lookup  roles.Lookup
		seconds float64
		want    StartOutcome
	}{
		{"normal at 1h cap", roles.Static{Role: roles.TypeNormal}, 3600, StartLimitReached},
		{"normal under cap", roles.Static{Role: roles.TypeNormal}, 3599, StartStarted},
		{"gold under 2h cap", roles.Static{Role: roles.TypeGold}, 3600, StartStarted},
		{"gold at 2h cap", roles.Static{Role: roles.TypeGold}, 7200, StartLimitReached},
		{"extended under 4h cap", roles.Static{Role: roles.TypeGold, Extended: true}, 7200, StartStarted},
		{"extended at 4h cap", roles.Static{Role: roles.TypeGold, Extended: true}, 14400, StartLimitReached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, trk, _, _ := newTestService(t, tt.lookup)

			_, err := trk.Adjust(ctx, "u1", "alice", tt.seconds)
			require.NoError(t, err)

			outcome, err := svc.Start(ctx, "u1", "alice", storage.Initiator{})
			require.NoError(t, err)
			require.Equal(t, tt.want, outcome)
		})
	}
}

func TestStartPausedSaysResume(t *testing.T) {
	svc, trk, clock, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := trk.Start(ctx, "u1", "alice")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = trk.Pause(ctx, "u1")
	require.NoError(t, err)

	outcome, err := svc.Start(ctx, "u1", "alice", storage.Initiator{})
	require.NoError(t, err)
	require.Equal(t, StartPaused, outcome)
}

func TestAddMinutesTriggersMilestone(t *testing.T) {
	svc, trk, clock, notifier := newTestService(t, nil)
	ctx := context.Background()

	_, err := trk.Start(ctx, "u1", "alice")
	require.NoError(t, err)
	clock.Advance(62 * time.Minute)

	ok, err := svc.AddMinutes(ctx, "u1", "alice", 10)
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, notifier.milestones, 1)
	require.Equal(t, 1, notifier.milestones[0].Hours)

	record, err := trk.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, record.Active, "milestone freeze applies on adjustment-driven evaluation too")
	require.InDelta(t, 72*60, record.AccumulatedSeconds, 0.001)
}

func TestSubtractMinutesFloors(t *testing.T) {
	svc, trk, _, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := trk.Adjust(ctx, "u1", "alice", 600)
	require.NoError(t, err)

	ok, err := svc.SubtractMinutes(ctx, "u1", 20)
	require.NoError(t, err)
	require.True(t, ok)

	record, err := trk.Get(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, record.AccumulatedSeconds)

	ok, err = svc.SubtractMinutes(ctx, "missing", 5)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManualCancelEmitsEvent(t *testing.T) {
	svc, trk, clock, notifier := newTestService(t, nil)
	ctx := context.Background()

	_, err := trk.Start(ctx, "u1", "alice")
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	_, err = trk.Pause(ctx, "u1")
	require.NoError(t, err)

	ok, err := svc.Cancel(ctx, "u1", "mod")
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, notifier.cancellations, 1)
	require.False(t, notifier.cancellations[0].Auto)
	require.Equal(t, "mod", notifier.cancellations[0].By)

	ok, err = svc.Cancel(ctx, "u1", "mod")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResumeReportsPausedDuration(t *testing.T) {
	svc, trk, clock, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := trk.Start(ctx, "u1", "alice")
	require.NoError(t, err)
	_, err = trk.Pause(ctx, "u1")
	require.NoError(t, err)

	clock.Advance(3 * time.Minute)

	ok, pausedFor, err := svc.Resume(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 180, pausedFor, 0.001)
}
