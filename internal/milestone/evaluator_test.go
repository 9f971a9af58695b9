package milestone

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Nysah1997/qw/internal/roles"
	"github.com/Nysah1997/qw/internal/storage/bolt"
	"github.com/Nysah1997/qw/internal/tracker"
)

func newTestEvaluator(t *testing.T, lookup roles.Lookup) (*Evaluator, *tracker.Tracker, *tracker.TestClock) {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "test.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := &tracker.TestClock{CurrentTime: time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)}
	trk := tracker.New(store.Records(), clock, zerolog.Nop())
	if lookup == nil {
		lookup = roles.Static{Role: roles.TypeNormal}
	}
	return NewEvaluator(trk, lookup, 4, clock, zerolog.Nop()), trk, clock
}

func TestEvaluateBelowOneHour(t *testing.T) {
	eval, trk, clock := newTestEvaluator(t, nil)
	ctx := context.Background()

	_, err := trk.Start(ctx, "u1", "alice")
	require.NoError(t, err)
	clock.Advance(59 * time.Minute)

	n, err := eval.Evaluate(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, n)

	record, err := trk.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, record.Active, "sub-hour sessions must stay open")
}

func TestEvaluateFirstHourFreezes(t *testing.T) {
	eval, trk, clock := newTestEvaluator(t, nil)
	ctx := context.Background()

	_, err := trk.Start(ctx, "u1", "alice")
	require.NoError(t, err)
	clock.Advance(61 * time.Minute)

	n, err := eval.Evaluate(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, 1, n.Hours)
	require.Equal(t, "u1", n.UserID)
	require.Equal(t, "alice", n.Name)
	require.InDelta(t, 3660, n.TotalSeconds, 0.001)
	require.NotEmpty(t, n.ID)

	record, err := trk.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, record.Active, "notification must freeze the session")
	require.Nil(t, record.SessionStartedAt)
	require.InDelta(t, 3660, record.AccumulatedSeconds, 0.001)
	require.Equal(t, []int{1}, record.NotifiedMilestones)
	require.False(t, record.MilestoneCompleted)
}

func TestEvaluateIdempotent(t *testing.T) {
	eval, trk, clock := newTestEvaluator(t, nil)
	ctx := context.Background()

	_, err := trk.Start(ctx, "u1", "alice")
	require.NoError(t, err)
	clock.Advance(65 * time.Minute)

	n, err := eval.Evaluate(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, n)

	// The session is frozen, so a second pass finds nothing.
	n, err = eval.Evaluate(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, n)

	// Even after restarting, hour 1 is already marked: the next event
	// fires at hour 2.
	_, err = trk.Start(ctx, "u1", "alice")
	require.NoError(t, err)
	clock.Advance(61 * time.Minute)

	n, err = eval.Evaluate(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, 2, n.Hours)
}

func TestEvaluateCollapsesMissedHours(t *testing.T) {
	eval, trk, clock := newTestEvaluator(t, nil)
	ctx := context.Background()

	// A delayed sweep: the user runs from 0:50 accumulated to 2:10
	// total in one open interval. Hours 1 and 2 are both unnotified.
	_, err := trk.Adjust(ctx, "u1", "alice", 50*60)
	require.NoError(t, err)
	_, err = trk.Start(ctx, "u1", "alice")
	require.NoError(t, err)
	clock.Advance(80 * time.Minute)

	n, err := eval.Evaluate(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, 2, n.Hours, "only the highest crossed hour is announced")

	record, err := trk.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, record.NotifiedMilestones, "every crossed hour is marked")
	require.InDelta(t, 130*60, record.AccumulatedSeconds, 0.001)
}

func TestEvaluateSkipsPaused(t *testing.T) {
	eval, trk, clock := newTestEvaluator(t, nil)
	ctx := context.Background()

	_, err := trk.Start(ctx, "u1", "alice")
	require.NoError(t, err)
	clock.Advance(70 * time.Minute)
	_, err = trk.Pause(ctx, "u1")
	require.NoError(t, err)

	n, err := eval.Evaluate(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, n, "paused sessions are never evaluated")

	record, err := trk.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, record.Paused)
	require.Empty(t, record.NotifiedMilestones)
}

func TestEvaluateShortIntervalLargeTotal(t *testing.T) {
	eval, trk, clock := newTestEvaluator(t, nil)
	ctx := context.Background()

	// Accumulated total is past an hour but the open interval is short;
	// the gate requires a full hour of open interval.
	_, err := trk.Adjust(ctx, "u1", "alice", 3500)
	require.NoError(t, err)
	_, err = trk.Start(ctx, "u1", "alice")
	require.NoError(t, err)
	clock.Advance(5 * time.Minute)

	n, err := eval.Evaluate(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, n)
}

func TestEvaluateExtendedCompletion(t *testing.T) {
	eval, trk, clock := newTestEvaluator(t, roles.Static{Role: roles.TypeGold, Extended: true})
	ctx := context.Background()

	_, err := trk.Adjust(ctx, "u1", "alice", 3*3600)
	require.NoError(t, err)
	_, err = trk.Start(ctx, "u1", "alice")
	require.NoError(t, err)
	clock.Advance(61 * time.Minute)

	n, err := eval.Evaluate(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, 4, n.Hours)

	record, err := trk.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, record.MilestoneCompleted, "reaching the extended cap completes the goal")
}

func TestEvaluateNormalUserNeverCompletes(t *testing.T) {
	eval, trk, clock := newTestEvaluator(t, roles.Static{Role: roles.TypeNormal})
	ctx := context.Background()

	_, err := trk.Adjust(ctx, "u1", "alice", 3*3600)
	require.NoError(t, err)
	_, err = trk.Start(ctx, "u1", "alice")
	require.NoError(t, err)
	clock.Advance(61 * time.Minute)

	n, err := eval.Evaluate(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, 4, n.Hours)

	record, err := trk.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, record.MilestoneCompleted)
}

func TestEvaluateAbsentUser(t *testing.T) {
	eval, _, _ := newTestEvaluator(t, nil)

	n, err := eval.Evaluate(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, n)
}
