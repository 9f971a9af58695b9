package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Nysah1997/qw/internal/metrics"
	"github.com/Nysah1997/qw/internal/storage"
	"github.com/rs/zerolog"
)

// Tracker owns the per-user session state machine.
//
// Every mutating operation returns (applied, err). applied=false with a
// nil error is a precondition violation (for example pausing a user who
// is not active); a non-nil error means the durable write did not
// complete and the mutation must be treated as not applied.
//
// All read-modify-write operations are serialized per user id, so a
// command and a concurrent sweep evaluation can never interleave on the
// same record. Operations on different users proceed independently.
type Tracker struct {
	records storage.RecordStore
	clock   Clock
	logger  zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a tracker on top of a record store.
func New(records storage.RecordStore, clock Clock, logger zerolog.Logger) *Tracker {
	if clock == nil {
		clock = RealClock{}
	}
	return &Tracker{
		records: records,
		clock:   clock,
		logger:  logger.With().Str("component", "tracker").Logger(),
		locks:   make(map[string]*sync.Mutex),
	}
}

// lockUser acquires the per-user lock and returns its release func.
func (t *Tracker) lockUser(userID string) func() {
	t.mu.Lock()
	lock, ok := t.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[userID] = lock
	}
	t.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// load fetches a record, mapping ErrNotFound to a nil record.
func (t *Tracker) load(ctx context.Context, userID string) (*storage.TimeRecord, error) {
	record, err := t.records.Get(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", userID, err)
	}
	return record, nil
}

// PreRegister records a user as eligible for the scheduled start.
// Fails if a record already exists in any state.
func (t *Tracker) PreRegister(ctx context.Context, userID, name string, by *storage.Initiator) (bool, error) {
	defer t.lockUser(userID)()

	record, err := t.load(ctx, userID)
	if err != nil {
		return false, err
	}
	if record != nil {
		return false, nil
	}

	now := t.clock.Now()
	record = &storage.TimeRecord{
		UserID:          userID,
		Name:            name,
		PreRegisteredAt: &now,
		PreRegisteredBy: by,
	}
	if err := t.records.Upsert(ctx, *record); err != nil {
		return false, fmt.Errorf("persist pre-registration for %s: %w", userID, err)
	}

	t.logger.Info().Str("user_id", userID).Str("name", name).Msg("User pre-registered")
	return true, nil
}

// Start opens a session for an unregistered or pre-registered user.
// Fails if the user is already active or paused.
func (t *Tracker) Start(ctx context.Context, userID, name string) (bool, error) {
	defer t.lockUser(userID)()
	return t.startLocked(ctx, userID, name, false)
}

// StartFromPreRegistration opens a session for a pre-registered user.
// Used by the scheduled trigger; fails unless the record is in the
// pre-registered state.
func (t *Tracker) StartFromPreRegistration(ctx context.Context, userID string) (bool, error) {
	defer t.lockUser(userID)()
	return t.startLocked(ctx, userID, "", true)
}

func (t *Tracker) startLocked(ctx context.Context, userID, name string, requirePreRegistered bool) (bool, error) {
	record, err := t.load(ctx, userID)
	if err != nil {
		return false, err
	}

	if requirePreRegistered {
		if record == nil || !record.PreRegistered() {
			return false, nil
		}
		name = record.Name
	}

	if record != nil && record.Active {
		return false, nil
	}

	now := t.clock.Now()
	if record == nil {
		record = &storage.TimeRecord{UserID: userID}
	}
	if name != "" {
		record.Name = name
	}
	record.SessionStartedAt = &now
	record.Active = true
	record.Paused = false
	record.PauseStartedAt = nil
	record.PreRegisteredAt = nil

	if err := t.records.Upsert(ctx, *record); err != nil {
		return false, fmt.Errorf("persist session start for %s: %w", userID, err)
	}

	metrics.SessionsStarted.Inc()
	t.logger.Info().
		Str("user_id", userID).
		Str("name", record.Name).
		Bool("from_pre_registration", requirePreRegistered).
		Msg("Session started")
	return true, nil
}

// Pause suspends an active session, folding the open interval into the
// accumulated total and incrementing the pause count.
func (t *Tracker) Pause(ctx context.Context, userID string) (bool, error) {
	defer t.lockUser(userID)()

	record, err := t.load(ctx, userID)
	if err != nil {
		return false, err
	}
	if record == nil || !record.Active || record.Paused || record.SessionStartedAt == nil {
		return false, nil
	}

	now := t.clock.Now()
	record.AccumulatedSeconds += now.Sub(*record.SessionStartedAt).Seconds()
	record.SessionStartedAt = nil
	record.PauseStartedAt = &now
	record.Paused = true
	record.PauseCount++

	if err := t.records.Upsert(ctx, *record); err != nil {
		return false, fmt.Errorf("persist pause for %s: %w", userID, err)
	}

	metrics.PausesTotal.Inc()
	t.logger.Info().
		Str("user_id", userID).
		Int("pause_count", record.PauseCount).
		Float64("accumulated_seconds", record.AccumulatedSeconds).
		Msg("Session paused")
	return true, nil
}

// Resume reopens a paused session. The paused interval itself adds
// nothing to the accumulated total.
func (t *Tracker) Resume(ctx context.Context, userID string) (bool, error) {
	defer t.lockUser(userID)()

	record, err := t.load(ctx, userID)
	if err != nil {
		return false, err
	}
	if record == nil || !record.Active || !record.Paused {
		return false, nil
	}

	now := t.clock.Now()
	record.SessionStartedAt = &now
	record.PauseStartedAt = nil
	record.Paused = false

	if err := t.records.Upsert(ctx, *record); err != nil {
		return false, fmt.Errorf("persist resume for %s: %w", userID, err)
	}

	t.logger.Info().Str("user_id", userID).Msg("Session resumed")
	return true, nil
}

// Stop freezes a session: the open interval is folded into the
// accumulated total and the record becomes inactive but is retained.
// Unlike Pause this does not count against the pause limit.
func (t *Tracker) Stop(ctx context.Context, userID string) (bool, error) {
	defer t.lockUser(userID)()
	return t.stopLocked(ctx, userID)
}

func (t *Tracker) stopLocked(ctx context.Context, userID string) (bool, error) {
	record, err := t.load(ctx, userID)
	if err != nil {
		return false, err
	}
	if record == nil || !record.Active {
		return false, nil
	}

	if !record.Paused && record.SessionStartedAt != nil {
		record.AccumulatedSeconds += t.clock.Now().Sub(*record.SessionStartedAt).Seconds()
	}
	record.SessionStartedAt = nil
	record.PauseStartedAt = nil
	record.Active = false
	record.Paused = false

	if err := t.records.Upsert(ctx, *record); err != nil {
		return false, fmt.Errorf("persist stop for %s: %w", userID, err)
	}

	t.logger.Info().
		Str("user_id", userID).
		Float64("accumulated_seconds", record.AccumulatedSeconds).
		Msg("Session frozen")
	return true, nil
}

// Cancel removes a user's record entirely. All history is lost.
func (t *Tracker) Cancel(ctx context.Context, userID string) (bool, error) {
	defer t.lockUser(userID)()

	record, err := t.load(ctx, userID)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}

	if err := t.records.Delete(ctx, userID); err != nil {
		return false, fmt.Errorf("delete record %s: %w", userID, err)
	}

	metrics.CancellationsTotal.Inc()
	t.logger.Info().Str("user_id", userID).Msg("Tracking cancelled, record removed")
	return true, nil
}

// Reset zeroes the accumulated time and the notified milestone set but
// keeps the record, including its pause count.
func (t *Tracker) Reset(ctx context.Context, userID string) (bool, error) {
	defer t.lockUser(userID)()
	return t.resetLocked(ctx, userID)
}

func (t *Tracker) resetLocked(ctx context.Context, userID string) (bool, error) {
	record, err := t.load(ctx, userID)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}

	record.AccumulatedSeconds = 0
	record.SessionStartedAt = nil
	record.PauseStartedAt = nil
	record.Active = false
	record.Paused = false
	record.NotifiedMilestones = nil
	record.MilestoneCompleted = false

	if err := t.records.Upsert(ctx, *record); err != nil {
		return false, fmt.Errorf("persist reset for %s: %w", userID, err)
	}

	t.logger.Info().Str("user_id", userID).Msg("Accumulated time reset")
	return true, nil
}

// ResetAll resets every record and returns how many were reset.
func (t *Tracker) ResetAll(ctx context.Context) (int, error) {
	all, err := t.records.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load records: %w", err)
	}

	count := 0
	for userID := range all {
		unlock := t.lockUser(userID)
		ok, err := t.resetLocked(ctx, userID)
		unlock()
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

// ClearAll wipes every record from the store.
func (t *Tracker) ClearAll(ctx context.Context) error {
	if err := t.records.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	t.logger.Warn().Msg("All tracking records wiped")
	return nil
}

// Adjust adds deltaSeconds to a user's accumulated time (floored at
// zero), independent of session state. A positive adjustment creates the
// record when absent; a negative one requires an existing record.
func (t *Tracker) Adjust(ctx context.Context, userID, name string, deltaSeconds float64) (bool, error) {
	defer t.lockUser(userID)()

	record, err := t.load(ctx, userID)
	if err != nil {
		return false, err
	}
	if record == nil {
		if deltaSeconds < 0 {
			return false, nil
		}
		record = &storage.TimeRecord{UserID: userID, Name: name}
	}

	record.AccumulatedSeconds += deltaSeconds
	if record.AccumulatedSeconds < 0 {
		record.AccumulatedSeconds = 0
	}

	if err := t.records.Upsert(ctx, *record); err != nil {
		return false, fmt.Errorf("persist adjustment for %s: %w", userID, err)
	}

	metrics.AdjustmentsTotal.Inc()
	t.logger.Info().
		Str("user_id", userID).
		Float64("delta_seconds", deltaSeconds).
		Float64("accumulated_seconds", record.AccumulatedSeconds).
		Msg("Time adjusted")
	return true, nil
}

// ElapsedTime returns the authoritative elapsed seconds for a user:
// the accumulated closed intervals plus, while an unpaused session is
// open, the live interval since it started. Absent users report zero.
func (t *Tracker) ElapsedTime(ctx context.Context, userID string) (float64, error) {
	record, err := t.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	return t.elapsed(record), nil
}

// elapsed computes elapsed seconds from a record snapshot.
func (t *Tracker) elapsed(record *storage.TimeRecord) float64 {
	if record == nil {
		return 0
	}
	total := record.AccumulatedSeconds
	if record.Active && !record.Paused && record.SessionStartedAt != nil {
		total += t.clock.Now().Sub(*record.SessionStartedAt).Seconds()
	}
	return total
}

// OpenInterval returns how long the current unpaused session has been
// running, or zero when no unpaused session is open.
func (t *Tracker) OpenInterval(record *storage.TimeRecord) float64 {
	if record == nil || !record.Active || record.Paused || record.SessionStartedAt == nil {
		return 0
	}
	return t.clock.Now().Sub(*record.SessionStartedAt).Seconds()
}

// PausedDuration returns how long the current pause has lasted, or zero
// when the user is not paused.
func (t *Tracker) PausedDuration(ctx context.Context, userID string) (float64, error) {
	record, err := t.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	if record == nil || !record.Paused || record.PauseStartedAt == nil {
		return 0, nil
	}
	return t.clock.Now().Sub(*record.PauseStartedAt).Seconds(), nil
}

// Get returns a snapshot of one record, or nil when absent.
func (t *Tracker) Get(ctx context.Context, userID string) (*storage.TimeRecord, error) {
	return t.load(ctx, userID)
}
