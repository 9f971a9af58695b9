// Package milestone detects integer-hour thresholds crossed by a user's
// elapsed time and turns them into exactly-once notification events.
package milestone

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Nysah1997/qw/internal/metrics"
	"github.com/Nysah1997/qw/internal/roles"
	"github.com/Nysah1997/qw/internal/storage"
	"github.com/Nysah1997/qw/internal/tracker"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// hourSeconds is the milestone granularity.
const hourSeconds = 3600

// Notification is the event emitted when a user crosses one or more
// hour thresholds. Delivery and retry are entirely the caller's concern.
type Notification struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	ExternalUser bool      `json:"external_user"`
	Hours        int       `json:"hours"`
	TotalSeconds float64   `json:"total_seconds"`
	EmittedAt    time.Time `json:"emitted_at"`
}

// Evaluator detects newly crossed hour thresholds for a record and
// freezes the session once a notification fires.
type Evaluator struct {
	tracker       *tracker.Tracker
	privileges    roles.Lookup
	extendedHours int
	clock         tracker.Clock
	logger        zerolog.Logger
}

// NewEvaluator creates a milestone evaluator. extendedHours is the
// terminal threshold for users holding the extended-limit privilege.
func NewEvaluator(t *tracker.Tracker, privileges roles.Lookup, extendedHours int, clock tracker.Clock, logger zerolog.Logger) *Evaluator {
	if clock == nil {
		clock = tracker.RealClock{}
	}
	return &Evaluator{
		tracker:       t,
		privileges:    privileges,
		extendedHours: extendedHours,
		clock:         clock,
		logger:        logger.With().Str("component", "milestone").Logger(),
	}
}

// Evaluate checks one user for newly crossed hour thresholds.
//
// It only acts on a record that is active, unpaused, and whose current
// open interval is at least one hour. Every crossed hour not yet
// notified is marked, the session is frozen, and at most one
// notification is returned, carrying the highest crossed hour. Repeat
// calls with no elapsed-time change return nil.
//
// The mark-and-freeze step runs as a single serialized mutation against
// the record; the notification is built only after that mutation has
// been durably committed.
func (e *Evaluator) Evaluate(ctx context.Context, userID string) (*Notification, error) {
	// Cheap pre-check outside the lock: skips the privilege lookup for
	// the common sub-hour case.
	record, err := e.tracker.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", userID, err)
	}
	if record == nil || !record.Active || record.Paused {
		return nil, nil
	}
	if e.tracker.OpenInterval(record) < hourSeconds {
		return nil, nil
	}

	extended, err := e.privileges.HasExtendedLimit(ctx, userID)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("Privilege lookup failed, assuming standard limit")
		extended = false
	}

	var (
		crossed      []int
		totalSeconds float64
		name         string
		external     bool
	)

	applied, err := e.tracker.UpdateRecord(ctx, userID, func(r *storage.TimeRecord) bool {
		if r == nil || !r.Active || r.Paused || r.SessionStartedAt == nil {
			return false
		}
		open := e.clock.Now().Sub(*r.SessionStartedAt).Seconds()
		if open < hourSeconds {
			return false
		}

		total := r.AccumulatedSeconds + open
		totalHours := int(total) / hourSeconds

		crossed = crossed[:0]
		for h := 1; h <= totalHours; h++ {
			if !r.HasNotified(h) {
				crossed = append(crossed, h)
			}
		}
		if len(crossed) == 0 {
			return false
		}

		for _, h := range crossed {
			r.MarkNotified(h)
		}

		// Freeze: fold the open interval and close the session so time
		// stops accruing until an explicit restart.
		r.AccumulatedSeconds = total
		r.SessionStartedAt = nil
		r.PauseStartedAt = nil
		r.Active = false
		r.Paused = false

		if extended && crossed[len(crossed)-1] >= e.extendedHours {
			r.MilestoneCompleted = true
		}

		totalSeconds = total
		name = r.Name
		external = r.ExternalUser
		return true
	})
	if err != nil {
		return nil, err
	}
	if !applied || len(crossed) == 0 {
		return nil, nil
	}

	hours := crossed[len(crossed)-1]
	metrics.MilestonesNotified.WithLabelValues(strconv.Itoa(hours)).Inc()
	e.logger.Info().
		Str("user_id", userID).
		Str("name", name).
		Ints("crossed", crossed).
		Int("hours", hours).
		Float64("total_seconds", totalSeconds).
		Msg("Milestone reached, session frozen")

	return &Notification{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         name,
		ExternalUser: external,
		Hours:        hours,
		TotalSeconds: totalSeconds,
		EmittedAt:    e.clock.Now(),
	}, nil
}
