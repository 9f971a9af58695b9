// Package service composes the tracking engine with the policies that
// live outside the state machine: role-based start caps, the
// pre-registration window, and auto-cancellation on the pause limit.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Nysah1997/qw/internal/milestone"
	"github.com/Nysah1997/qw/internal/notify"
	"github.com/Nysah1997/qw/internal/roles"
	"github.com/Nysah1997/qw/internal/storage"
	"github.com/Nysah1997/qw/internal/tracker"
	"github.com/rs/zerolog"
)

// Notifier receives committed events for delivery.
type Notifier interface {
	MilestoneReached(ctx context.Context, n milestone.Notification)
	SessionPaused(ctx context.Context, e notify.PauseEvent)
	TrackingCancelled(ctx context.Context, e notify.CancellationEvent)
}

// Limits holds the per-role hour caps on accumulated time.
type Limits struct {
	StandardHours int
	GoldHours     int
	ExtendedHours int
}

// Config holds service policy settings.
type Config struct {
	Limits      Limits
	PauseLimit  int
	StartHour   int
	StartMinute int
	Location    *time.Location
}

// StartOutcome describes the result of a start command.
type StartOutcome int

const (
	StartStarted StartOutcome = iota
	StartPreRegistered
	StartAlreadyTracked
	StartPaused
	StartLimitReached
)

// PauseOutcome describes the result of a pause command.
type PauseOutcome int

const (
	PausePaused PauseOutcome = iota
	PauseAutoCancelled
	PauseNotActive
)

// Service is the command surface over the tracking engine.
type Service struct {
	tracker   *tracker.Tracker
	evaluator *milestone.Evaluator
	roles     roles.Lookup
	notifier  Notifier
	cfg       Config
	clock     tracker.Clock
	logger    zerolog.Logger
}

// New creates the service.
func New(t *tracker.Tracker, e *milestone.Evaluator, r roles.Lookup, n Notifier, cfg Config, clock tracker.Clock, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = tracker.RealClock{}
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.PauseLimit <= 0 {
		cfg.PauseLimit = 3
	}
	return &Service{
		tracker:   t,
		evaluator: e,
		roles:     r,
		notifier:  n,
		cfg:       cfg,
		clock:     clock,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// hourCap returns the accumulated-time cap in hours for a user.
func (s *Service) hourCap(ctx context.Context, userID string) (int, error) {
	extended, err := s.roles.HasExtendedLimit(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("privilege lookup for %s: %w", userID, err)
	}
	if extended {
		return s.cfg.Limits.ExtendedHours, nil
	}

	role, err := s.roles.RoleType(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("role lookup for %s: %w", userID, err)
	}
	if role == roles.TypeGold {
		return s.cfg.Limits.GoldHours, nil
	}
	return s.cfg.Limits.StandardHours, nil
}

// beforeStartWindow reports whether now is before today's scheduled
// start time in the configured timezone.
func (s *Service) beforeStartWindow() bool {
	now := s.clock.Now().In(s.cfg.Location)
	if now.Hour() != s.cfg.StartHour {
		return now.Hour() < s.cfg.StartHour
	}
	return now.Minute() < s.cfg.StartMinute
}

// Start begins tracking a user, or pre-registers them when invoked
// before the daily start window. Refused when the role's hour cap is
// already reached, or when the user is already tracked.
func (s *Service) Start(ctx context.Context, userID, name string, by storage.Initiator) (StartOutcome, error) {
	cap, err := s.hourCap(ctx, userID)
	if err != nil {
		return StartAlreadyTracked, err
	}

	elapsed, err := s.tracker.ElapsedTime(ctx, userID)
	if err != nil {
		return StartAlreadyTracked, err
	}
	if elapsed >= float64(cap)*3600 {
		return StartLimitReached, nil
	}

	record, err := s.tracker.Get(ctx, userID)
	if err != nil {
		return StartAlreadyTracked, err
	}
	if record != nil && record.Paused {
		// A paused session is resumed, not restarted.
		return StartPaused, nil
	}

	if s.beforeStartWindow() {
		ok, err := s.tracker.PreRegister(ctx, userID, name, &by)
		if err != nil {
			return StartAlreadyTracked, err
		}
		if !ok {
			return StartAlreadyTracked, nil
		}
		return StartPreRegistered, nil
	}

	ok, err := s.tracker.Start(ctx, userID, name)
	if err != nil {
		return StartAlreadyTracked, err
	}
	if !ok {
		return StartAlreadyTracked, nil
	}
	return StartStarted, nil
}

// Pause suspends a user's session. Reaching the pause limit cancels the
// record entirely; the cancellation is a second, composed step after the
// pause itself has committed.
func (s *Service) Pause(ctx context.Context, userID, by string) (PauseOutcome, error) {
	before, err := s.tracker.Get(ctx, userID)
	if err != nil {
		return PauseNotActive, err
	}
	accumulatedBefore := 0.0
	if before != nil {
		accumulatedBefore = before.AccumulatedSeconds
	}

	ok, err := s.tracker.Pause(ctx, userID)
	if err != nil {
		return PauseNotActive, err
	}
	if !ok {
		return PauseNotActive, nil
	}

	record, err := s.tracker.Get(ctx, userID)
	if err != nil || record == nil {
		return PausePaused, err
	}

	total := record.AccumulatedSeconds
	sessionSeconds := total - accumulatedBefore

	if record.PauseCount >= s.cfg.PauseLimit {
		if _, err := s.tracker.Cancel(ctx, userID); err != nil {
			return PausePaused, fmt.Errorf("auto-cancel after pause limit: %w", err)
		}
		s.logger.Info().
			Str("user_id", userID).
			Int("pause_count", record.PauseCount).
			Msg("Pause limit reached, tracking auto-cancelled")
		if s.notifier != nil {
			s.notifier.TrackingCancelled(ctx, notify.CancellationEvent{
				UserID:         userID,
				Name:           record.Name,
				FormattedTotal: tracker.FormatSeconds(total),
				PauseCount:     record.PauseCount,
				Auto:           true,
				By:             by,
			})
		}
		return PauseAutoCancelled, nil
	}

	if s.notifier != nil {
		s.notifier.SessionPaused(ctx, notify.PauseEvent{
			UserID:         userID,
			Name:           record.Name,
			TotalSeconds:   total,
			FormattedTotal: tracker.FormatSeconds(total),
			SessionSeconds: sessionSeconds,
			PauseCount:     record.PauseCount,
			By:             by,
		})
	}
	return PausePaused, nil
}

// Resume reopens a paused session and returns how long the pause lasted.
func (s *Service) Resume(ctx context.Context, userID string) (bool, float64, error) {
	pausedFor, err := s.tracker.PausedDuration(ctx, userID)
	if err != nil {
		return false, 0, err
	}

	ok, err := s.tracker.Resume(ctx, userID)
	if err != nil || !ok {
		return ok, 0, err
	}
	return true, pausedFor, nil
}

// AddMinutes credits minutes to a user and re-evaluates milestones.
func (s *Service) AddMinutes(ctx context.Context, userID, name string, minutes int) (bool, error) {
	if minutes <= 0 {
		return false, nil
	}

	ok, err := s.tracker.Adjust(ctx, userID, name, float64(minutes)*60)
	if err != nil || !ok {
		return ok, err
	}

	notification, err := s.evaluator.Evaluate(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Milestone evaluation after adjustment failed")
	} else if notification != nil && s.notifier != nil {
		s.notifier.MilestoneReached(ctx, *notification)
	}
	return true, nil
}

// SubtractMinutes debits minutes from a user, floored at zero.
func (s *Service) SubtractMinutes(ctx context.Context, userID string, minutes int) (bool, error) {
	if minutes <= 0 {
		return false, nil
	}
	return s.tracker.Adjust(ctx, userID, "", -float64(minutes)*60)
}

// Cancel removes a user's record and emits a cancellation event.
func (s *Service) Cancel(ctx context.Context, userID, by string) (bool, error) {
	record, err := s.tracker.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	total := record.AccumulatedSeconds

	ok, err := s.tracker.Cancel(ctx, userID)
	if err != nil || !ok {
		return ok, err
	}

	if s.notifier != nil {
		s.notifier.TrackingCancelled(ctx, notify.CancellationEvent{
			UserID:         userID,
			Name:           record.Name,
			FormattedTotal: tracker.FormatSeconds(total),
			PauseCount:     record.PauseCount,
			Auto:           false,
			By:             by,
		})
	}
	return true, nil
}

// Reset zeroes one user's accumulated time.
func (s *Service) Reset(ctx context.Context, userID string) (bool, error) {
	return s.tracker.Reset(ctx, userID)
}

// ResetAll zeroes every record's accumulated time.
func (s *Service) ResetAll(ctx context.Context) (int, error) {
	return s.tracker.ResetAll(ctx)
}

// ClearAll wipes the whole store.
func (s *Service) ClearAll(ctx context.Context) error {
	return s.tracker.ClearAll(ctx)
}

// Tracker exposes the underlying engine for read-only callers.
func (s *Service) Tracker() *tracker.Tracker {
	return s.tracker
}

// Roles exposes the role lookup for reporting.
func (s *Service) Roles() roles.Lookup {
	return s.roles
}
