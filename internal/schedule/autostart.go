// Package schedule fires the daily automatic session start.
package schedule

import (
	"context"
	"time"

	"github.com/Nysah1997/qw/internal/notify"
	"github.com/Nysah1997/qw/internal/tracker"
	"github.com/rs/zerolog"
)

// Notifier receives the movement event after an auto-start run.
type Notifier interface {
	AutoStarted(ctx context.Context, e notify.MovementEvent)
}

// AutoStart converts every pre-registered record to active at a
// configured time of day, in a configured timezone.
type AutoStart struct {
	tracker   *tracker.Tracker
	notifier  Notifier
	startTime time.Time // only hour and minute are used
	location  *time.Location
	logger    zerolog.Logger
	stopChan  chan struct{}
}

// New creates the auto-start scheduler. startTime is HH:MM.
func New(t *tracker.Tracker, n Notifier, startTime, timezone string, logger zerolog.Logger) (*AutoStart, error) {
	parsed, err := time.Parse("15:04", startTime)
	if err != nil {
		return nil, err
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}

	return &AutoStart{
		tracker:   t,
		notifier:  n,
		startTime: parsed,
		location:  location,
		logger:    logger.With().Str("component", "auto-start").Logger(),
		stopChan:  make(chan struct{}),
	}, nil
}

// Start begins the scheduler.
func (a *AutoStart) Start() {
	go a.run()
	a.logger.Info().
		Str("start_time", a.startTime.Format("15:04")).
		Str("timezone", a.location.String()).
		Msg("Auto-start scheduler started")
}

// Stop stops the scheduler.
func (a *AutoStart) Stop() {
	close(a.stopChan)
	a.logger.Info().Msg("Auto-start scheduler stopped")
}

func (a *AutoStart) run() {
	for {
		nextRun := a.NextRun(time.Now().In(a.location))
		waitDuration := time.Until(nextRun)

		a.logger.Info().
			Time("next_run", nextRun).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next automatic start")

		select {
		case <-time.After(waitDuration):
			a.RunOnce(context.Background())
		case <-a.stopChan:
			return
		}
	}
}

// NextRun returns the next occurrence of the configured time of day
// after now, in the scheduler's timezone.
func (a *AutoStart) NextRun(now time.Time) time.Time {
	now = now.In(a.location)

	todayRun := time.Date(
		now.Year(), now.Month(), now.Day(),
		a.startTime.Hour(), a.startTime.Minute(), 0, 0,
		a.location,
	)

	if !now.Before(todayRun) {
		return todayRun.AddDate(0, 0, 1)
	}
	return todayRun
}

// RunOnce promotes every pre-registered record to active and emits a
// single movement notification listing who started.
func (a *AutoStart) RunOnce(ctx context.Context) {
	preRegistered, err := a.tracker.ListPreRegistered(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list pre-registered records, skipping run")
		return
	}
	if len(preRegistered) == 0 {
		a.logger.Info().Msg("No pre-registered users at scheduled start")
		return
	}

	started := make([]notify.StartedUser, 0, len(preRegistered))
	for _, record := range preRegistered {
		ok, err := a.tracker.StartFromPreRegistration(ctx, record.UserID)
		if err != nil {
			a.logger.Error().Err(err).
				Str("user_id", record.UserID).
				Msg("Failed to start pre-registered user, continuing")
			continue
		}
		if !ok {
			// State changed since the snapshot; nothing to do.
			continue
		}

		entry := notify.StartedUser{UserID: record.UserID, Name: record.Name}
		if record.PreRegisteredBy != nil {
			entry.PreRegisteredBy = record.PreRegisteredBy.Name
		}
		started = append(started, entry)
	}

	a.logger.Info().Int("started", len(started)).Msg("Automatic start complete")

	if len(started) > 0 && a.notifier != nil {
		a.notifier.AutoStarted(ctx, notify.MovementEvent{
			StartedUsers: started,
			At:           time.Now().In(a.location),
		})
	}
}

// Location exposes the scheduler's timezone for callers that need to
// compare against the daily start window.
func (a *AutoStart) Location() *time.Location {
	return a.location
}

// StartTimeOfDay reports the configured hour and minute.
func (a *AutoStart) StartTimeOfDay() (hour, minute int) {
	return a.startTime.Hour(), a.startTime.Minute()
}
