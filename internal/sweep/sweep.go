// Package sweep periodically evaluates milestones for every active user.
package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/Nysah1997/qw/internal/metrics"
	"github.com/Nysah1997/qw/internal/milestone"
	"github.com/Nysah1997/qw/internal/tracker"
	"github.com/rs/zerolog"
)

// Notifier receives milestone events produced by the sweep.
type Notifier interface {
	MilestoneReached(ctx context.Context, n milestone.Notification)
}

// Config holds sweep settings.
type Config struct {
	Interval      time.Duration // time between passes
	BatchSize     int           // records evaluated concurrently
	RecordTimeout time.Duration // per-record evaluation deadline
}

// Sweeper runs the periodic milestone sweep. Records are independent,
// so each batch evaluates concurrently; one slow or failing record is
// logged and skipped, never aborting the rest of the pass.
type Sweeper struct {
	tracker   *tracker.Tracker
	evaluator *milestone.Evaluator
	notifier  Notifier
	cfg       Config
	logger    zerolog.Logger
	stopChan  chan struct{}
	done      chan struct{}
}

// New creates a sweeper.
func New(t *tracker.Tracker, e *milestone.Evaluator, n Notifier, cfg Config, logger zerolog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 15 * time.Second
	}
	return &Sweeper{
		tracker:   t,
		evaluator: e,
		notifier:  n,
		cfg:       cfg,
		logger:    logger.With().Str("component", "sweep").Logger(),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start() {
	go s.run()
	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Int("batch_size", s.cfg.BatchSize).
		Msg("Milestone sweep started")
}

// Stop stops the sweep loop and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	close(s.stopChan)
	<-s.done
	s.logger.Info().Msg("Milestone sweep stopped")
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

// Sweep runs one full pass over all active unpaused records.
func (s *Sweeper) Sweep(ctx context.Context) {
	started := time.Now()

	active, err := s.tracker.ListActive(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list active records, skipping pass")
		return
	}
	metrics.ActiveSessions.Set(float64(len(active)))

	for i := 0; i < len(active); i += s.cfg.BatchSize {
		end := i + s.cfg.BatchSize
		if end > len(active) {
			end = len(active)
		}

		var wg sync.WaitGroup
		for _, record := range active[i:end] {
			wg.Add(1)
			go func(userID, name string) {
				defer wg.Done()
				s.evaluateOne(ctx, userID, name)
			}(record.UserID, record.Name)
		}
		wg.Wait()

		select {
		case <-s.stopChan:
			return
		default:
		}
	}

	metrics.SweepDuration.Observe(time.Since(started).Seconds())
	s.logger.Debug().
		Int("active_records", len(active)).
		Dur("elapsed", time.Since(started)).
		Msg("Sweep pass complete")
}

func (s *Sweeper) evaluateOne(ctx context.Context, userID, name string) {
	recordCtx, cancel := context.WithTimeout(ctx, s.cfg.RecordTimeout)
	defer cancel()

	notification, err := s.evaluator.Evaluate(recordCtx, userID)
	if err != nil {
		metrics.SweepErrors.Inc()
		s.logger.Warn().Err(err).
			Str("user_id", userID).
			Str("name", name).
			Msg("Milestone evaluation failed, continuing batch")
		return
	}
	if notification == nil {
		return
	}
	if s.notifier != nil {
		s.notifier.MilestoneReached(ctx, *notification)
	}
}
