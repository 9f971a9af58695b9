// Package notify delivers engine events to configured webhook endpoints.
// The engine itself only hands over committed events; everything here
// (retry, backoff, timeouts) happens after the core mutation is durable.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Nysah1997/qw/internal/metrics"
	"github.com/Nysah1997/qw/internal/milestone"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Kind labels an event class; each class has its own endpoint.
type Kind string

const (
	KindMilestone    Kind = "milestone"
	KindPause        Kind = "pause"
	KindCancellation Kind = "cancellation"
	KindMovement     Kind = "movement"
)

// PauseEvent reports a user-initiated pause.
type PauseEvent struct {
	UserID         string  `json:"user_id"`
	Name           string  `json:"name"`
	TotalSeconds   float64 `json:"total_seconds"`
	FormattedTotal string  `json:"formatted_total"`
	SessionSeconds float64 `json:"session_seconds"`
	PauseCount     int     `json:"pause_count"`
	By             string  `json:"by,omitempty"`
}

// CancellationEvent reports a removed record.
type CancellationEvent struct {
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	FormattedTotal string `json:"formatted_total"`
	PauseCount     int    `json:"pause_count"`
	Auto           bool   `json:"auto"`
	By             string `json:"by,omitempty"`
}

// StartedUser is one entry of an auto-start movement event.
type StartedUser struct {
	UserID          string `json:"user_id"`
	Name            string `json:"name"`
	PreRegisteredBy string `json:"pre_registered_by,omitempty"`
}

// MovementEvent reports the scheduled auto-start run.
type MovementEvent struct {
	StartedUsers []StartedUser `json:"started_users"`
	At           time.Time     `json:"at"`
}

// Config holds webhook endpoints and delivery settings. An empty URL
// disables delivery for that event class.
type Config struct {
	MilestonesURL    string
	PausesURL        string
	CancellationsURL string
	MovementsURL     string
	MaxRetries       int
	RequestTimeout   time.Duration
}

// Webhook posts JSON events with exponential-backoff retry.
type Webhook struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
}

// NewWebhook creates a webhook dispatcher.
func NewWebhook(cfg Config, logger zerolog.Logger) *Webhook {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Webhook{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// MilestoneReached delivers a milestone notification.
func (w *Webhook) MilestoneReached(ctx context.Context, n milestone.Notification) {
	w.send(ctx, KindMilestone, w.cfg.MilestonesURL, n)
}

// SessionPaused delivers a pause notification.
func (w *Webhook) SessionPaused(ctx context.Context, e PauseEvent) {
	w.send(ctx, KindPause, w.cfg.PausesURL, e)
}

// TrackingCancelled delivers a cancellation notification.
func (w *Webhook) TrackingCancelled(ctx context.Context, e CancellationEvent) {
	w.send(ctx, KindCancellation, w.cfg.CancellationsURL, e)
}

// AutoStarted delivers the scheduled-start movement notification.
func (w *Webhook) AutoStarted(ctx context.Context, e MovementEvent) {
	w.send(ctx, KindMovement, w.cfg.MovementsURL, e)
}

func (w *Webhook) send(ctx context.Context, kind Kind, url string, payload any) {
	if url == "" {
		w.logger.Debug().Str("kind", string(kind)).Msg("No endpoint configured, dropping notification")
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		w.logger.Error().Err(err).Str("kind", string(kind)).Msg("Failed to encode notification")
		return
	}

	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.RequestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("webhook returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			// Client errors will not improve with retries.
			return backoff.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(w.cfg.MaxRetries)),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		metrics.NotificationFailures.WithLabelValues(string(kind)).Inc()
		w.logger.Error().Err(err).Str("kind", string(kind)).Msg("Notification delivery exhausted retries")
		return
	}

	metrics.NotificationsSent.WithLabelValues(string(kind)).Inc()
	w.logger.Debug().Str("kind", string(kind)).Msg("Notification delivered")
}
