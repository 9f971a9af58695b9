package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session metrics
	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qw_sessions_started_total",
			Help: "Total sessions started (manual and scheduled)",
		},
	)

	PausesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qw_pauses_total",
			Help: "Total user-initiated pauses",
		},
	)

	CancellationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qw_cancellations_total",
			Help: "Total cancelled records (manual and pause-limit)",
		},
	)

	AdjustmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qw_adjustments_total",
			Help: "Total manual time adjustments",
		},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qw_active_sessions",
			Help: "Number of currently active unpaused sessions",
		},
	)

	// Milestone metrics
	MilestonesNotified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qw_milestones_notified_total",
			Help: "Milestone notifications emitted",
		},
		[]string{"hours"},
	)

	// Sweep metrics
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qw_sweep_duration_seconds",
			Help:    "Duration of full milestone sweep passes",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	SweepErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qw_sweep_errors_total",
			Help: "Per-record evaluation failures during sweeps",
		},
	)

	// Notification metrics
	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qw_notifications_sent_total",
			Help: "Webhook notifications delivered",
		},
		[]string{"kind"},
	)

	NotificationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qw_notification_failures_total",
			Help: "Webhook notifications that exhausted all retries",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsStarted,
		PausesTotal,
		CancellationsTotal,
		AdjustmentsTotal,
		ActiveSessions,
		MilestonesNotified,
		SweepDuration,
		SweepErrors,
		NotificationsSent,
		NotificationFailures,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
