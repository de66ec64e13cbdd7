package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Ingest metrics
	ThresholdCrossings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gust_threshold_crossings_total",
			Help: "Usage threshold crossings ingested from the OS monitor",
		},
	)

	WindValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gust_wind_value",
			Help: "Current wind value derived from stored counters",
		},
	)

	// Shield metrics
	ShieldTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gust_shield_transitions_total",
			Help: "Shield state transitions",
		},
		[]string{"transition"},
	)

	ShieldUnlocks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gust_shield_unlocks_total",
			Help: "Per-identifier unlock exceptions granted from the block screen",
		},
	)

	// Break metrics
	BreaksCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gust_breaks_completed_total",
			Help: "Completed break sessions",
		},
		[]string{"kind"},
	)

	CoinsAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gust_coins_awarded_total",
			Help: "Coins awarded for committed breaks",
		},
	)

	// Cross-process signal metrics
	SignalsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gust_signals_emitted_total",
			Help: "Fire-and-forget cross-process signals emitted",
		},
		[]string{"name"},
	)

	// Reset metrics
	DailyResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gust_daily_resets_total",
			Help: "Day-boundary resets performed",
		},
	)

	// Notification metrics
	NotificationsEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gust_notifications_enqueued_total",
			Help: "Local notifications enqueued",
		},
	)

	NotificationsDeduped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gust_notifications_deduped_total",
			Help: "Notifications suppressed by the dedup window",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		ThresholdCrossings,
		WindValue,
		ShieldTransitions,
		ShieldUnlocks,
		BreaksCompleted,
		CoinsAwarded,
		SignalsEmitted,
		DailyResets,
		NotificationsEnqueued,
		NotificationsDeduped,
	)
}

// Server is the metrics HTTP server, hosted by the monitor process.
type Server struct {
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates a new metrics server.
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

// Start starts the metrics server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
