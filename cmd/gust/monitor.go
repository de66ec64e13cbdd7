package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/breezelab/gust/internal/breaks"
	"github.com/breezelab/gust/internal/config"
	"github.com/breezelab/gust/internal/ingest"
	"github.com/breezelab/gust/internal/metrics"
	"github.com/breezelab/gust/internal/notify"
	"github.com/breezelab/gust/internal/platform"
	"github.com/breezelab/gust/internal/reset"
	"github.com/breezelab/gust/internal/storage"
	"github.com/breezelab/gust/internal/systemd"
	"github.com/breezelab/gust/internal/threshold"
)

var simUsageRate float64

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the usage-monitor daemon",
	Long: `Run the monitor daemon: the process context the OS wakes on usage
threshold crossings. It keeps thresholds registered ahead of usage,
updates the shared counters on every crossing, engages and releases the
shield, and owns the daily reset loop.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().Float64Var(&simUsageRate, "sim-usage-rate", 0,
		"Simulated usage seconds accrued per wall-clock second (0 disables simulation)")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info().
		Str("version", version).
		Str("storage", cfg.Storage.Type).
		Msg("Starting gust monitor")

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close store")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := platform.RealClock{}
	monitor := platform.NewSimMonitor()
	dispatcher := notify.NewDispatcher(notify.NewLogSender(logger), cfg.DedupeTTLDuration(), logger)
	scheduler := threshold.NewScheduler(monitor, cfg.GranularityDuration(), cfg.Thresholds.MaxRegistered, logger)
	reconciler := reset.NewReconciler(store.State(), store.Signals(), scheduler, clock, cfg.Usage.DailyResetTime, logger)
	// The sim feed counts from the day boundary just like the stored
	// counters; rewind it whenever the day state resets.
	reconciler.OnReset = monitor.ResetUsage
	handler := ingest.NewHandler(
		store.State(),
		store.Signals(),
		scheduler,
		dispatcher,
		reconciler,
		clock,
		cfg.Wind.EngageThreshold,
		cfg.Wind.FallRatePerSecond,
		logger,
	)

	// Catch up on a missed day boundary before processing anything.
	if _, err := reconciler.EnsureCurrentDay(ctx); err != nil {
		return fmt.Errorf("failed initial day reconcile: %w", err)
	}

	counters, err := store.State().GetCounters(ctx)
	if err != nil {
		return fmt.Errorf("failed to load counters: %w", err)
	}
	limitSeconds := int64(0)
	if limit, err := store.State().GetLimit(ctx); err == nil {
		limitSeconds = limit.LimitSeconds
	}
	if err := scheduler.Reconcile(ctx, counters.CumulativeSeconds, limitSeconds); err != nil {
		logger.Warn().Err(err).Msg("Initial threshold reconcile failed")
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		metricsServer = metrics.NewServer(addr, logger)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	go reconciler.Run(ctx, time.Minute)
	go systemd.RunWatchdog(ctx, logger)

	// A forgotten committed break should not sit open forever. Nudge the
	// ledger once a minute; Complete is atomic, so racing the break
	// command is harmless.
	ledger := breaks.NewLedger(store.State(), clock, cfg.Breaks.CoinIntervalMinutes, cfg.Usage.DailyResetTime, logger)
	go runBreakSweeper(ctx, ledger, clock, logger)

	if simUsageRate > 0 {
		logger.Info().Float64("rate", simUsageRate).Msg("Driving simulated usage")
		go runSimUsage(ctx, monitor, clock, simUsageRate)
	}

	systemd.NotifyReady(logger)
	logger.Info().Msg("Gust monitor startup complete")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sigChan:
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
			systemd.NotifyStopping(logger)
			cancel()
			if metricsServer != nil {
				if err := metricsServer.Stop(); err != nil {
					logger.Error().Err(err).Msg("Error stopping metrics server")
				}
			}
			logger.Info().Msg("Gust monitor stopped")
			return nil
		case crossing := <-monitor.Events():
			if err := handler.HandleCrossing(ctx, crossing.CumulativeSeconds); err != nil {
				logger.Error().Err(err).Msg("Failed to process crossing")
			}
		}
	}
}

// runSimUsage feeds the sim monitor one tick per second.
func runSimUsage(ctx context.Context, monitor *platform.SimMonitor, clock platform.Clock, rate float64) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	carry := 0.0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			carry += rate
			whole := int64(carry)
			if whole > 0 {
				carry -= float64(whole)
				monitor.Advance(whole, clock.Now())
			}
		}
	}
}

// runBreakSweeper completes committed breaks whose term has elapsed, so
// forgiveness lands even if the user never returns to the app.
func runBreakSweeper(ctx context.Context, ledger *breaks.Ledger, clock platform.Clock, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sess, err := ledger.Active(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("Break sweep failed")
				continue
			}
			if sess == nil || sess.Kind != storage.BreakCommitted {
				continue
			}
			if clock.Now().Before(sess.CommittedUntil()) {
				continue
			}
			if _, err := ledger.Complete(ctx); err != nil && err != breaks.ErrNoSession {
				logger.Warn().Err(err).Msg("Failed to complete elapsed committed break")
			}
		}
	}
}
