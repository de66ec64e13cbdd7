package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/breezelab/gust/internal/config"
	"github.com/breezelab/gust/internal/platform"
	"github.com/breezelab/gust/internal/reset"
	"github.com/breezelab/gust/internal/shield"
	"github.com/breezelab/gust/internal/storage"
	"github.com/breezelab/gust/internal/wind"
)

var appWatch bool

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Run the main-app foreground wake point",
	Long: `Run the main-app process context: what the pet app does when it comes
to the foreground. It catches up on a missed day boundary, re-derives
wind from the shared counters, steps the shield if the monitor missed a
transition, and prints the weather.`,
	RunE: runApp,
}

func init() {
	appCmd.Flags().BoolVar(&appWatch, "watch", false, "Stay in the foreground and re-evaluate on signals")
	rootCmd.AddCommand(appCmd)
}

func runApp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := quietLogger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := platform.RealClock{}
	reconciler := reset.NewReconciler(store.State(), store.Signals(), nil, clock, cfg.Usage.DailyResetTime, logger)

	evaluate := func() error {
		if _, err := reconciler.EnsureCurrentDay(ctx); err != nil {
			return err
		}
		base, effective, st, err := evaluateWind(ctx, store.State(), cfg, clock.Now())
		if err != nil {
			return err
		}
		printWeather(base, effective, st)
		return nil
	}

	if err := evaluate(); err != nil {
		return err
	}
	if !appWatch {
		return nil
	}

	// Re-evaluate on cross-process signals, with a slow poll as backstop
	// since signal delivery is best effort.
	wake := make(chan struct{}, 1)
	cancelSub, err := store.Signals().Subscribe(ctx, func(string) {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Signal subscription unavailable, polling only")
	} else {
		defer cancelSub()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			return nil
		case <-wake:
		case <-ticker.C:
		}
		if err := evaluate(); err != nil {
			return err
		}
	}
}

// evaluateWind re-derives wind from the store and steps the shield, so a
// foreground wake observes transitions the monitor slept through.
func evaluateWind(ctx context.Context, state storage.StateStore, cfg *config.Config, now time.Time) (base, effective float64, st storage.ShieldState, err error) {
	counters, err := state.GetCounters(ctx)
	if err != nil {
		return 0, 0, st, fmt.Errorf("loading counters: %w", err)
	}
	limit, err := state.GetLimit(ctx)
	if err != nil {
		if err != storage.ErrNotFound {
			return 0, 0, st, fmt.Errorf("loading limit: %w", err)
		}
		limit = &storage.LimitConfig{}
	}
	reduction, err := state.GetReduction(ctx)
	if err != nil {
		return 0, 0, st, fmt.Errorf("loading reduction: %w", err)
	}

	base = wind.Value(wind.Snapshot{
		CumulativeSeconds:     counters.CumulativeSeconds,
		BreakReductionSeconds: reduction,
		LimitSeconds:          limit.LimitSeconds,
	})

	st, err = state.GetShield(ctx)
	if err != nil {
		return 0, 0, st, fmt.Errorf("loading shield state: %w", err)
	}
	next, ev := shield.Advance(st, base, cfg.Wind.EngageThreshold, cfg.Wind.FallRatePerSecond, now)
	if ev != shield.EventNone {
		if err := state.SetShield(ctx, next); err != nil {
			return 0, 0, st, fmt.Errorf("storing shield state: %w", err)
		}
		st = next
	}

	effective = wind.Effective(base, st.ActivatedAt, st.FallRatePerSecond, now)
	return base, effective, st, nil
}

func printWeather(base, effective float64, st storage.ShieldState) {
	if st.Active {
		fmt.Printf("wind %.1f (effective %.1f), shield up\n", base, effective)
	} else {
		fmt.Printf("wind %.1f, shield down\n", base)
	}
}
