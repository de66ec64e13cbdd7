package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/breezelab/gust/internal/config"
	"github.com/breezelab/gust/internal/reset"
	"github.com/breezelab/gust/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current weather, shield and ledger state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	base, effective, st, err := evaluateWind(ctx, store.State(), cfg, now)
	if err != nil {
		return err
	}

	counters, err := store.State().GetCounters(ctx)
	if err != nil {
		return fmt.Errorf("loading counters: %w", err)
	}
	limit, err := store.State().GetLimit(ctx)
	if err != nil && err != storage.ErrNotFound {
		return fmt.Errorf("loading limit: %w", err)
	}
	reduction, err := store.State().GetReduction(ctx)
	if err != nil {
		return fmt.Errorf("loading reduction: %w", err)
	}
	coins, err := store.State().GetCoins(ctx)
	if err != nil {
		return fmt.Errorf("loading coins: %w", err)
	}
	sess, err := store.State().GetSession(ctx)
	if err != nil && err != storage.ErrNotFound {
		return fmt.Errorf("loading break session: %w", err)
	}

	day := reset.DayStamp(now, cfg.Usage.DailyResetTime)
	history, err := store.History().ListByDay(ctx, day)
	if err != nil {
		return fmt.Errorf("loading break history: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("GUST STATUS")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Day:        %s\n", day)
	fmt.Printf("Usage:      %s", formatSeconds(counters.CumulativeSeconds))
	if limit != nil && limit.LimitSeconds > 0 {
		fmt.Printf(" of %s", formatSeconds(limit.LimitSeconds))
	}
	fmt.Println()
	if reduction > 0 {
		fmt.Printf("Forgiven:   %s\n", formatSeconds(reduction))
	}
	fmt.Printf("Coins:      %d\n", coins)
	fmt.Println()

	cyan.Print("Wind:       ")
	switch {
	case st.Active:
		red.Printf("%.1f", base)
		fmt.Printf(" (effective %.1f, falling at %.2f/s)\n", effective, st.FallRatePerSecond)
	case base >= 80:
		yellow.Printf("%.1f\n", base)
	default:
		green.Printf("%.1f\n", base)
	}

	cyan.Print("Shield:     ")
	if st.Active {
		red.Println("UP")
		if st.ActivatedAt != nil {
			fmt.Printf("            since %s\n", st.ActivatedAt.Format("15:04:05"))
		}
	} else {
		green.Println("down")
	}
	fmt.Println()

	if sess != nil {
		cyan.Print("Break:      ")
		if sess.Kind == storage.BreakCommitted {
			yellow.Printf("committed, %d minutes, until %s\n", sess.Minutes, sess.CommittedUntil().Format("15:04"))
		} else {
			yellow.Println("casual")
		}
	}

	if len(history) > 0 {
		cyan.Printf("Breaks today (%d):\n", len(history))
		for _, b := range history {
			fmt.Printf("  %s  %-9s  %3d min", b.StartedAt.Format("15:04"), string(kindOf(b)), b.MinutesCounted)
			if b.CoinsAwarded > 0 {
				fmt.Printf("  +%d coins", b.CoinsAwarded)
			}
			fmt.Println()
		}
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
	return nil
}

func kindOf(b storage.CompletedBreak) storage.BreakKind {
	if b.MinutesCommitted > 0 {
		return storage.BreakCommitted
	}
	return storage.BreakCasual
}

func formatSeconds(s int64) string {
	d := time.Duration(s) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
