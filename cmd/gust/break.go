package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/breezelab/gust/internal/breaks"
	"github.com/breezelab/gust/internal/config"
	"github.com/breezelab/gust/internal/platform"
)

var breakCommittedMinutes int64

var breakCmd = &cobra.Command{
	Use:   "break",
	Short: "Manage break sessions",
	Long: `Manage break sessions. A casual break can be abandoned freely; a
committed break locks in a term, and completing it forgives the
committed minutes from today's usage and pays out coins.`,
}

var breakStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a break",
	Example: `  gust break start
  gust break start --committed 30`,
	RunE: runBreakStart,
}

var breakCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Abandon the active break",
	RunE:  runBreakCancel,
}

var breakCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Complete the active break and collect its reward",
	RunE:  runBreakComplete,
}

func init() {
	breakStartCmd.Flags().Int64Var(&breakCommittedMinutes, "committed", 0,
		"Commit to this many minutes (0 starts a casual break)")

	breakCmd.AddCommand(breakStartCmd)
	breakCmd.AddCommand(breakCancelCmd)
	breakCmd.AddCommand(breakCompleteCmd)
	rootCmd.AddCommand(breakCmd)
}

// newLedger builds the one-shot ledger stack for a subcommand.
func newLedger() (*breaks.Ledger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ledger := breaks.NewLedger(
		store.State(),
		platform.RealClock{},
		cfg.Breaks.CoinIntervalMinutes,
		cfg.Usage.DailyResetTime,
		quietLogger(),
	)
	return ledger, func() { _ = store.Close() }, nil
}

func runBreakStart(cmd *cobra.Command, args []string) error {
	ledger, closeStore, err := newLedger()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	if breakCommittedMinutes > 0 {
		sess, err := ledger.StartCommitted(ctx, breakCommittedMinutes)
		if err != nil {
			return err
		}
		fmt.Printf("Committed break started, until %s\n", sess.CommittedUntil().Format("15:04"))
		return nil
	}

	if _, err := ledger.StartCasual(ctx); err != nil {
		return err
	}
	fmt.Println("Casual break started")
	return nil
}

func runBreakCancel(cmd *cobra.Command, args []string) error {
	ledger, closeStore, err := newLedger()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := ledger.Cancel(context.Background()); err != nil {
		return err
	}
	fmt.Println("Break cancelled")
	return nil
}

func runBreakComplete(cmd *cobra.Command, args []string) error {
	ledger, closeStore, err := newLedger()
	if err != nil {
		return err
	}
	defer closeStore()

	record, err := ledger.Complete(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Break complete: %d minutes", record.MinutesCounted)
	if record.ReductionSeconds > 0 {
		fmt.Printf(", %d minutes forgiven", record.ReductionSeconds/60)
	}
	if record.CoinsAwarded > 0 {
		fmt.Printf(", %d coins", record.CoinsAwarded)
	}
	fmt.Println()
	return nil
}
