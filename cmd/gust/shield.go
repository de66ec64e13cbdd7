package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/breezelab/gust/internal/config"
	"github.com/breezelab/gust/internal/notify"
	"github.com/breezelab/gust/internal/platform"
	"github.com/breezelab/gust/internal/shield"
	"github.com/breezelab/gust/internal/storage"
)

var shieldCmd = &cobra.Command{
	Use:   "shield",
	Short: "Run enforcement-UI actions",
	Long: `Run the enforcement-UI process context: reconcile the OS block set
against the stored limit, or handle a block-screen button press. Each
invocation is one-shot, the way the OS wakes this context.`,
}

var shieldReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Align the OS block set with the stored shield state",
	RunE:  runShieldReconcile,
}

var shieldCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Handle the close button on the block screen",
	RunE:  runShieldClose,
}

var shieldUnlockCmd = &cobra.Command{
	Use:   "unlock TARGET",
	Short: "Handle the unlock button for one blocked target",
	Args:  cobra.ExactArgs(1),
	RunE:  runShieldUnlock,
}

func init() {
	shieldCmd.AddCommand(shieldReconcileCmd)
	shieldCmd.AddCommand(shieldCloseCmd)
	shieldCmd.AddCommand(shieldUnlockCmd)
	rootCmd.AddCommand(shieldCmd)
}

// newController builds the one-shot controller stack for a subcommand.
func newController(cfg *config.Config) (*shield.Controller, func(), error) {
	logger := quietLogger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	dispatcher := notify.NewDispatcher(notify.NewLogSender(logger), cfg.DedupeTTLDuration(), logger)
	// The block set must outlive this one-shot process or reconcile and
	// unlock effects would vanish on exit.
	surface := platform.NewFileSurface(cfg.Storage.SurfacePath)
	ctrl := shield.NewController(store.State(), surface, dispatcher, logger)
	return ctrl, func() { _ = store.Close() }, nil
}

func runShieldReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctrl, closeStore, err := newController(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	return ctrl.Reconcile(context.Background())
}

func runShieldClose(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctrl, closeStore, err := newController(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	resp, err := ctrl.HandleClose(context.Background())
	if err != nil {
		return err
	}
	printShieldResponse(resp)
	return nil
}

func runShieldUnlock(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctrl, closeStore, err := newController(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	resp, err := ctrl.HandleUnlock(context.Background(), storage.Token(args[0]))
	if err != nil {
		return err
	}
	printShieldResponse(resp)
	return nil
}

func printShieldResponse(resp shield.Response) {
	if resp.Action == shield.Close {
		fmt.Println("close")
	} else {
		fmt.Println("keep-open")
	}
}
