package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/breezelab/gust/internal/config"
	"github.com/breezelab/gust/internal/storage"
)

var (
	limitMinutes    int64
	limitApps       []string
	limitCategories []string
	limitDomains    []string
)

var limitCmd = &cobra.Command{
	Use:   "limit",
	Short: "Manage the daily usage limit",
}

var limitShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configured limit",
	RunE:  runLimitShow,
}

var limitSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the daily limit and its targets",
	Example: `  gust limit set --minutes 25 --app app.instagram --category category.social
  gust limit set --minutes 45 --domain domain.youtube.com`,
	RunE: runLimitSet,
}

func init() {
	limitSetCmd.Flags().Int64Var(&limitMinutes, "minutes", 0, "Daily limit in minutes (required)")
	limitSetCmd.Flags().StringSliceVar(&limitApps, "app", nil, "App identifier token (repeatable)")
	limitSetCmd.Flags().StringSliceVar(&limitCategories, "category", nil, "Category identifier token (repeatable)")
	limitSetCmd.Flags().StringSliceVar(&limitDomains, "domain", nil, "Domain identifier token (repeatable)")
	limitSetCmd.MarkFlagRequired("minutes")

	limitCmd.AddCommand(limitShowCmd)
	limitCmd.AddCommand(limitSetCmd)
	rootCmd.AddCommand(limitCmd)
}

func runLimitShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	limit, err := store.State().GetLimit(context.Background())
	if err != nil {
		if err == storage.ErrNotFound {
			fmt.Println("No limit configured")
			return nil
		}
		return err
	}

	fmt.Printf("Limit: %s\n", formatSeconds(limit.LimitSeconds))
	for _, id := range limit.Apps {
		fmt.Printf("  app       %s\n", id)
	}
	for _, id := range limit.Categories {
		fmt.Printf("  category  %s\n", id)
	}
	for _, id := range limit.Domains {
		fmt.Printf("  domain    %s\n", id)
	}
	return nil
}

func runLimitSet(cmd *cobra.Command, args []string) error {
	if limitMinutes <= 0 {
		return fmt.Errorf("limit minutes must be positive, got %d", limitMinutes)
	}
	if len(limitApps)+len(limitCategories)+len(limitDomains) == 0 {
		return fmt.Errorf("at least one --app, --category or --domain target is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	limit := storage.LimitConfig{
		LimitSeconds: limitMinutes * 60,
		Apps:         toTokens(limitApps),
		Categories:   toTokens(limitCategories),
		Domains:      toTokens(limitDomains),
	}
	if err := store.State().SetLimit(context.Background(), limit); err != nil {
		return err
	}

	fmt.Printf("Limit set to %s across %d targets\n", formatSeconds(limit.LimitSeconds), len(limit.Targets()))
	return nil
}

func toTokens(ids []string) []storage.Token {
	if len(ids) == 0 {
		return nil
	}
	out := make([]storage.Token, len(ids))
	for i, id := range ids {
		out[i] = storage.Token(id)
	}
	return out
}
