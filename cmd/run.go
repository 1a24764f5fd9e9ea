package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-linker/internal/linker"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Walks the remote library index once and links every matching title",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, linker.StrategySweep, 0)
		},
	}
}

func newSearchCmd() *cobra.Command {
	var startPage int
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Searches the remote site for each local catalog entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page := startPage
			if !cmd.Flags().Changed("start-page") {
				page = resolveConfig(cmd.Context()).Search.StartPage
			}
			if page < 1 {
				return fmt.Errorf("start page must be >= 1, got %d", page)
			}
			return runOnce(cmd, linker.StrategySearch, page)
		},
	}
	cmd.Flags().IntVar(&startPage, "start-page", 1, "local catalog page to start from")
	return cmd
}

func runOnce(cmd *cobra.Command, strategy linker.Strategy, startPage int) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	runID, err := rt.Execute(cmd.Context(), strategy, startPage)
	if errors.Is(err, context.Canceled) {
		rt.Logger().Info("run interrupted", zap.String("run_id", runID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s run %s: %w", strategy, runID, err)
	}
	rt.Logger().Info("run complete", zap.String("run_id", runID), zap.String("strategy", string(strategy)))
	return nil
}
