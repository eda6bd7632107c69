package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/falcorrus/bao-tg-importer/internal/pipeline"
	"github.com/falcorrus/bao-tg-importer/internal/report"
)

var syncQuiet bool

func init() {
	syncCmd.Flags().BoolVar(&syncQuiet, "quiet", false, "do not print the run table")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one import over every registered source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadValidConfig()
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		orch, err := a.orchestrator()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sum, err := orch.Run(ctx)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		if !syncQuiet {
			fmt.Fprint(os.Stdout, report.Table(sum))
		}
		a.report(ctx, sum)
		if sum.Status == pipeline.StatusFailed {
			return fmt.Errorf("sync %s", sum.Status)
		}
		return nil
	},
}
