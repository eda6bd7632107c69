package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/falcorrus/bao-tg-importer/internal/types"
)

func init() {
	rootCmd.AddCommand(resetFlagsCmd)
}

var resetFlagsCmd = &cobra.Command{
	Use:   "reset-flags",
	Short: "Clear is_event_filtered on every logged post",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadValidConfig()
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		all := types.Filter{Conds: []types.Cond{{Column: "id", Op: types.OpNotNull}}}
		if err := a.store.UpdateRows(context.Background(), cfg.Tables.Posts, all, types.Row{"is_event_filtered": false}); err != nil {
			return fmt.Errorf("reset flags: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Reset is_event_filtered on %s.\n", cfg.Tables.Posts)
		return nil
	},
}
