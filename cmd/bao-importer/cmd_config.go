package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/falcorrus/bao-tg-importer/internal/config"
)

func init() {
	configCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print every key, secrets masked",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				values, err := config.ListValues(loadConfig(), true)
				if err != nil {
					return fmt.Errorf("list config: %w", err)
				}
				for _, k := range slices.Sorted(maps.Keys(values)) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", k, values[k])
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := config.GetValue(cfgPath, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one key in the config file",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, value := args[0], args[1]
				if err := config.SetValue(cfgPath, key, value); err != nil {
					return err
				}
				if config.IsSecretKey(key) {
					value = "***"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file in use",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), cfgPath)
			},
		},
	)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the config file",
}
