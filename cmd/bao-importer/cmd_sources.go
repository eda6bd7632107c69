package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/falcorrus/bao-tg-importer/internal/cursor"
)

func init() {
	rootCmd.AddCommand(sourcesCmd)
	sourcesCmd.AddCommand(sourcesListCmd, sourcesImportCmd)
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage registered sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sources and their cursors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(loadValidConfig())
		if err != nil {
			return err
		}
		defer a.close()

		sources, err := a.cursors.Sources(context.Background())
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			fmt.Println("No sources registered.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCHANNEL ID\tTHREAD\tCURSOR\tCITY")
		for _, s := range sources {
			thread := "-"
			if s.SubStreamID != nil {
				thread = strconv.FormatInt(*s.SubStreamID, 10)
			}
			channelID := "-"
			if s.ChannelID != 0 {
				channelID = strconv.FormatInt(s.ChannelID, 10)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", s.RowID, s.Name, channelID, thread, s.Cursor, s.Tag)
		}
		return w.Flush()
	},
}

var sourcesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Register sources from a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seeds, err := cursor.LoadSeed(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(loadValidConfig())
		if err != nil {
			return err
		}
		defer a.close()

		added, updated, err := a.cursors.Import(context.Background(), seeds)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Imported %d sources (%d added, %d updated).\n", len(seeds), added, updated)
		return nil
	},
}
