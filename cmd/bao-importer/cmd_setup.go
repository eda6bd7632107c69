package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/falcorrus/bao-tg-importer/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("bao-importer setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Store.Driver = ask(scanner, "Store driver (postgrest or sqlite)", cfg.Store.Driver)
		if cfg.Store.Driver == "postgrest" {
			cfg.Store.URL = ask(scanner, "Supabase URL", cfg.Store.URL)
			cfg.Store.APIKey = ask(scanner, "Supabase service role key", cfg.Store.APIKey)
		} else {
			cfg.Store.DSN = ask(scanner, "SQLite database path", cfg.Store.DSN)
		}

		cfg.LLM.Provider = ask(scanner, "LLM provider (gemini or openai)", cfg.LLM.Provider)
		cfg.LLM.APIKey = ask(scanner, "LLM API key", cfg.LLM.APIKey)
		cfg.LLM.Model = ask(scanner, "LLM model name", cfg.LLM.Model)
		cfg.PromptPath = ask(scanner, "Prompt file", cfg.PromptPath)

		cfg.Source.Kind = ask(scanner, "Message source (bot or export)", cfg.Source.Kind)
		if cfg.Source.Kind == "export" {
			cfg.Source.ExportDir = ask(scanner, "Export directory", cfg.Source.ExportDir)
		}
		cfg.Telegram.Token = ask(scanner, "Telegram bot token", cfg.Telegram.Token)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		if err := cfg.Validate(); err != nil {
			fmt.Println("Warning:", err)
		}
		return nil
	},
}

// ask prints label with its default and returns the trimmed answer, or the
// default when the answer is empty.
func ask(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		if input := strings.TrimSpace(scanner.Text()); input != "" {
			return input
		}
	}
	return defaultVal
}
