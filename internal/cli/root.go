// Package cli implements the nlquery command-line client: one-shot questions,
// an interactive prompt, schema inspection, store verification, demo seeding
// and the evaluation harness.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	backendFlag string
	logLevel    string
	demoMode    bool
	queryFlag   string
)

// rootCmd answers --query when given and otherwise drops into the prompt.
var rootCmd = &cobra.Command{
	Use:   "nlquery",
	Short: "Ask questions about your databases in plain language",
	Long: `nlquery turns a natural-language question into a read-only query, runs it
against a relational or document store and explains the result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if queryFlag != "" {
			return runAsk(cmd.Context(), queryFlag)
		}
		return runInteractive(cmd.Context())
	},
}

// Execute runs the CLI application.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (default: configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "db", "", "Backend to query: postgres, sql, mongo, document (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level written to stderr")
	rootCmd.PersistentFlags().BoolVar(&demoMode, "demo", false, "Use in-process SQLite and memory stores filled with demo data")
	rootCmd.Flags().StringVarP(&queryFlag, "query", "q", "", "Answer a single question and exit")
}
