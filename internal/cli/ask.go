package cli

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question",
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			question = strings.TrimSpace(queryFlag)
		}
		if question == "" {
			return errors.New("a question is required, as arguments or with --query")
		}
		return runAsk(cmd.Context(), question)
	},
}

func init() {
	askCmd.Flags().StringVarP(&queryFlag, "query", "q", "", "Question to answer")
	rootCmd.AddCommand(askCmd)
}

func runAsk(ctx context.Context, question string) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	spinner, _ := pterm.DefaultSpinner.Start("Thinking...")
	envelope, failure := s.app.Pipeline.Run(ctx, question, s.backend)
	if spinner != nil {
		_ = spinner.Stop()
	}

	renderEnvelope(os.Stdout, s.backend, envelope)
	if failure != nil {
		// already printed; only the exit status is left to set
		return errors.New(string(failure.Code))
	}
	return nil
}
