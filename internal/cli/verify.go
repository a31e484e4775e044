package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"nlquery-agent/internal/common/genai"
)

const checkTimeout = 5 * time.Second

var verifyModel bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that every configured store answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			pterm.Error.Println("Could not connect:", err)
			return err
		}
		defer s.Close()

		checks := s.app.Checks()
		if verifyModel {
			client, err := genai.New(s.cfg.GenAI, s.log)
			if err != nil {
				return err
			}
			opts := genai.Options{Model: s.cfg.GenAI.Model, Temperature: s.cfg.GenAI.Temperature}
			checks["completion"] = func(ctx context.Context) error {
				_, err := client.Complete(ctx, "Reply with the single word OK.", opts)
				return err
			}
		}

		if failed := runChecks(ctx, os.Stdout, checks); failed > 0 {
			return fmt.Errorf("%d check(s) failed", failed)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyModel, "model", false, "Also send a short prompt to the completion service")
	rootCmd.AddCommand(verifyCmd)
}

// runChecks runs every check with its own timeout, prints one line per check
// in name order and returns how many failed.
func runChecks(ctx context.Context, w io.Writer, checks map[string]func(context.Context) error) int {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := 0
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		start := time.Now()
		err := checks[name](checkCtx)
		elapsed := time.Since(start).Round(time.Millisecond)
		cancel()

		label := fmt.Sprintf("%-12s", name)
		if err != nil {
			failed++
			fmt.Fprint(w, pterm.Error.Sprintf("%s %s\n", label, strings.TrimSpace(err.Error())))
			continue
		}
		fmt.Fprint(w, pterm.Success.Sprintf("%s ok (%s)\n", label, elapsed))
	}
	return failed
}
