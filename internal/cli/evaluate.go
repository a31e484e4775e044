package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"nlquery-agent/internal/evaluation"
	"nlquery-agent/internal/models"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run the built-in question set and report success rates and timings",
	Long: `evaluate answers a fixed set of questions about the demo data set on every
configured backend (or only the one given with --db) and prints a results
table followed by per-backend and per-category averages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		var backends []models.Backend
		if backendFlag != "" {
			backends = []models.Backend{s.backend}
		} else {
			backends = s.app.Pipeline.Backends()
		}
		cases := evaluation.CasesFor(evaluation.DefaultCases, backends...)
		if len(cases) == 0 {
			return fmt.Errorf("no cases for the configured backends")
		}

		pterm.DefaultSection.Println("Evaluating", len(cases), "questions")
		done := 0
		results := evaluation.Run(ctx, s.app.Pipeline, cases, func(r evaluation.Result) {
			done++
			printProgress(os.Stdout, done, len(cases), r)
		})

		fmt.Println()
		return renderReport(os.Stdout, results)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
}

func printProgress(w io.Writer, n, total int, r evaluation.Result) {
	line := fmt.Sprintf("[%d/%d] %-10s %6s  %s", n, total, r.Backend, seconds(r.Duration), r.Question)
	if r.Status == evaluation.StatusSuccess {
		fmt.Fprint(w, pterm.Success.Sprintln(line))
		return
	}
	fmt.Fprint(w, pterm.Error.Sprintln(line))
}

func renderReport(w io.Writer, results []evaluation.Result) error {
	data := pterm.TableData{{"Backend", "Category", "Question", "Status", "Time", "Summary"}}
	for _, r := range results {
		data = append(data, []string{
			string(r.Backend),
			r.Category,
			evaluation.Summarize(r.Question),
			r.Status,
			seconds(r.Duration),
			r.Summary,
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, table)

	stats := evaluation.Aggregate(results)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total: %d  Succeeded: %d  Failed: %d  Success rate: %.1f%%\n",
		stats.Total, stats.Succeeded, stats.Failed, stats.SuccessRate())
	fmt.Fprintf(w, "Average time: %s\n", seconds(stats.AverageOverall))

	var items []pterm.BulletListItem
	for _, b := range []models.Backend{models.BackendRelational, models.BackendDocument} {
		if avg, ok := stats.AverageByBackend[b]; ok {
			items = append(items, pterm.BulletListItem{
				Level: 0,
				Text:  fmt.Sprintf("%s: %s over %d questions", b, seconds(avg), stats.CountByBackend[b]),
			})
		}
	}
	for _, c := range stats.Categories() {
		items = append(items, pterm.BulletListItem{
			Level: 1,
			Text:  fmt.Sprintf("%s: %s", c, seconds(stats.AverageByCategory[c])),
		})
	}
	if len(items) > 0 {
		list, err := pterm.DefaultBulletList.WithItems(items).Srender()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, list)
	}
	return nil
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
