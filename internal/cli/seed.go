package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"nlquery-agent/internal/fixtures"
	"nlquery-agent/internal/models"
)

var seedValue int64

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Reset the configured stores and load the demo data set",
	Long: `seed drops and recreates the users, products and orders tables of the
relational store and the users and orders collections of a MongoDB store,
then fills them with deterministic demo data. Limit it to one backend with --db.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		want := func(b models.Backend) bool { return backendFlag == "" || s.backend == b }
		now := time.Now()
		seeded := 0

		if want(models.BackendRelational) && s.app.Relational != nil {
			summary, err := fixtures.SeedRelational(ctx, s.app.Relational, seedValue, now)
			if err != nil {
				return err
			}
			printSummary(os.Stdout, s.cfg.Database.Relational.Driver, summary)
			seeded++
		}

		if want(models.BackendDocument) && s.app.Documents != nil {
			switch {
			case s.app.Mongo != nil:
				summary, err := fixtures.SeedDocuments(ctx, fixtures.MongoWriter(s.app.Mongo.Database), seedValue, now)
				if err != nil {
					return err
				}
				printSummary(os.Stdout, "mongo", summary)
				seeded++
			case s.app.Memory != nil:
				pterm.Info.Println("The memory store is filled with demo data on every start; nothing to seed.")
			default:
				pterm.Warning.Printf("Seeding is not supported for the %s document driver\n", s.cfg.Database.Document.Driver)
			}
		}

		if seeded == 0 {
			return fmt.Errorf("nothing was seeded")
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().Int64Var(&seedValue, "seed", demoSeed, "Random seed for the generated orders")
	rootCmd.AddCommand(seedCmd)
}

func printSummary(w io.Writer, store string, summary fixtures.Summary) {
	names := make([]string, 0, len(summary))
	for name := range summary {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]pterm.BulletListItem, 0, len(names))
	for _, name := range names {
		items = append(items, pterm.BulletListItem{Text: fmt.Sprintf("%s: %d rows", name, summary[name])})
	}
	fmt.Fprint(w, pterm.Success.Sprintf("Seeded %s\n", store))
	if list, err := pterm.DefaultBulletList.WithItems(items).Srender(); err == nil {
		fmt.Fprintln(w, list)
	}
}
