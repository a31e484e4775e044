package cli

import (
	"os"

	"github.com/spf13/cobra"

	"nlquery-agent/internal/models"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [backend]",
	Short: "Show the tables or collections the model is told about",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		backend := s.backend
		if len(args) == 1 {
			if backend, err = models.ParseBackend(args[0]); err != nil {
				return err
			}
		}

		snapshot, err := s.app.Pipeline.Describe(cmd.Context(), backend)
		if err != nil {
			return err
		}
		renderSchema(os.Stdout, snapshot)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
