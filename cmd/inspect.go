package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/scholar-citation-crawler/internal/storage/sqlite"
)

func newInspectCmd() *cobra.Command {
	var showCiters bool
	cmd := &cobra.Command{
		Use:   "inspect RUN_ID",
		Short: "Prints the latest checkpoint of a run from the SQLite mirror",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			path := rt.cfg.DB.SQLitePath
			if path == "" {
				return errors.New("db.sqlite_path is not set")
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("open sqlite mirror: %w", err)
			}

			runID := args[0]
			db, err := sqlite.Open(cmd.Context(), path, runID, rt.env.clock)
			if err != nil {
				return fmt.Errorf("open sqlite mirror: %w", err)
			}
			defer db.Close()

			records, err := db.Records(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("no checkpoint for run %s", runID)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d titles\n", runID, len(records))
			for i, record := range records {
				fmt.Fprintf(out, "%4d. %s (%d citers)\n", i+1, record.Title, record.CitedByCount)
				if showCiters {
					for _, citer := range record.Citers {
						fmt.Fprintf(out, "      - %s\n", citer)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showCiters, "citers", false, "list the citing titles of every record")
	return cmd
}
