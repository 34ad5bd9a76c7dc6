package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hqnguyen/todotrack/internal/importer"
	"github.com/hqnguyen/todotrack/internal/model"
	"github.com/hqnguyen/todotrack/internal/store"
)

func newImportCSVCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import-csv <file>",
		Short: "Bulk-upsert tasks from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(*configPath)
			if err != nil {
				return err
			}

			st, err := store.NewSQLiteStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			report, err := importer.New(st).Upsert(cmd.Context(), f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, line := range report.Upserts {
				fmt.Fprintln(out, line)
			}
			for _, rowErr := range report.Errors {
				for _, msg := range rowErr.Messages {
					fmt.Fprintf(out, "line %d: %s\n", rowErr.Line, msg)
				}
			}
			for _, line := range report.Summaries {
				fmt.Fprintln(out, line)
			}

			return nil
		},
	}
}
