// Package load implements the load command: ETL of finished run artifacts
// into the PostgreSQL warehouse.
package load

import (
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	cmdcommon "github.com/banalytics/harvester/cmd/common"
	"github.com/banalytics/harvester/internal/database"
	"github.com/banalytics/harvester/internal/loader"
)

// ErrNothingLoaded is returned when every requested file failed to load.
var ErrNothingLoaded = errors.New("no files loaded")

// Command returns the load command for use in the root command.
func Command() *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "load [files...]",
		Short: "Load run artifacts into the warehouse",
		Long: `Load one or more run artifacts into PostgreSQL. Each file is
inserted atomically as one run; files whose run was already loaded are
skipped, and a failing file never stops the batch.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdcommon.NewCommandDeps()
			if err != nil {
				return fmt.Errorf("initialize dependencies: %w", err)
			}

			if dsn == "" {
				dsn = deps.Config.Database.DSN
			}
			if dsn == "" {
				return errors.New("no DSN: set --dsn or database.dsn")
			}

			db, err := database.Connect(dsn)
			if err != nil {
				return fmt.Errorf("connect to warehouse: %w", err)
			}
			defer db.Close()

			if schemaErr := database.EnsureSchema(cmd.Context(), db); schemaErr != nil {
				return fmt.Errorf("ensure schema: %w", schemaErr)
			}

			store := database.NewRunRepository(db)
			results := loader.New(store, deps.Logger).LoadFiles(cmd.Context(), args)

			renderSummary(results)

			loaded := 0
			for _, result := range results {
				if result.Loaded() {
					loaded++
				}
			}
			if loaded == 0 {
				return ErrNothingLoaded
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "",
		"PostgreSQL connection string (overrides database.dsn)")

	return cmd
}

// renderSummary prints the per-file outcome table.
func renderSummary(results []loader.FileResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"File", "Run", "Rows", "Skipped", "Status"})

	for _, result := range results {
		runID := ""
		if result.Run != nil {
			runID = result.Run.RunID
		}

		status := "loaded"
		switch {
		case result.Duplicate:
			status = "duplicate"
		case result.Err != nil:
			status = "failed: " + result.Err.Error()
		}

		t.AppendRow(table.Row{
			result.Path, runID, result.Rows, result.SkippedZeroPrice, status,
		})
	}

	t.SetStyle(table.StyleLight)
	t.Render()
}
