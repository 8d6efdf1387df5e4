// Package crawl implements the crawl command: one full catalog crawl for a
// single vendor, producing a run artifact on disk.
package crawl

import (
	"fmt"

	"github.com/spf13/cobra"

	cmdcommon "github.com/banalytics/harvester/cmd/common"
	"github.com/banalytics/harvester/internal/harvest"
)

// Command returns the crawl command for use in the root command.
func Command() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "crawl [vendor]",
		Short: "Crawl one vendor's catalog into a run artifact",
		Long: `Crawl a vendor's full catalog and write the records to a
newline-delimited run artifact named {vendor}_{started}_{ended}_{runid}.jsonl.

Supported vendors: chaldal, meenabazar.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdcommon.NewCommandDeps()
			if err != nil {
				return fmt.Errorf("initialize dependencies: %w", err)
			}

			cfg := deps.Config.Crawler
			if outDir != "" {
				cfg.OutputDir = outDir
			}

			result, err := harvest.New(cfg, deps.Logger).Crawl(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("wrote %d records to %s\n", result.Records, result.Path)
			if failures := result.Report.Failures(); len(failures) > 0 {
				fmt.Printf("%d branch(es) failed; the artifact is partial\n", len(failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "",
		"Output directory for the run artifact (overrides crawler.output_dir)")

	return cmd
}
