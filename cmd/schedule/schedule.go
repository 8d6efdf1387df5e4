// Package schedule implements the schedule command: recurring vendor
// crawls driven by a cron expression.
package schedule

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	cmdcommon "github.com/banalytics/harvester/cmd/common"
	"github.com/banalytics/harvester/internal/harvest"
)

// Command returns the schedule command for use in the root command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run vendor crawls on a cron schedule",
		Long: `Run the configured vendors' crawls on the schedule.crawl_spec cron
expression. The scheduler runs until interrupted with Ctrl+C.`,
		RunE: runSchedule,
	}
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	deps, err := cmdcommon.NewCommandDeps()
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	log := deps.Logger
	harvester := harvest.New(deps.Config.Crawler, log)
	vendors := deps.Config.Schedule.Vendors
	spec := deps.Config.Schedule.CrawlSpec

	ctx := cmd.Context()

	scheduler := cron.New()
	_, err = scheduler.AddFunc(spec, func() {
		// Vendors run sequentially: each crawl already saturates its own
		// parallelism budget.
		for _, vendor := range vendors {
			result, crawlErr := harvester.Crawl(ctx, vendor)
			if crawlErr != nil {
				log.Error("scheduled crawl failed",
					"vendor", vendor,
					"error", crawlErr.Error(),
				)
				continue
			}
			log.Info("scheduled crawl finished",
				"vendor", vendor,
				"run_id", result.RunID,
				"records", result.Records,
				"failed_branches", len(result.Report.Failures()),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	log.Info("scheduler started", "spec", spec, "vendors", vendors)
	scheduler.Start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case <-interrupt:
		log.Info("shutdown signal received")
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	// Stop returns once running jobs have been cut loose; wait for the
	// in-flight crawl to finish before exiting.
	<-scheduler.Stop().Done()
	return nil
}
