package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ygulsen/applypilot/internal/driver"
	"github.com/ygulsen/applypilot/internal/jobs"
	"github.com/ygulsen/applypilot/internal/observability"
	"github.com/ygulsen/applypilot/internal/operator"
	"github.com/ygulsen/applypilot/internal/store"
)

// newApplyCmd creates the `apply` command: work through the rows the
// operator marked in the latest filtered scrape run.
func newApplyCmd() *cobra.Command {
	applyCmd := &cobra.Command{
		Use:   "apply [queue-file]",
		Short: "Applies to the marked jobs in the latest filtered scrape run",
		Long: `Reads the latest filtered scrape file (or the one given as an argument),
selects the rows marked in the apply-status column, and works through them one
browser session at a time. Stored company flows replay automatically; unknown
pages and unknown questions prompt the operator and are remembered.`,
		Args: cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			defer observability.Sync()

			queuePath := ""
			if len(args) == 1 {
				queuePath = args[0]
			} else {
				var err error
				queuePath, _, err = jobs.LatestRunFile(cfg.Queue.ScrapeDir, cfg.Queue.FilePattern)
				if err != nil {
					return fmt.Errorf("locating queue file: %w", err)
				}
			}
			logger.Info("Using queue file.", zap.String("file", filepath.Base(queuePath)))

			queue, err := jobs.ReadMarked(queuePath, cfg.Queue.MarkerColumn, cfg.Queue.MarkerValue, logger)
			if err != nil {
				return err
			}

			answers := store.OpenAnswers(cfg.Stores.AnswersFile, logger)
			flows := store.OpenFlows(cfg.Stores.FlowsFile, logger)
			defer func() {
				// Belt and braces: the driver flushes per job, this covers
				// an early exit.
				_ = answers.Flush()
				_ = flows.Flush()
			}()

			op := operator.NewConsole()
			d := driver.New(cfg, answers, flows, op, logger)
			return d.Run(ctx, queue)
		},
	}
	return applyCmd
}
