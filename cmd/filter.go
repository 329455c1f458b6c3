package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ygulsen/applypilot/internal/jobs"
	"github.com/ygulsen/applypilot/internal/observability"
)

// newFilterCmd creates the `filter` command: keyword-filter the latest raw
// scrape run into the file the apply queue reads from.
func newFilterCmd() *cobra.Command {
	filterCmd := &cobra.Command{
		Use:   "filter",
		Short: "Filters the latest scrape run by the configured title keywords",
		Long: `Reads the newest raw scrape file, keeps listings whose title matches an
include term and no omit term, drops duplicates, and writes the filtered file
with an empty apply-status column for hand-marking.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			defer observability.Sync()

			outPath, kept, err := jobs.FilterLatest(
				cfg.Queue.ScrapeDir,
				cfg.Queue.FilePattern,
				cfg.Filter.IncludeTerms,
				cfg.Filter.OmitTerms,
				cfg.Queue.MarkerColumn,
				logger,
			)
			if err != nil {
				return err
			}
			logger.Info("Filter complete.", zap.String("file", outPath), zap.Int("kept", kept))
			return nil
		},
	}
	return filterCmd
}
