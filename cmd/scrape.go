package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ygulsen/applypilot/internal/browser"
	"github.com/ygulsen/applypilot/internal/config"
	"github.com/ygulsen/applypilot/internal/observability"
	"github.com/ygulsen/applypilot/internal/scraper"
)

// newScrapeCmd creates the `scrape` command: collect listings for every
// company in the companies file into a new run-numbered CSV.
func newScrapeCmd() *cobra.Command {
	scrapeCmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrapes job listings for the configured companies",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("scraper.companies_file", cmd.Flags().Lookup("companies")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			defer observability.Sync()

			// Re-resolve the config now that the command's flags are bound,
			// so flag overrides land with the right precedence.
			loaded, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			cfg = loaded

			session, err := browser.NewSession(ctx, cfg.Browser, logger)
			if err != nil {
				return err
			}
			defer session.Close()

			// The raw pattern is the filtered pattern minus its prefix, so
			// the filter and queue stages find this run by number.
			rawPattern := strings.TrimPrefix(cfg.Queue.FilePattern, "filtered_")

			s := scraper.New(session, cfg.Scraper, logger)
			outPath, count, err := s.Run(ctx, rawPattern)
			if err != nil {
				return err
			}
			logger.Info("Scrape complete.",
				zap.String("file", outPath), zap.Int("listings", count))
			return nil
		},
	}
	scrapeCmd.Flags().String("companies", "", "companies file, one name per line")
	return scrapeCmd
}
