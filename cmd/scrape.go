package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/backfill"
	"github.com/sells-group/disclosure-cli/internal/classify"
	"github.com/sells-group/disclosure-cli/internal/config"
	"github.com/sells-group/disclosure-cli/internal/docextract"
	"github.com/sells-group/disclosure-cli/internal/fetcher"
	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/pipeline"
	"github.com/sells-group/disclosure-cli/internal/resilience"
	"github.com/sells-group/disclosure-cli/internal/store"
)

var (
	scrapeStart     string
	scrapeEnd       string
	scrapeLocale    string
	scrapeIssuers   []string
	scrapeSampleCap int
	scrapeDownload  bool
	scrapePersist   bool
	scrapeOutputDir string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape and classify disclosure listings for a date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		start, err := time.Parse("2006-01-02", scrapeStart)
		if err != nil {
			return eris.Wrapf(err, "parse --start %q", scrapeStart)
		}
		end, err := time.Parse("2006-01-02", scrapeEnd)
		if err != nil {
			return eris.Wrapf(err, "parse --end %q", scrapeEnd)
		}

		var st store.Store
		if scrapePersist {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
		}

		tiers, err := loadTiers()
		if err != nil {
			return err
		}

		f := buildFetcher(cfg.Fetch)
		resolver := backfill.NewResolver(f, cfg.Scrape.ArchiveBaseURL, cfg.Backfill.LookbackDays)
		extractor := docextract.NewExtractor(cfg.Extract.PdfToTextPath, cfg.Extract.MinTextChars)

		p := pipeline.New(f, extractor, st, resolver, tiers, pipeline.Endpoints{
			SearchURL:      cfg.Scrape.SearchURL,
			ArchiveBaseURL: cfg.Scrape.ArchiveBaseURL,
		}, pipeline.Options{
			ItemsPerPage: cfg.Scrape.ItemsPerPage,
			MaxRangeDays: cfg.Scrape.MaxRangeDays,
		})

		outputDir := scrapeOutputDir
		if outputDir == "" {
			outputDir = cfg.Scrape.OutputDir
		}

		result, err := p.Run(ctx, pipeline.Params{
			StartDate:           start,
			EndDate:             end,
			Locale:              model.Locale(scrapeLocale),
			IssuerFilter:        scrapeIssuers,
			SampleCap:           scrapeSampleCap,
			DownloadAttachments: scrapeDownload,
			Persist:             scrapePersist,
			OutputDir:           outputDir,
		})
		if err != nil {
			return eris.Wrap(err, "scrape run")
		}

		zap.L().Info("scrape complete",
			zap.String("session", result.Session.ID),
			zap.Int("found", result.Session.TotalFound),
			zap.Int("classified", result.Session.TotalClassified),
			zap.Int("warnings", result.Session.WarningsCount()),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Rows)
	},
}

func buildFetcher(fc config.FetchConfig) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: fc.UserAgent,
		Timeout:   time.Duration(fc.TimeoutSecs) * time.Second,
		Delay:     time.Duration(fc.DelayMs) * time.Millisecond,
		Retry: resilience.RetryConfig{
			MaxAttempts: fc.MaxRetries,
		},
	})
}

func loadTiers() ([]classify.Tier, error) {
	if cfg.Classify.TiersPath == "" {
		return classify.DefaultTiers(), nil
	}
	tiers, err := classify.LoadTiers(cfg.Classify.TiersPath)
	if err != nil {
		return nil, eris.Wrapf(err, "load tiers from %s", cfg.Classify.TiersPath)
	}
	return tiers, nil
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeStart, "start", "", "range start date, YYYY-MM-DD (required)")
	scrapeCmd.Flags().StringVar(&scrapeEnd, "end", "", "range end date, YYYY-MM-DD (required)")
	scrapeCmd.Flags().StringVar(&scrapeLocale, "locale", "en", "listing locale: en or ja")
	scrapeCmd.Flags().StringSliceVar(&scrapeIssuers, "issuer", nil, "restrict to these issuer codes")
	scrapeCmd.Flags().IntVar(&scrapeSampleCap, "sample-cap", 0, "stop after this many classified records (0 = no cap)")
	scrapeCmd.Flags().BoolVar(&scrapeDownload, "download", false, "download attachments and extract deal facts")
	scrapeCmd.Flags().BoolVar(&scrapePersist, "persist", false, "write results to the configured store")
	scrapeCmd.Flags().StringVar(&scrapeOutputDir, "output-dir", "", "attachment output directory (defaults to scrape.output_dir)")
	_ = scrapeCmd.MarkFlagRequired("start")
	_ = scrapeCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(scrapeCmd)
}
