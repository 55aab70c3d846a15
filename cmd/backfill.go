package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/backfill"
	"github.com/sells-group/disclosure-cli/internal/model"
)

var (
	backfillCode  string
	backfillDate  string
	backfillTitle string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Recover a missing PDF link from the day archive",
	Long:  "Searches the per-day archive pages around the announcement's publication date for a row matching the issuer and title, and prints the recovered PDF URL.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		day, err := time.Parse("2006-01-02", backfillDate)
		if err != nil {
			return eris.Wrapf(err, "parse --date %q", backfillDate)
		}

		f := buildFetcher(cfg.Fetch)
		resolver := backfill.NewResolver(f, cfg.Scrape.ArchiveBaseURL, cfg.Backfill.LookbackDays)

		pdfURL, err := resolver.ResolveMissingLink(ctx, model.BusinessKey{
			IssuerCode:  backfillCode,
			PublishedAt: day,
			Title:       backfillTitle,
			Locale:      model.LocaleJA,
		})
		if err != nil {
			if eris.Is(err, backfill.ErrNotFound) {
				zap.L().Warn("no archive row matched",
					zap.String("issuer_code", backfillCode),
					zap.String("date", backfillDate),
				)
				return err
			}
			return eris.Wrap(err, "resolve missing link")
		}

		fmt.Println(pdfURL)
		return nil
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillCode, "code", "", "issuer code (required)")
	backfillCmd.Flags().StringVar(&backfillDate, "date", "", "publication date, YYYY-MM-DD (required)")
	backfillCmd.Flags().StringVar(&backfillTitle, "title", "", "announcement title (required)")
	_ = backfillCmd.MarkFlagRequired("code")
	_ = backfillCmd.MarkFlagRequired("date")
	_ = backfillCmd.MarkFlagRequired("title")
	rootCmd.AddCommand(backfillCmd)
}
