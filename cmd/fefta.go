package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/fefta"
	"github.com/sells-group/disclosure-cli/internal/store"
)

var feftaCmd = &cobra.Command{
	Use:   "fefta",
	Short: "Track the ministry FDI classification list",
}

var feftaSyncPersist bool

var feftaSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download the latest classification workbook and report changes",
	Long:  "Discovers the newest workbook on the ministry page, downloads and parses it, diffs it against the last stored snapshot, and prints the classification changes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f := buildFetcher(cfg.Fetch)
		crawler := fefta.NewCrawler(f, cfg.Fefta.PageURL)

		src, err := crawler.DiscoverLatest(ctx)
		if err != nil {
			return eris.Wrap(err, "discover latest workbook")
		}
		zap.L().Info("latest workbook discovered",
			zap.String("as_of", src.AsOfRaw),
			zap.String("url", src.FileURL),
		)

		if err := crawler.Download(ctx, src, cfg.Fefta.OutputDir); err != nil {
			return eris.Wrap(err, "download workbook")
		}

		records, err := fefta.ParseWorkbook(src.SavedPath, cfg.Fefta.SheetName)
		if err != nil {
			return eris.Wrap(err, "parse workbook")
		}
		zap.L().Info("workbook parsed", zap.Int("companies", len(records)))

		var changes []store.FeftaChange
		if feftaSyncPersist {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}

			prevSrc, prev, err := st.LatestFeftaSnapshot(ctx)
			if err != nil {
				return eris.Wrap(err, "load previous snapshot")
			}
			if prevSrc != nil {
				changes = store.DiffFeftaSnapshots(prev, records)
				zap.L().Info("snapshot diffed",
					zap.Time("previous_as_of", prevSrc.AsOfDate),
					zap.Int("changes", len(changes)),
				)
			}

			if err := st.SaveFeftaSnapshot(ctx, *src, records); err != nil {
				return eris.Wrap(err, "save snapshot")
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(changes)
	},
}

var feftaParseFile string

var feftaParseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse a local classification workbook and print its rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := fefta.ParseWorkbook(feftaParseFile, cfg.Fefta.SheetName)
		if err != nil {
			return eris.Wrap(err, "parse workbook")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	},
}

func init() {
	feftaSyncCmd.Flags().BoolVar(&feftaSyncPersist, "persist", false, "diff against and save to the configured store")
	feftaParseCmd.Flags().StringVar(&feftaParseFile, "file", "", "workbook path (required)")
	_ = feftaParseCmd.MarkFlagRequired("file")

	feftaCmd.AddCommand(feftaSyncCmd)
	feftaCmd.AddCommand(feftaParseCmd)
	rootCmd.AddCommand(feftaCmd)
}
