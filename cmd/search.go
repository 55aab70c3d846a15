package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/search"
)

var (
	searchStart   string
	searchEnd     string
	searchPersist bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run tiered full-text queries for a date range",
	Long:  "Runs every classifier tier as a full-text provider query in precision order, de-duplicates hits on business key across tiers, and stops each query as soon as results predate the range.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		start, err := time.Parse("2006-01-02", searchStart)
		if err != nil {
			return eris.Wrapf(err, "parse --start %q", searchStart)
		}
		end, err := time.Parse("2006-01-02", searchEnd)
		if err != nil {
			return eris.Wrapf(err, "parse --end %q", searchEnd)
		}
		if cfg.Search.URL == "" {
			return eris.New("search.url is not configured")
		}

		tiers, err := loadTiers()
		if err != nil {
			return err
		}

		s := search.NewSearcher(buildFetcher(cfg.Fetch), cfg.Search.URL, tiers, search.Options{
			MaxPages: cfg.Search.MaxPages,
		})

		result, err := s.Search(ctx, start, end)
		if err != nil {
			return eris.Wrap(err, "search run")
		}

		if searchPersist {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
			for _, entry := range result.Entries {
				if err := st.UpsertClassified(ctx, entry); err != nil {
					zap.L().Error("persist classified failed",
						zap.String("issuer_code", entry.IssuerCode),
						zap.Error(err),
					)
				}
			}
		}

		zap.L().Info("search complete",
			zap.Int("queries", len(result.QueriesRun)),
			zap.Int("entries", len(result.Entries)),
			zap.Int("warnings", len(result.Warnings)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchStart, "start", "", "range start date, YYYY-MM-DD (required)")
	searchCmd.Flags().StringVar(&searchEnd, "end", "", "range end date, YYYY-MM-DD (required)")
	searchCmd.Flags().BoolVar(&searchPersist, "persist", false, "upsert hits into the configured store")
	_ = searchCmd.MarkFlagRequired("start")
	_ = searchCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(searchCmd)
}
