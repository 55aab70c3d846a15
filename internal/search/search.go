// Package search drives the full-text disclosure search provider. Each
// classifier tier expands into one query per positive-term group (negative
// terms become minus-prefixed exclusions), queries run in tier priority
// order, and results de-duplicate on business key across tiers so the
// highest-precision tier owns a record it shares with a lower one. The
// provider returns newest-first pages, so a query stops as soon as a page
// holds nothing newer than the requested range start.
package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/classify"
	"github.com/sells-group/disclosure-cli/internal/fetcher"
	"github.com/sells-group/disclosure-cli/internal/model"
)

// defaultMaxPages caps the page walk per query against runaway pagination.
const defaultMaxPages = 100

// Searcher runs tiered full-text queries against the search provider.
type Searcher struct {
	fetch     fetcher.Fetcher
	searchURL string
	tiers     []classify.Tier
	maxPages  int
}

// Options configures optional searcher behavior.
type Options struct {
	// MaxPages caps pagination per query. Default 100.
	MaxPages int
}

// NewSearcher creates a Searcher. Empty tiers fall back to the built-in
// placement tiers.
func NewSearcher(f fetcher.Fetcher, searchURL string, tiers []classify.Tier, opts Options) *Searcher {
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	if len(tiers) == 0 {
		tiers = classify.DefaultTiers()
	}
	return &Searcher{
		fetch:     f,
		searchURL: searchURL,
		tiers:     tiers,
		maxPages:  opts.MaxPages,
	}
}

// Result is the outcome of one tiered search run.
type Result struct {
	// Entries are the de-duplicated matches in tier order, each tagged with
	// the first tier whose query returned it.
	Entries []model.Classified `json:"entries"`

	// QueriesRun lists every query string issued, in order.
	QueriesRun []string `json:"queries_run"`

	Warnings []string `json:"warnings,omitempty"`
}

// Search runs every tier query over the inclusive [start, end] date range.
// A failing query degrades to a warning and the remaining queries still run.
func (s *Searcher) Search(ctx context.Context, start, end time.Time) (*Result, error) {
	if end.Before(start) {
		return nil, eris.Errorf("search: end date %s precedes start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	startDay := midnight(start)
	endDay := midnight(end)

	res := &Result{}
	seen := map[model.BusinessKey]struct{}{}

	for _, tier := range s.tiers {
		for _, group := range tier.Groups {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			query := BuildQuery(group, tier.Negative)
			res.QueriesRun = append(res.QueriesRun, query)
			s.runQuery(ctx, query, tier.Name, group, startDay, endDay, seen, res)
		}
	}

	zap.L().Info("tiered search finished",
		zap.Int("queries", len(res.QueriesRun)),
		zap.Int("entries", len(res.Entries)),
		zap.Int("warnings", len(res.Warnings)),
	)
	return res, nil
}

// runQuery walks one query's result pages, collecting in-range rows the run
// has not seen under another tier. Two consecutive empty pages or a page
// with nothing newer than startDay end the walk; a fetch failure ends it
// with a warning.
func (s *Searcher) runQuery(ctx context.Context, query, tierName string, group []string, startDay, endDay time.Time, seen map[model.BusinessKey]struct{}, res *Result) {
	consecutiveEmpty := 0
	for page := 1; page <= s.maxPages; page++ {
		pageURL := s.pageURL(query, page)
		body, err := s.fetch.Get(ctx, pageURL)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("query %q page %d: %s", query, page, err.Error()))
			return
		}

		rows, warnings := parseResults(body, pageURL)
		res.Warnings = append(res.Warnings, warnings...)

		if len(rows) == 0 {
			consecutiveEmpty++
			if consecutiveEmpty >= 2 {
				return
			}
			continue
		}
		consecutiveEmpty = 0

		// Pages are newest-first: once even the newest row predates the
		// range, every later page does too.
		if newestDay(rows).Before(startDay) {
			return
		}

		for _, ann := range rows {
			day := midnight(ann.PublishedAt)
			if day.Before(startDay) || day.After(endDay) {
				continue
			}
			key := ann.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			res.Entries = append(res.Entries, model.Classified{
				Announcement:    ann,
				MatchedKeywords: group,
				Tier:            tierName,
			})
		}
	}
}

// BuildQuery renders one positive-term group plus tier-level exclusions as a
// provider query string, e.g. "第三者割当 新株予約権 -払込完了".
func BuildQuery(group, negative []string) string {
	parts := make([]string, 0, len(group)+len(negative))
	parts = append(parts, group...)
	for _, n := range negative {
		parts = append(parts, "-"+n)
	}
	return strings.Join(parts, " ")
}

func (s *Searcher) pageURL(query string, page int) string {
	return fmt.Sprintf("%s?query=%s&page=%d", s.searchURL, url.QueryEscape(query), page)
}

func newestDay(rows []model.Announcement) time.Time {
	var newest time.Time
	for _, r := range rows {
		if d := midnight(r.PublishedAt); d.After(newest) {
			newest = d
		}
	}
	return newest
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
