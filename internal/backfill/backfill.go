// Package backfill recovers attachment links that have expired from search
// results by re-reading the provider's day archive. The archive retains
// documents for roughly thirty days; outside that window the resolver
// answers immediately without touching the network, because the miss is
// guaranteed.
package backfill

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/fetcher"
	"github.com/sells-group/disclosure-cli/internal/listing"
	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/resilience"
)

// ErrNotFound is returned when the archive cannot supply a link, either
// because the publish date falls outside the retention window or because no
// archived row matches the business key.
var ErrNotFound = eris.New("backfill: document not found in archive")

// titlePrefixLen is how many leading runes must agree for a fuzzy title
// match. Archive titles occasionally differ from search titles in trailing
// annotations, so an exact match is tried first and a prefix match second.
const titlePrefixLen = 30

// Resolver re-derives day-archive URLs and matches records by business key.
type Resolver struct {
	fetch        fetcher.Fetcher
	baseURL      string
	lookbackDays int

	// now is a seam for window-boundary tests.
	now func() time.Time
}

// NewResolver creates a Resolver against the given day-archive base URL.
// lookbackDays of 0 uses the provider's documented 30-day retention.
func NewResolver(f fetcher.Fetcher, baseURL string, lookbackDays int) *Resolver {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	return &Resolver{
		fetch:        f,
		baseURL:      baseURL,
		lookbackDays: lookbackDays,
		now:          time.Now,
	}
}

// ResolveMissingLink finds the attachment URL for key by re-parsing the day
// archive for its publish date. Publish dates older than the retention
// window return ErrNotFound without any network call.
func (r *Resolver) ResolveMissingLink(ctx context.Context, key model.BusinessKey) (string, error) {
	day := key.PublishedAt
	age := midnight(r.now()).Sub(midnight(day))
	if age > time.Duration(r.lookbackDays)*24*time.Hour {
		zap.L().Debug("publish date outside archive window, skipping lookup",
			zap.String("key", key.String()),
			zap.Int("lookback_days", r.lookbackDays),
		)
		return "", ErrNotFound
	}

	for page := 1; ; page++ {
		pageURL := listing.DayArchiveURL(r.baseURL, day, page)
		body, err := r.fetch.Get(ctx, pageURL)
		if err != nil {
			// The archive 404s past its last page.
			var se *resilience.StatusError
			if errors.As(err, &se) && se.StatusCode == 404 {
				return "", ErrNotFound
			}
			return "", eris.Wrapf(err, "backfill: fetch archive page %d", page)
		}

		parsed, err := listing.ParseJA(body, day, pageURL)
		if err != nil {
			if errors.Is(err, listing.ErrLayoutChanged) {
				// Some archive days serve a bare placeholder page past the
				// last populated page.
				return "", ErrNotFound
			}
			return "", eris.Wrapf(err, "backfill: parse archive page %d", page)
		}
		if len(parsed.Announcements) == 0 {
			return "", ErrNotFound
		}

		if url := matchRow(parsed.Announcements, key); url != "" {
			zap.L().Info("backfilled attachment link from day archive",
				zap.String("key", key.String()),
				zap.Int("page", page),
			)
			return url, nil
		}
	}
}

// matchRow finds the row for key, preferring an exact title match and
// falling back to a leading-prefix match.
func matchRow(rows []model.Announcement, key model.BusinessKey) string {
	for _, row := range rows {
		if row.IssuerCode == key.IssuerCode && row.Title == key.Title && row.PDFURL != "" {
			return row.PDFURL
		}
	}

	prefix := runePrefix(key.Title, titlePrefixLen)
	if prefix == "" {
		return ""
	}
	for _, row := range rows {
		if row.IssuerCode == key.IssuerCode && runePrefix(row.Title, titlePrefixLen) == prefix && row.PDFURL != "" {
			return row.PDFURL
		}
	}
	return ""
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func runePrefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
