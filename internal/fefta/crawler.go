// Package fefta tracks the ministry's foreign-investment classification
// list: it discovers the latest published workbook on the ministry page,
// downloads it under a dated filename, and parses the company rows.
package fefta

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/fetcher"
	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/normalize"
)

// Crawler discovers and downloads classification workbooks.
type Crawler struct {
	fetch   fetcher.Fetcher
	pageURL string

	// now is a seam for download-date stamping in tests.
	now func() time.Time
}

// NewCrawler creates a Crawler against the ministry listing page.
func NewCrawler(f fetcher.Fetcher, pageURL string) *Crawler {
	return &Crawler{fetch: f, pageURL: pageURL, now: time.Now}
}

// DiscoverLatest fetches the ministry page and returns the most recent
// workbook link. Candidate links are anchors pointing at .xlsx files whose
// text carries an "As of ..." publication date; the latest date wins.
func (c *Crawler) DiscoverLatest(ctx context.Context) (*model.FeftaSource, error) {
	body, err := c.fetch.Get(ctx, c.pageURL)
	if err != nil {
		return nil, eris.Wrap(err, "fefta: fetch ministry page")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "fefta: parse ministry page")
	}

	var latest *model.FeftaSource
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || !strings.HasSuffix(strings.ToLower(href), ".xlsx") {
			return
		}
		text := strings.TrimSpace(a.Text())
		asOf, err := normalize.Date(text)
		if err != nil {
			// Links without a parseable date are other ministry documents.
			return
		}
		if latest != nil && !asOf.After(latest.AsOfDate) {
			return
		}
		latest = &model.FeftaSource{
			AsOfRaw:  text,
			AsOfDate: asOf,
			FileURL:  c.resolve(href),
		}
	})

	if latest == nil {
		return nil, eris.Errorf("fefta: no dated workbook link found on %s", c.pageURL)
	}
	zap.L().Info("discovered latest classification list",
		zap.String("as_of", latest.AsOfDate.Format("2006-01-02")),
		zap.String("url", latest.FileURL),
	)
	return latest, nil
}

// Download saves the workbook under outputDir as
// {as-of date}_{original filename} and fills in SavedPath and DownloadDate.
func (c *Crawler) Download(ctx context.Context, src *model.FeftaSource, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return eris.Wrapf(err, "fefta: create output dir %s", outputDir)
	}

	name := "list.xlsx"
	if u, err := url.Parse(src.FileURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "." {
			name = base
		}
	}
	dest := filepath.Join(outputDir, src.AsOfDate.Format("2006_01_02")+"_"+name)

	if _, err := c.fetch.DownloadToFile(ctx, src.FileURL, dest); err != nil {
		return eris.Wrapf(err, "fefta: download workbook %s", src.FileURL)
	}
	src.SavedPath = dest
	src.DownloadDate = c.now()
	return nil
}

func (c *Crawler) resolve(href string) string {
	base, err := url.Parse(c.pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
