// Package listing parses disclosure listing pages into announcement rows.
// Two structural variants exist: the English ranged-search results table and
// the per-day Japanese archive table. Parsing is pure over the HTML input,
// so the same page always yields the same rows.
package listing

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/normalize"
)

// ErrLayoutChanged is returned when the expected listing container is absent
// from the page. This signals an upstream layout change that needs human
// review, so callers abort the run instead of skipping.
var ErrLayoutChanged = eris.New("listing: expected container not found, page layout may have changed")

// totalCountRe matches the results-count banner on the English search page.
var totalCountRe = regexp.MustCompile(`Total\s+(\d+)\s+Announcements?`)

// issuerCodeRe accepts 4 or 5 character issuer codes (digits, optionally a
// trailing letter on the 5th position).
var issuerCodeRe = regexp.MustCompile(`^\d{4,5}[A-Z0-9]?$`)

// ParseEN parses the English ranged-search results page. Rows live in
// table#maintable (older renderings use table.eng). Each data row carries at
// least seven cells: publish datetime, issuer code, company name, title with
// the attachment link, sector, exchange, and notes. Rows missing required
// fields are skipped with a warning.
func ParseEN(html []byte, baseURL string) (*model.ListingPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "listing: parse html")
	}

	table := doc.Find("table#maintable")
	if table.Length() == 0 {
		table = doc.Find("table.eng")
	}
	if table.Length() == 0 {
		return nil, ErrLayoutChanged
	}

	page := &model.ListingPage{}
	if m := totalCountRe.FindStringSubmatch(doc.Text()); m != nil {
		page.TotalCount = atoiSafe(m[1])
	}

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return // header row
		}
		if cells.Length() < 7 {
			page.Warnings = append(page.Warnings, eris.Errorf("row %d: expected 7 cells, got %d", i, cells.Length()).Error())
			return
		}

		publishedAt, err := normalize.Date(cellText(cells, 0))
		if err != nil {
			page.Warnings = append(page.Warnings, eris.Wrapf(err, "row %d: publish datetime", i).Error())
			return
		}

		code := cellText(cells, 1)
		if !issuerCodeRe.MatchString(code) {
			page.Warnings = append(page.Warnings, eris.Errorf("row %d: malformed issuer code %q", i, code).Error())
			return
		}

		title := cellText(cells, 3)
		if title == "" {
			page.Warnings = append(page.Warnings, eris.Errorf("row %d: empty title", i).Error())
			return
		}

		ann := model.Announcement{
			IssuerCode:  code,
			CompanyName: cellText(cells, 2),
			PublishedAt: publishedAt,
			Title:       title,
			Locale:      model.LocaleEN,
			Sector:      cellText(cells, 4),
			Notes:       cellText(cells, 6),
		}
		if href, ok := cells.Eq(3).Find("a").Attr("href"); ok {
			ann.PDFURL = resolveHref(baseURL, href)
		}
		page.Announcements = append(page.Announcements, ann)
	})

	return page, nil
}

// ParseJA parses one per-day Japanese archive page. Rows live in
// table#main-list-table; the page shows only a clock time per row, so the
// publish datetime is rebuilt by anchoring it on day. Column order: time,
// issuer code, company name, title with the attachment link, supplementary
// data link, listed exchange, update note.
func ParseJA(html []byte, day time.Time, baseURL string) (*model.ListingPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "listing: parse html")
	}

	table := doc.Find("table#main-list-table")
	if table.Length() == 0 {
		return nil, ErrLayoutChanged
	}

	page := &model.ListingPage{}
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return // header row uses th
		}
		if cells.Length() < 7 {
			page.Warnings = append(page.Warnings, eris.Errorf("row %d: expected 7 cells, got %d", i, cells.Length()).Error())
			return
		}

		publishedAt, err := normalize.ClockOn(day, cellText(cells, 0))
		if err != nil {
			page.Warnings = append(page.Warnings, eris.Wrapf(err, "row %d: publish time", i).Error())
			return
		}

		code := cellText(cells, 1)
		if !issuerCodeRe.MatchString(code) {
			page.Warnings = append(page.Warnings, eris.Errorf("row %d: malformed issuer code %q", i, code).Error())
			return
		}

		title := cellText(cells, 3)
		if title == "" {
			page.Warnings = append(page.Warnings, eris.Errorf("row %d: empty title", i).Error())
			return
		}

		ann := model.Announcement{
			IssuerCode:     code,
			CompanyName:    cellText(cells, 2),
			PublishedAt:    publishedAt,
			Title:          title,
			Locale:         model.LocaleJA,
			ListedExchange: cellText(cells, 5),
			Notes:          cellText(cells, 6),
		}
		if href, ok := cells.Eq(3).Find("a").Attr("href"); ok {
			ann.PDFURL = resolveHref(baseURL, href)
		}
		if href, ok := cells.Eq(4).Find("a").Attr("href"); ok {
			ann.XBRLURL = resolveHref(baseURL, href)
			ann.HasXBRL = true
		}
		page.Announcements = append(page.Announcements, ann)
	})

	return page, nil
}

// DayArchiveURL derives the Japanese day-archive page URL for a date and a
// 1-based page number, e.g. I_list_001_20260115.html. The archive serves a
// 404 or an empty table past the last page.
func DayArchiveURL(base string, day time.Time, page int) string {
	return fmt.Sprintf("%s/I_list_%03d_%s.html", strings.TrimSuffix(base, "/"), page, day.Format("20060102"))
}

// TotalCount extracts the results-count banner from an English search page.
// The second return is false when the page carries no banner.
func TotalCount(html []byte) (int, bool) {
	if m := totalCountRe.FindSubmatch(html); m != nil {
		return atoiSafe(string(m[1])), true
	}
	return 0, false
}

// PageCount returns how many result pages cover total records at perPage
// records each. A page exists even for zero results.
func PageCount(total, perPage int) int {
	if perPage < 1 || total <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

func cellText(cells *goquery.Selection, i int) string {
	return strings.TrimSpace(cells.Eq(i).Text())
}

func resolveHref(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	resolved, err := resolve(baseURL, href)
	if err != nil {
		return href
	}
	return resolved
}

func resolve(baseURL, href string) (string, error) {
	b, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
