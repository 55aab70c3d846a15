package search

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/normalize"
)

// descriptionRunes caps the excerpt taken from a description row.
const descriptionRunes = 200

// parseResults parses one search-results page. Result rows carry four cells
// (publish datetime, issuer code, company name, title with the attachment
// link); a single full-width cell following a result row holds that row's
// description excerpt. A page without a results table parses to zero rows,
// which is how the provider renders past the last page. Malformed rows are
// skipped with a warning.
func parseResults(html []byte, pageURL string) ([]model.Announcement, []string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, []string{eris.Wrap(err, "search: parse html").Error()}
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, nil
	}

	var (
		rows     []model.Announcement
		warnings []string
	)
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return // header row
		}

		// A lone spanning cell is the description of the preceding result.
		if cells.Length() == 1 {
			if _, ok := cells.Attr("colspan"); ok && len(rows) > 0 {
				if desc := strings.TrimSpace(cells.Text()); desc != "" {
					rows[len(rows)-1].Notes = truncateRunes(desc, descriptionRunes)
				}
			}
			return
		}
		if cells.Length() < 4 {
			warnings = append(warnings, eris.Errorf("row %d: expected 4 cells, got %d", i, cells.Length()).Error())
			return
		}

		publishedAt, err := normalize.Date(cellText(cells, 0))
		if err != nil {
			warnings = append(warnings, eris.Wrapf(err, "row %d: publish datetime", i).Error())
			return
		}

		title := cellText(cells, 3)
		if title == "" {
			warnings = append(warnings, eris.Errorf("row %d: empty title", i).Error())
			return
		}

		ann := model.Announcement{
			IssuerCode:  cellText(cells, 1),
			CompanyName: cellText(cells, 2),
			PublishedAt: publishedAt,
			Title:       title,
			Locale:      model.LocaleJA,
		}
		if href, ok := cells.Eq(3).Find("a").Attr("href"); ok {
			ann.PDFURL = resolveHref(pageURL, href)
		}
		rows = append(rows, ann)
	})

	return rows, warnings
}

func cellText(cells *goquery.Selection, i int) string {
	return strings.TrimSpace(cells.Eq(i).Text())
}

func resolveHref(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	r, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(r).String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
