package docextract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// Labeled patterns for placement filings. Amounts are stated with Japanese
// magnitude units, dates in YYYY年M月D日 form. Each pattern is independent;
// one failing never blocks the others.
var (
	investorRe   = regexp.MustCompile(`割当先[\s:：]*([^\n、。]{1,80})`)
	dealSizeRe   = regexp.MustCompile(`調達資金(?:の総額)?(?:（概算額?）)?[\s:：]*([0-9,，.]+)\s*(百万円|千円|万円|億円|円)`)
	sharePriceRe = regexp.MustCompile(`発行価額[^\n]{0,20}?([0-9,，.]+)\s*円`)
	shareCountRe = regexp.MustCompile(`発行新株式数[^0-9\n]{0,20}([0-9,，]+)\s*株`)
	dealDateRe   = regexp.MustCompile(`(?:払込期日|割当日|発行日)[\s:：]*([0-9０-９]{4})年\s*([0-9０-９]{1,2})月\s*([0-9０-９]{1,2})日`)

	// Quarterly cash-flow report items 8.6 and 8.7. N/A is a legitimate
	// answer for entities without a funding facility.
	totalFundingRe = regexp.MustCompile(`8\.6[^\n]*?(?:funding|facilities)[^\n]*?[\s$]([0-9,]+(?:\.[0-9]+)?|N/A)`)
	quartersRe     = regexp.MustCompile(`8\.7[^\n]*?quarters[^\n]*?\s([0-9]+(?:\.[0-9]+)?|N/A)`)

	// quarterlyMarkerRe gates the 8.6/8.7 misses: only documents that are
	// recognizably quarterly cash-flow reports warn about the funding items,
	// since placement filings never carry them.
	quarterlyMarkerRe = regexp.MustCompile(`(?i)appendix\s*5b|quarterly\s+(?:cash\s*flow|activities)\s+report`)
)

// structureMarkers map security-type tokens in the title or body to a deal
// structure label, most specific first.
var structureMarkers = []struct {
	token     string
	structure string
}{
	{"新株予約権付社債", "Convertible Bond"},
	{"転換社債", "Convertible Bond"},
	{"新株予約権", "Warrant"},
	{"新株式", "Common Stock"},
	{"convertible note", "Convertible Bond"},
	{"placement", "Common Stock"},
}

// magnitudes converts a Japanese amount unit to yen.
var magnitudes = map[string]float64{
	"円":   1,
	"千円":  1e3,
	"万円":  1e4,
	"百万円": 1e6,
	"億円":  1e8,
}

// ExtractFields pattern-matches the named deal fields out of an extracted
// document. Text matching runs first; fields it misses are retried against
// the table cells, since figures sometimes survive only in table structure.
// A document yielding zero fields still returns a DealFacts with warnings,
// because filings without a financial section are common and legitimate.
func ExtractFields(doc model.ExtractedDocument, title string) model.DealFacts {
	var facts model.DealFacts
	if doc.Method == model.ExtractionFailed {
		facts.Warnings = append(facts.Warnings, "extraction failed, no fields attempted")
		return facts
	}

	sources := []string{doc.Text}
	for _, row := range doc.TableCells {
		sources = append(sources, strings.Join(row, " "))
	}

	if v := findFirst(investorRe, sources, 1); v != "" {
		investor := strings.TrimSpace(v)
		facts.Investor = &investor
	} else {
		facts.Warnings = append(facts.Warnings, "field not found: investor")
	}

	if m := findAll(dealSizeRe, sources); m != nil {
		if amount, ok := parseAmount(m[1]); ok {
			yen := amount * magnitudes[m[2]]
			cur := "JPY"
			facts.DealSize = &yen
			facts.DealSizeCurrency = &cur
		}
	}
	if facts.DealSize == nil {
		facts.Warnings = append(facts.Warnings, "field not found: deal size")
	}

	if v := findFirst(sharePriceRe, sources, 1); v != "" {
		if price, ok := parseAmount(v); ok {
			facts.SharePrice = &price
		}
	}
	if facts.SharePrice == nil {
		facts.Warnings = append(facts.Warnings, "field not found: share price")
	}

	if v := findFirst(shareCountRe, sources, 1); v != "" {
		if n, err := strconv.ParseInt(stripSeparators(v), 10, 64); err == nil {
			facts.ShareCount = &n
		}
	}
	if facts.ShareCount == nil {
		facts.Warnings = append(facts.Warnings, "field not found: share count")
	}

	if m := findAll(dealDateRe, sources); m != nil {
		if d, ok := parseJaDate(m[1], m[2], m[3]); ok {
			facts.DealDate = &d
		}
	}
	if facts.DealDate == nil {
		facts.Warnings = append(facts.Warnings, "field not found: deal date")
	}

	if s := detectStructure(title + "\n" + doc.Text); s != "" {
		facts.DealStructure = &s
	} else {
		facts.Warnings = append(facts.Warnings, "field not found: deal structure")
	}

	funding := findFirst(totalFundingRe, sources, 1)
	if funding != "" && funding != "N/A" {
		if amount, ok := parseAmount(funding); ok {
			facts.TotalAvailableFunding = &amount
		}
	}
	quarters := findFirst(quartersRe, sources, 1)
	if quarters != "" && quarters != "N/A" {
		if q, err := strconv.ParseFloat(quarters, 64); err == nil {
			facts.EstimatedQuarters = &q
		}
	}
	// An explicit N/A is an answer, not a miss.
	if anyMatch(quarterlyMarkerRe, append(sources, title)) {
		if funding == "" {
			facts.Warnings = append(facts.Warnings, "field not found: total available funding")
		}
		if quarters == "" {
			facts.Warnings = append(facts.Warnings, "field not found: estimated quarters")
		}
	}

	return facts
}

func detectStructure(text string) string {
	folded := strings.ToLower(width.Fold.String(text))
	for _, m := range structureMarkers {
		if strings.Contains(folded, m.token) {
			return m.structure
		}
	}
	return ""
}

func findFirst(re *regexp.Regexp, sources []string, group int) string {
	for _, s := range sources {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[group]
		}
	}
	return ""
}

func anyMatch(re *regexp.Regexp, sources []string) bool {
	for _, s := range sources {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func findAll(re *regexp.Regexp, sources []string) []string {
	for _, s := range sources {
		if m := re.FindStringSubmatch(s); m != nil {
			return m
		}
	}
	return nil
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(stripSeparators(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func stripSeparators(s string) string {
	s = width.Narrow.String(s)
	return strings.NewReplacer(",", "", " ", "").Replace(s)
}

func parseJaDate(y, m, d string) (time.Time, bool) {
	yi, err1 := strconv.Atoi(width.Narrow.String(y))
	mi, err2 := strconv.Atoi(width.Narrow.String(m))
	di, err3 := strconv.Atoi(width.Narrow.String(d))
	if err1 != nil || err2 != nil || err3 != nil || mi < 1 || mi > 12 || di < 1 || di > 31 {
		return time.Time{}, false
	}
	return time.Date(yi, time.Month(mi), di, 0, 0, 0, 0, time.UTC), true
}
