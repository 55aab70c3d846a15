// Package normalize converts locale-specific glyphs and provider date text
// into canonical Go types. It never guesses: anything outside the known
// formats is a typed error carrying enough context to name the bad row.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

// circledNumerals maps the circled glyphs 1-10 used by ministry workbooks.
var circledNumerals = map[string]int{
	"①": 1, "②": 2, "③": 3, "④": 4, "⑤": 5,
	"⑥": 6, "⑦": 7, "⑧": 8, "⑨": 9, "⑩": 10,
}

// UnmappedGlyphError reports a glyph that is neither a circled numeral 1-10
// nor a plain digit, identifying the source row and column.
type UnmappedGlyphError struct {
	Glyph  string
	Row    int
	Column string
}

func (e *UnmappedGlyphError) Error() string {
	return fmt.Sprintf("normalize: cannot map %q in column %q at row %d (expected circled numeral ①-⑩ or integer 1-10)", e.Glyph, e.Column, e.Row)
}

// DateParseError reports text that matched none of the known provider date
// formats. Text is carried verbatim for diagnosis.
type DateParseError struct {
	Text string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("normalize: cannot parse date from %q", e.Text)
}

// Numeral converts a circled-numeral glyph or half-width digit string to an
// integer in 1..10. Row and column name the source cell in the error.
func Numeral(value string, row int, column string) (int, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, &UnmappedGlyphError{Glyph: value, Row: row, Column: column}
	}
	if n, ok := circledNumerals[v]; ok {
		return n, nil
	}
	if n, err := strconv.Atoi(width.Narrow.String(v)); err == nil && n >= 1 && n <= 10 {
		return n, nil
	}
	return 0, &UnmappedGlyphError{Glyph: v, Row: row, Column: column}
}

// OptionalNumeral is Numeral for columns where the cell may legitimately be
// blank or a dash. Empty values map to (nil, nil).
func OptionalNumeral(value string, row int, column string) (*int, error) {
	v := strings.TrimSpace(value)
	if v == "" || v == "-" || v == "－" {
		return nil, nil
	}
	n, err := Numeral(v, row, column)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// dateLayouts are the provider formats we accept, tried in order.
var dateLayouts = []string{
	"2006/01/02 15:04",
	"2006/01/02",
	"2006-01-02",
	"2 January, 2006",
	"2 January 2006",
}

// Date parses provider date text. "As of" prefixes from ministry link text
// are stripped before matching. On no match it returns a DateParseError
// carrying the original text.
func Date(text string) (time.Time, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimSpace(strings.TrimPrefix(s, "As of"))
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &DateParseError{Text: text}
}

// ClockOn parses an HH:MM fragment and anchors it on day. Listing variants
// that split date and time across the page use this to rebuild the publish
// datetime.
func ClockOn(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, &DateParseError{Text: clock}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// Fold lowercases and narrows text so half-width and full-width variants of
// the same token compare equal. Keyword matching runs over folded text.
func Fold(s string) string {
	return strings.ToLower(width.Fold.String(s))
}
