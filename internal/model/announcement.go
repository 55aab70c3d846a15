package model

import (
	"fmt"
	"time"
)

// Locale identifies which listing variant a record came from.
type Locale string

const (
	LocaleEN Locale = "en"
	LocaleJA Locale = "ja"
)

// Announcement is one row from a disclosure listing page. It is created once
// per parse and never mutated afterwards.
type Announcement struct {
	IssuerCode  string    `json:"issuer_code"`
	CompanyName string    `json:"company_name"`
	PublishedAt time.Time `json:"published_at"`
	Title       string    `json:"title"`
	PDFURL      string    `json:"pdf_url,omitempty"`
	Locale      Locale    `json:"locale"`

	// EN listing only.
	Sector string `json:"sector,omitempty"`

	// JA listing only.
	ListedExchange string `json:"listed_exchange,omitempty"`
	XBRLURL        string `json:"xbrl_url,omitempty"`

	HasXBRL bool   `json:"has_xbrl"`
	Notes   string `json:"notes,omitempty"`
}

// BusinessKey is the natural composite identity of an announcement. It is
// stable across re-fetches of the same listing page and drives idempotent
// persistence.
type BusinessKey struct {
	IssuerCode  string    `json:"issuer_code"`
	PublishedAt time.Time `json:"published_at"`
	Title       string    `json:"title"`
	Locale      Locale    `json:"locale"`
}

// Key returns the announcement's business key.
func (a Announcement) Key() BusinessKey {
	return BusinessKey{
		IssuerCode:  a.IssuerCode,
		PublishedAt: a.PublishedAt,
		Title:       a.Title,
		Locale:      a.Locale,
	}
}

// String renders the key in a compact loggable form.
func (k BusinessKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.IssuerCode, k.PublishedAt.Format("2006-01-02 15:04"), k.Title, k.Locale)
}

// Classified is an announcement plus its keyword-match outcome. Derived by
// the classifier, never mutated. An empty MatchedKeywords set means the
// record is not persisted to the classified table.
type Classified struct {
	Announcement

	MatchedKeywords []string `json:"matched_keywords"`
	Tier            string   `json:"tier,omitempty"`
}

// Relevant reports whether the announcement matched any tier.
func (c Classified) Relevant() bool {
	return c.Tier != "" && len(c.MatchedKeywords) > 0
}

// ListingPage is the parse result for one listing page: the rows plus the
// page-level total-count indicator (0 when the page does not carry one) and
// per-row warnings for skipped malformed rows.
type ListingPage struct {
	Announcements []Announcement `json:"announcements"`
	TotalCount    int            `json:"total_count"`
	Warnings      []string       `json:"warnings,omitempty"`
}
