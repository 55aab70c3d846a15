package model

import "time"

// ExtractionMethod records which text-extraction strategy produced a
// document's text.
type ExtractionMethod string

const (
	ExtractionPrimary  ExtractionMethod = "primary"
	ExtractionFallback ExtractionMethod = "fallback"
	ExtractionFailed   ExtractionMethod = "failed"
)

// ExtractedDocument holds the attachment-derived state for one announcement.
// Method == ExtractionFailed implies empty Text; downstream field extraction
// short-circuits on it without raising an error.
type ExtractedDocument struct {
	Path       string           `json:"path"`
	Text       string           `json:"text"`
	TableCells [][]string       `json:"table_cells,omitempty"`
	Method     ExtractionMethod `json:"method"`
}

// DealFacts holds the named fields pattern-matched out of an extracted
// document. Every field is independently nullable; a missing field is a
// warning on the record, never a fatal condition.
type DealFacts struct {
	Investor         *string    `json:"investor,omitempty"`
	DealSize         *float64   `json:"deal_size,omitempty"`
	DealSizeCurrency *string    `json:"deal_size_currency,omitempty"`
	SharePrice       *float64   `json:"share_price,omitempty"`
	ShareCount       *int64     `json:"share_count,omitempty"`
	DealDate         *time.Time `json:"deal_date,omitempty"`
	DealStructure    *string    `json:"deal_structure,omitempty"`

	// Quarterly cash-flow report facts (items 8.6 / 8.7).
	TotalAvailableFunding *float64 `json:"total_available_funding,omitempty"`
	EstimatedQuarters     *float64 `json:"estimated_quarters,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// Empty reports whether no field was extracted at all.
func (f DealFacts) Empty() bool {
	return f.Investor == nil && f.DealSize == nil && f.SharePrice == nil &&
		f.ShareCount == nil && f.DealDate == nil && f.DealStructure == nil &&
		f.TotalAvailableFunding == nil && f.EstimatedQuarters == nil
}

// FactsRecord ties deal facts back to the owning announcement for
// persistence. Its business key is (issuer code, report date, title).
type FactsRecord struct {
	IssuerCode string    `json:"issuer_code"`
	ReportDate time.Time `json:"report_date"`
	Title      string    `json:"title"`
	PDFURL     string    `json:"pdf_url,omitempty"`
	Downloaded bool      `json:"downloaded"`
	LocalPath  string    `json:"local_path,omitempty"`
	Facts      DealFacts `json:"facts"`
}
