package pipeline

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// Params is one pipeline invocation request.
type Params struct {
	StartDate time.Time
	EndDate   time.Time
	Locale    model.Locale

	// IssuerFilter restricts processing to the listed issuer codes.
	// Empty means all issuers.
	IssuerFilter []string

	// SampleCap stops classifying after this many relevant records.
	// Zero means no cap.
	SampleCap int

	DownloadAttachments bool
	Persist             bool
	OutputDir           string
}

// Validate fails fast before any network I/O, naming the offending
// parameter.
func (p Params) Validate() error {
	if p.StartDate.IsZero() {
		return eris.New("pipeline: start_date is required")
	}
	if p.EndDate.IsZero() {
		return eris.New("pipeline: end_date is required")
	}
	if p.EndDate.Before(p.StartDate) {
		return eris.Errorf("pipeline: end_date %s precedes start_date %s",
			p.EndDate.Format("2006-01-02"), p.StartDate.Format("2006-01-02"))
	}
	switch p.Locale {
	case model.LocaleEN, model.LocaleJA:
	default:
		return eris.Errorf("pipeline: locale must be %q or %q, got %q", model.LocaleEN, model.LocaleJA, p.Locale)
	}
	if p.SampleCap < 0 {
		return eris.Errorf("pipeline: sample_cap must not be negative, got %d", p.SampleCap)
	}
	if p.DownloadAttachments && p.OutputDir == "" {
		return eris.New("pipeline: output_dir is required when download_attachments is set")
	}
	for _, code := range p.IssuerFilter {
		if code == "" {
			return eris.New("pipeline: issuer_filter contains an empty code")
		}
	}
	return nil
}

// wantsIssuer reports whether code passes the filter.
func (p Params) wantsIssuer(code string) bool {
	if len(p.IssuerFilter) == 0 {
		return true
	}
	for _, c := range p.IssuerFilter {
		if c == code {
			return true
		}
	}
	return false
}
