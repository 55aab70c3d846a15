// Package session accumulates per-run counters and warnings into the
// ScrapeSession summary. The summary is the one artifact a run always
// produces, even when every individual record failed.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// Aggregator observes every pipeline stage for one run. It is not safe for
// concurrent use; the pipeline is sequential by contract.
type Aggregator struct {
	session model.ScrapeSession
}

// New starts an aggregator for a run over [start, end].
func New(start, end time.Time, locale model.Locale) *Aggregator {
	return &Aggregator{
		session: model.ScrapeSession{
			ID:        uuid.NewString(),
			StartDate: start,
			EndDate:   end,
			Locale:    locale,
			StartedAt: time.Now(),
		},
	}
}

// RecordFound counts listing rows seen.
func (a *Aggregator) RecordFound(n int) {
	a.session.TotalFound += n
}

// RecordClassified counts rows that matched a tier.
func (a *Aggregator) RecordClassified() {
	a.session.TotalClassified++
}

// ExtractionAttempt counts a document handed to the extractor.
func (a *Aggregator) ExtractionAttempt() {
	a.session.ExtractionAttempts++
}

// ExtractionSuccess counts a document whose text extraction did not fail.
func (a *Aggregator) ExtractionSuccess() {
	a.session.ExtractionSuccess++
}

// Warn attaches a warning. key is the owning record's business key, or
// empty for run-level warnings.
func (a *Aggregator) Warn(key, message string) {
	a.session.Warnings = append(a.session.Warnings, model.Warning{Key: key, Message: message})
}

// Finalize stamps the end time and returns the completed session. The
// aggregator may be finalized mid-run on cancellation; the partial counts
// remain valid.
func (a *Aggregator) Finalize() model.ScrapeSession {
	a.session.FinishedAt = time.Now()
	a.session.Duration = a.session.FinishedAt.Sub(a.session.StartedAt)
	return a.session
}
