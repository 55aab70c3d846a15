package model

import "time"

// Warning ties a warning message to the record it belongs to. Key is empty
// for run-level warnings (e.g. a sub-range that exhausted retries).
type Warning struct {
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
}

// ScrapeSession summarizes one pipeline invocation. It is created at run
// start and finalized at run end; partial sessions from an interrupted run
// are still valid and persistable.
type ScrapeSession struct {
	ID        string    `json:"id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Locale    Locale    `json:"locale"`

	TotalFound         int `json:"total_found"`
	TotalClassified    int `json:"total_classified"`
	ExtractionAttempts int `json:"extraction_attempts"`
	ExtractionSuccess  int `json:"extraction_success"`

	Warnings []Warning     `json:"warnings,omitempty"`
	Duration time.Duration `json:"duration"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// WarningsCount returns the number of accumulated warnings.
func (s ScrapeSession) WarningsCount() int {
	return len(s.Warnings)
}
