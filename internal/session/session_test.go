package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/disclosure-cli/internal/model"
)

func TestAggregator_Counts(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	a := New(start, end, model.LocaleJA)
	a.RecordFound(3)
	a.RecordClassified()
	a.ExtractionAttempt()
	a.ExtractionAttempt()
	a.ExtractionSuccess()
	a.Warn("7203/2026-01-01 16:30/title/ja", "field not found: investor")
	a.Warn("", "sub-range 2026-01-02 exhausted retries")

	s := a.Finalize()
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, start, s.StartDate)
	assert.Equal(t, model.LocaleJA, s.Locale)
	assert.Equal(t, 3, s.TotalFound)
	assert.Equal(t, 1, s.TotalClassified)
	assert.Equal(t, 2, s.ExtractionAttempts)
	assert.Equal(t, 1, s.ExtractionSuccess)
	assert.Equal(t, 2, s.WarningsCount())
	assert.Equal(t, "", s.Warnings[1].Key)
	assert.False(t, s.FinishedAt.Before(s.StartedAt))
	assert.GreaterOrEqual(t, s.Duration, time.Duration(0))
}

func TestAggregator_DistinctIDsPerRun(t *testing.T) {
	now := time.Now()
	a := New(now, now, model.LocaleEN)
	b := New(now, now, model.LocaleEN)
	assert.NotEqual(t, a.Finalize().ID, b.Finalize().ID)
}
