package docextract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/disclosure-cli/internal/model"
)

func TestExtractFields_PlacementFiling(t *testing.T) {
	doc := model.ExtractedDocument{
		Text:   layoutText,
		Method: model.ExtractionPrimary,
	}
	facts := ExtractFields(doc, "第三者割当による新株式発行に関するお知らせ")

	require.NotNil(t, facts.Investor)
	assert.Equal(t, "Global Growth Partners", *facts.Investor)

	require.NotNil(t, facts.DealSize)
	assert.InDelta(t, 1_000_000_000, *facts.DealSize, 0.1)
	require.NotNil(t, facts.DealSizeCurrency)
	assert.Equal(t, "JPY", *facts.DealSizeCurrency)

	require.NotNil(t, facts.SharePrice)
	assert.InDelta(t, 523, *facts.SharePrice, 0.01)

	require.NotNil(t, facts.ShareCount)
	assert.Equal(t, int64(1_912_045), *facts.ShareCount)

	require.NotNil(t, facts.DealDate)
	assert.Equal(t, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), *facts.DealDate)

	require.NotNil(t, facts.DealStructure)
	assert.Equal(t, "Common Stock", *facts.DealStructure)
}

func TestExtractFields_StructurePrecedence(t *testing.T) {
	cases := map[string]string{
		"新株予約権付社債の発行":   "Convertible Bond",
		"新株予約権の発行":      "Warrant",
		"新株式発行":         "Common Stock",
		"Placement only": "Common Stock",
	}
	for title, want := range cases {
		doc := model.ExtractedDocument{Text: "body", Method: model.ExtractionPrimary}
		facts := ExtractFields(doc, title)
		require.NotNil(t, facts.DealStructure, title)
		assert.Equal(t, want, *facts.DealStructure, title)
	}
}

func TestExtractFields_TableCellFallback(t *testing.T) {
	doc := model.ExtractedDocument{
		Text:   "prose without figures",
		Method: model.ExtractionFallback,
		TableCells: [][]string{
			{"調達資金の総額", "500百万円"},
			{"発行新株式数", "2,000,000株"},
		},
	}
	facts := ExtractFields(doc, "announcement")

	require.NotNil(t, facts.DealSize)
	assert.InDelta(t, 500_000_000, *facts.DealSize, 0.1)
	require.NotNil(t, facts.ShareCount)
	assert.Equal(t, int64(2_000_000), *facts.ShareCount)
}

func TestExtractFields_MissingFieldsAreWarningsNotErrors(t *testing.T) {
	doc := model.ExtractedDocument{
		Text:   "an ordinary filing with no financial section at all",
		Method: model.ExtractionPrimary,
	}
	facts := ExtractFields(doc, "ordinary filing")

	assert.True(t, facts.Empty() || facts.DealStructure != nil)
	assert.Contains(t, facts.Warnings, "field not found: investor")
	assert.Contains(t, facts.Warnings, "field not found: deal size")
	assert.Contains(t, facts.Warnings, "field not found: deal date")
}

func TestExtractFields_FailedExtractionShortCircuits(t *testing.T) {
	doc := model.ExtractedDocument{Method: model.ExtractionFailed}
	facts := ExtractFields(doc, "whatever")

	assert.True(t, facts.Empty())
	assert.Equal(t, []string{"extraction failed, no fields attempted"}, facts.Warnings)
}

func TestExtractFields_QuarterlyCashFlowItems(t *testing.T) {
	doc := model.ExtractedDocument{
		Text: `8.6 Total available funding facilities at quarter end $ 5,250.5
8.7 Estimated quarters of funding available 3.5`,
		Method: model.ExtractionPrimary,
	}
	facts := ExtractFields(doc, "Appendix 5B quarterly cash flow report")

	require.NotNil(t, facts.TotalAvailableFunding)
	assert.InDelta(t, 5250.5, *facts.TotalAvailableFunding, 0.01)
	require.NotNil(t, facts.EstimatedQuarters)
	assert.InDelta(t, 3.5, *facts.EstimatedQuarters, 0.01)
}

func TestExtractFields_NotApplicableFundingTolerated(t *testing.T) {
	doc := model.ExtractedDocument{
		Text:   "8.6 Total available funding facilities N/A\n8.7 Estimated quarters of funding N/A",
		Method: model.ExtractionPrimary,
	}
	facts := ExtractFields(doc, "Appendix 5B quarterly cash flow report")
	assert.Nil(t, facts.TotalAvailableFunding)
	assert.Nil(t, facts.EstimatedQuarters)
	assert.NotContains(t, facts.Warnings, "field not found: total available funding")
	assert.NotContains(t, facts.Warnings, "field not found: estimated quarters")
}

func TestExtractFields_QuarterlyItemsMissedAreWarned(t *testing.T) {
	doc := model.ExtractedDocument{
		Text:   "8.6 Total available funding facilities at quarter end $ 1,200",
		Method: model.ExtractionPrimary,
	}
	facts := ExtractFields(doc, "Appendix 5B quarterly cash flow report")

	require.NotNil(t, facts.TotalAvailableFunding)
	assert.NotContains(t, facts.Warnings, "field not found: total available funding")
	assert.Contains(t, facts.Warnings, "field not found: estimated quarters")
}

func TestExtractFields_PlacementFilingSkipsQuarterlyWarnings(t *testing.T) {
	doc := model.ExtractedDocument{
		Text:   layoutText,
		Method: model.ExtractionPrimary,
	}
	facts := ExtractFields(doc, "第三者割当による新株式発行に関するお知らせ")

	assert.NotContains(t, facts.Warnings, "field not found: total available funding")
	assert.NotContains(t, facts.Warnings, "field not found: estimated quarters")
}
