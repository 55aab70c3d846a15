package search

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/disclosure-cli/internal/classify"
	"github.com/sells-group/disclosure-cli/internal/resilience"
)

// providerStub serves canned result pages keyed by URL and counts fetches.
type providerStub struct {
	pages    map[string][]byte
	getCalls int
}

func (p *providerStub) Get(_ context.Context, rawURL string) ([]byte, error) {
	p.getCalls++
	if body, ok := p.pages[rawURL]; ok {
		return body, nil
	}
	return nil, &resilience.StatusError{StatusCode: 404, URL: rawURL}
}

func (p *providerStub) PostForm(_ context.Context, _ string, _ url.Values) ([]byte, error) {
	return nil, &resilience.StatusError{StatusCode: 405, URL: "post"}
}

func (p *providerStub) DownloadToFile(_ context.Context, _ string, _ string) (int64, error) {
	return 0, nil
}

const searchBase = "https://fulltext.example.com/search"

func queryURL(query string, page int) string {
	return fmt.Sprintf("%s?query=%s&page=%d", searchBase, url.QueryEscape(query), page)
}

func resultRow(datetime, code, title string) string {
	return fmt.Sprintf(`<tr><td>%s</td><td>%s</td><td>社名%s</td><td><a href="/pdf/%s.pdf">%s</a></td></tr>`,
		datetime, code, code, code, title)
}

func resultsPage(rows string) []byte {
	return []byte(`<html><body><table><tr><th>日時</th></tr>` + rows + `</table></body></html>`)
}

func singleTier(name string, group []string, negative ...string) []classify.Tier {
	return []classify.Tier{{Name: name, Groups: [][]string{group}, Negative: negative}}
}

func rangeJan2026() (time.Time, time.Time) {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
}

func TestBuildQuery(t *testing.T) {
	assert.Equal(t, "第三者割当 新株予約権 -払込完了",
		BuildQuery([]string{"第三者割当", "新株予約権"}, []string{"払込完了"}))
	assert.Equal(t, "割当先決定", BuildQuery([]string{"割当先決定"}, nil))
}

func TestSearch_TierOrderAndDedupAcrossTiers(t *testing.T) {
	tiers := []classify.Tier{
		{Name: "tier1", Groups: [][]string{{"第三者割当", "発行に関するお知らせ"}}},
		{Name: "tier2", Groups: [][]string{{"新株式"}}},
	}
	q1 := BuildQuery(tiers[0].Groups[0], nil)
	q2 := BuildQuery(tiers[1].Groups[0], nil)

	shared := resultRow("2026/01/15 16:30", "7203", "第三者割当による新株式発行に関するお知らせ")
	stub := &providerStub{pages: map[string][]byte{
		queryURL(q1, 1): resultsPage(shared),
		queryURL(q1, 2): resultsPage(resultRow("2025/12/01 09:00", "1111", "older filing")),
		queryURL(q2, 1): resultsPage(shared + resultRow("2026/01/20 10:00", "6758", "新株式発行のお知らせ")),
		queryURL(q2, 2): resultsPage(resultRow("2025/12/01 09:00", "1111", "older filing")),
	}}

	s := NewSearcher(stub, searchBase, tiers, Options{})
	start, end := rangeJan2026()
	res, err := s.Search(context.Background(), start, end)
	require.NoError(t, err)

	require.Len(t, res.Entries, 2)
	assert.Equal(t, "7203", res.Entries[0].IssuerCode)
	assert.Equal(t, "tier1", res.Entries[0].Tier)
	assert.Equal(t, "6758", res.Entries[1].IssuerCode)
	assert.Equal(t, "tier2", res.Entries[1].Tier)
	assert.Equal(t, []string{q1, q2}, res.QueriesRun)
}

func TestSearch_StopsWhenPagePredatesRange(t *testing.T) {
	tiers := singleTier("tier1", []string{"第三者割当"})
	q := BuildQuery(tiers[0].Groups[0], nil)

	stub := &providerStub{pages: map[string][]byte{
		queryURL(q, 1): resultsPage(resultRow("2025/11/30 12:00", "9999", "第三者割当の過去分")),
	}}

	s := NewSearcher(stub, searchBase, tiers, Options{})
	start, end := rangeJan2026()
	res, err := s.Search(context.Background(), start, end)
	require.NoError(t, err)

	assert.Empty(t, res.Entries)
	assert.Equal(t, 1, stub.getCalls, "pagination must stop on the first pre-range page")
	assert.Empty(t, res.Warnings)
}

func TestSearch_FiltersToDateRange(t *testing.T) {
	tiers := singleTier("tier1", []string{"第三者割当"})
	q := BuildQuery(tiers[0].Groups[0], nil)

	stub := &providerStub{pages: map[string][]byte{
		queryURL(q, 1): resultsPage(
			resultRow("2026/02/01 09:00", "1111", "第三者割当 too new") +
				resultRow("2026/01/31 09:00", "2222", "第三者割当 last day") +
				resultRow("2026/01/01 09:00", "3333", "第三者割当 first day")),
		queryURL(q, 2): resultsPage(resultRow("2025/12/31 09:00", "4444", "第三者割当 too old")),
	}}

	s := NewSearcher(stub, searchBase, tiers, Options{})
	start, end := rangeJan2026()
	res, err := s.Search(context.Background(), start, end)
	require.NoError(t, err)

	require.Len(t, res.Entries, 2)
	assert.Equal(t, "2222", res.Entries[0].IssuerCode)
	assert.Equal(t, "3333", res.Entries[1].IssuerCode)
}

func TestSearch_TwoEmptyPagesEndQuery(t *testing.T) {
	tiers := singleTier("tier1", []string{"第三者割当"})
	q := BuildQuery(tiers[0].Groups[0], nil)

	stub := &providerStub{pages: map[string][]byte{
		queryURL(q, 1): resultsPage(""),
		queryURL(q, 2): []byte("<html><body>no table here</body></html>"),
	}}

	s := NewSearcher(stub, searchBase, tiers, Options{})
	start, end := rangeJan2026()
	res, err := s.Search(context.Background(), start, end)
	require.NoError(t, err)

	assert.Empty(t, res.Entries)
	assert.Equal(t, 2, stub.getCalls)
	assert.Empty(t, res.Warnings)
}

func TestSearch_FailedQueryWarnsAndContinues(t *testing.T) {
	tiers := []classify.Tier{
		{Name: "tier1", Groups: [][]string{{"第三者割当", "募集に関するお知らせ"}}},
		{Name: "tier3", Groups: [][]string{{"割当先決定"}}},
	}
	q2 := BuildQuery(tiers[1].Groups[0], nil)

	// tier1's query has no stubbed pages, so page 1 404s.
	stub := &providerStub{pages: map[string][]byte{
		queryURL(q2, 1): resultsPage(resultRow("2026/01/10 11:00", "5555", "割当先決定のお知らせ")),
		queryURL(q2, 2): resultsPage(resultRow("2025/12/01 09:00", "1111", "older")),
	}}

	s := NewSearcher(stub, searchBase, tiers, Options{})
	start, end := rangeJan2026()
	res, err := s.Search(context.Background(), start, end)
	require.NoError(t, err)

	require.Len(t, res.Entries, 1)
	assert.Equal(t, "5555", res.Entries[0].IssuerCode)
	assert.Equal(t, "tier3", res.Entries[0].Tier)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "page 1")
}

func TestSearch_InvertedRangeFails(t *testing.T) {
	s := NewSearcher(&providerStub{}, searchBase, singleTier("tier1", []string{"x"}), Options{})
	start, end := rangeJan2026()
	_, err := s.Search(context.Background(), end.AddDate(0, 1, 0), start)
	require.Error(t, err)
}

func TestParseResults_DescriptionRowAttachesToPrecedingEntry(t *testing.T) {
	html := []byte(`<html><body><table>
<tr><td>2026/01/15 16:30</td><td>7203</td><td>トヨタ</td><td><a href="/pdf/a.pdf">第三者割当のお知らせ</a></td></tr>
<tr><td colspan="4">当社は、第三者割当による新株式の発行を決議しました。</td></tr>
</table></body></html>`)

	rows, warnings := parseResults(html, searchBase)
	require.Empty(t, warnings)
	require.Len(t, rows, 1)
	assert.Equal(t, "当社は、第三者割当による新株式の発行を決議しました。", rows[0].Notes)
	assert.Equal(t, "https://fulltext.example.com/pdf/a.pdf", rows[0].PDFURL)
}

func TestParseResults_MalformedRowsWarnAndSkip(t *testing.T) {
	html := []byte(`<html><body><table>
<tr><td>not a date</td><td>7203</td><td>社名</td><td>題名</td></tr>
<tr><td>2026/01/15 16:30</td><td>7203</td><td>社名</td><td>第三者割当のお知らせ</td></tr>
</table></body></html>`)

	rows, warnings := parseResults(html, searchBase)
	require.Len(t, rows, 1)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "publish datetime")
}
