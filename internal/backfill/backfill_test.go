package backfill

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/resilience"
)

type archiveStub struct {
	pages map[string][]byte
	calls int
}

func (a *archiveStub) Get(_ context.Context, rawURL string) ([]byte, error) {
	a.calls++
	if body, ok := a.pages[rawURL]; ok {
		return body, nil
	}
	return nil, &resilience.StatusError{StatusCode: 404, URL: rawURL}
}

func (a *archiveStub) PostForm(context.Context, string, url.Values) ([]byte, error) {
	return nil, fmt.Errorf("unexpected post")
}

func (a *archiveStub) DownloadToFile(context.Context, string, string) (int64, error) {
	return 0, fmt.Errorf("unexpected download")
}

func archivePage(rows string) []byte {
	return []byte(`<table id="main-list-table">` + rows + `</table>`)
}

func row(clock, code, title, pdf string) string {
	return fmt.Sprintf(`<tr><td>%s</td><td>%s</td><td>Co</td><td><a href="%s">%s</a></td><td></td><td>東</td><td></td></tr>`,
		clock, code, pdf, title)
}

const base = "https://archive.example.com/inbs"

func fixedResolver(stub *archiveStub, now time.Time) *Resolver {
	r := NewResolver(stub, base, 30)
	r.now = func() time.Time { return now }
	return r
}

func key(day time.Time, code, title string) model.BusinessKey {
	return model.BusinessKey{
		IssuerCode:  code,
		PublishedAt: day,
		Title:       title,
		Locale:      model.LocaleJA,
	}
}

func TestResolve_ExactTitleMatch(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	day := time.Date(2026, 1, 15, 16, 30, 0, 0, time.UTC)

	stub := &archiveStub{pages: map[string][]byte{
		base + "/I_list_001_20260115.html": archivePage(
			row("09:00", "6758", "決算短信", "a.pdf") +
				row("16:30", "7203", "第三者割当による新株式発行に関するお知らせ", "target.pdf"),
		),
	}}

	got, err := fixedResolver(stub, now).ResolveMissingLink(context.Background(),
		key(day, "7203", "第三者割当による新株式発行に関するお知らせ"))
	require.NoError(t, err)
	assert.Equal(t, base+"/target.pdf", got)
	assert.Equal(t, 1, stub.calls)
}

func TestResolve_PrefixMatchOnSecondPage(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	day := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	longTitle := "第三者割当による新株式及び第１回新株予約権の発行に関するお知らせ（続報）"
	archivedTitle := "第三者割当による新株式及び第１回新株予約権の発行に関するお知らせ"

	stub := &archiveStub{pages: map[string][]byte{
		base + "/I_list_001_20260115.html": archivePage(row("09:00", "1111", "無関係", "x.pdf")),
		base + "/I_list_002_20260115.html": archivePage(row("10:00", "7203", archivedTitle, "deep.pdf")),
	}}

	got, err := fixedResolver(stub, now).ResolveMissingLink(context.Background(),
		key(day, "7203", longTitle))
	require.NoError(t, err)
	assert.Equal(t, base+"/deep.pdf", got)
	assert.Equal(t, 2, stub.calls)
}

func TestResolve_ExactlyThirtyDaysOldStillTries(t *testing.T) {
	now := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	day := now.AddDate(0, 0, -30)

	stub := &archiveStub{pages: map[string][]byte{}}
	_, err := fixedResolver(stub, now).ResolveMissingLink(context.Background(),
		key(day, "7203", "title"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, stub.calls, "30-day-old date must attempt the archive")
}

func TestResolve_OutsideWindowSkipsNetwork(t *testing.T) {
	now := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	day := now.AddDate(0, 0, -31)

	stub := &archiveStub{pages: map[string][]byte{}}
	_, err := fixedResolver(stub, now).ResolveMissingLink(context.Background(),
		key(day, "7203", "title"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, stub.calls, "expired dates must not hit the network")
}

func TestResolve_NoMatchingRow(t *testing.T) {
	now := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	day := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	stub := &archiveStub{pages: map[string][]byte{
		base + "/I_list_001_20260115.html": archivePage(row("09:00", "9999", "別件", "z.pdf")),
	}}

	_, err := fixedResolver(stub, now).ResolveMissingLink(context.Background(),
		key(day, "7203", "missing"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, stub.calls, "page 2 404 ends pagination")
}
