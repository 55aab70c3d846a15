package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/disclosure-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func sampleAnnouncement() model.Announcement {
	return model.Announcement{
		IssuerCode:  "7203",
		CompanyName: "Toyota Motor",
		PublishedAt: time.Date(2026, 1, 15, 16, 30, 0, 0, time.UTC),
		Title:       "第三者割当による新株式発行に関するお知らせ",
		PDFURL:      "https://host.example.com/docs/a.pdf",
		Locale:      model.LocaleJA,
	}
}

func TestUpsertAnnouncement(t *testing.T) {
	s, mock := newMockStore(t)
	a := sampleAnnouncement()

	mock.ExpectExec("INSERT INTO announcements").
		WithArgs(a.IssuerCode, a.CompanyName, a.PublishedAt.UTC(), a.Title,
			a.PDFURL, string(a.Locale), nil, nil, nil, false, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertAnnouncement(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAnnouncement_NullURLPassedAsNil(t *testing.T) {
	s, mock := newMockStore(t)
	a := sampleAnnouncement()
	a.PDFURL = ""

	mock.ExpectExec("INSERT INTO announcements").
		WithArgs(a.IssuerCode, a.CompanyName, a.PublishedAt.UTC(), a.Title,
			nil, string(a.Locale), nil, nil, nil, false, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertAnnouncement(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAnnouncement_SQLPreservesStoredURL(t *testing.T) {
	// The conflict clause keeps an already-recorded pdf_url when the
	// incoming value is null, so a backfilled link survives re-fetches.
	assert.Contains(t, upsertAnnouncementSQL, "COALESCE(EXCLUDED.pdf_url, announcements.pdf_url)")
}

func TestUpsertClassified(t *testing.T) {
	s, mock := newMockStore(t)
	c := model.Classified{
		Announcement:    sampleAnnouncement(),
		MatchedKeywords: []string{"第三者割当", "発行に関するお知らせ"},
		Tier:            "tier1",
	}

	mock.ExpectExec("INSERT INTO classified").
		WithArgs(c.IssuerCode, c.PublishedAt.UTC(), c.Title,
			"第三者割当,発行に関するお知らせ", "tier1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertClassified(context.Background(), c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertClassified_RejectsNonRelevant(t *testing.T) {
	s, _ := newMockStore(t)
	c := model.Classified{Announcement: sampleAnnouncement()}

	err := s.UpsertClassified(context.Background(), c)
	assert.Error(t, err)
}

func TestUpsertFacts(t *testing.T) {
	s, mock := newMockStore(t)
	investor := "Global Growth Partners"
	size := 1_000_000_000.0
	cur := "JPY"
	f := model.FactsRecord{
		IssuerCode: "7203",
		ReportDate: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Title:      "第三者割当による新株式発行に関するお知らせ",
		PDFURL:     "https://host.example.com/docs/a.pdf",
		Downloaded: true,
		LocalPath:  "/data/2026_01_15_a.pdf",
		Facts: model.DealFacts{
			Investor:         &investor,
			DealSize:         &size,
			DealSizeCurrency: &cur,
			Warnings:         []string{"field not found: share price"},
		},
	}

	mock.ExpectExec("INSERT INTO deal_facts").
		WithArgs(f.IssuerCode, f.ReportDate.UTC(), f.Title, f.PDFURL, true, f.LocalPath,
			&investor, &size, &cur,
			(*float64)(nil), (*int64)(nil), (*time.Time)(nil), (*string)(nil),
			(*float64)(nil), (*float64)(nil),
			"field not found: share price").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertFacts(context.Background(), f))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSession(t *testing.T) {
	s, mock := newMockStore(t)
	sess := model.ScrapeSession{
		ID:         "run-1",
		StartDate:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		Locale:     model.LocaleJA,
		TotalFound: 3,
		StartedAt:  time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 1, 3, 10, 1, 0, 0, time.UTC),
		Duration:   time.Minute,
	}

	mock.ExpectExec("INSERT INTO scrape_sessions").
		WithArgs(sess.ID, sess.StartDate, sess.EndDate, "ja",
			3, 0, 0, 0, 0, int64(60000), sess.StartedAt, sess.FinishedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveSession(context.Background(), sess))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS announcements").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
