package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It carries the same
// upsert semantics as the Postgres store and backs local single-user runs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS announcements (
	issuer_code  TEXT NOT NULL,
	company_name TEXT NOT NULL,
	published_at DATETIME NOT NULL,
	title        TEXT NOT NULL,
	pdf_url      TEXT,
	locale       TEXT NOT NULL,
	sector       TEXT,
	listed_exchange TEXT,
	xbrl_url     TEXT,
	has_xbrl     INTEGER NOT NULL DEFAULT 0,
	notes        TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (issuer_code, published_at, title, locale)
);

CREATE TABLE IF NOT EXISTS classified (
	issuer_code      TEXT NOT NULL,
	published_at     DATETIME NOT NULL,
	title            TEXT NOT NULL,
	matched_keywords TEXT NOT NULL,
	tier             TEXT NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (issuer_code, published_at, title)
);

CREATE TABLE IF NOT EXISTS deal_facts (
	issuer_code       TEXT NOT NULL,
	report_date       DATE NOT NULL,
	title             TEXT NOT NULL,
	pdf_url           TEXT,
	downloaded        INTEGER NOT NULL DEFAULT 0,
	local_path        TEXT,
	investor          TEXT,
	deal_size         REAL,
	deal_size_currency TEXT,
	share_price       REAL,
	share_count       INTEGER,
	deal_date         DATE,
	deal_structure    TEXT,
	total_available_funding REAL,
	estimated_quarters REAL,
	warnings          TEXT,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (issuer_code, report_date, title)
);

CREATE TABLE IF NOT EXISTS scrape_sessions (
	id              TEXT PRIMARY KEY,
	start_date      DATE NOT NULL,
	end_date        DATE NOT NULL,
	locale          TEXT NOT NULL,
	total_found     INTEGER NOT NULL,
	total_classified INTEGER NOT NULL,
	extraction_attempts INTEGER NOT NULL,
	extraction_success  INTEGER NOT NULL,
	warnings_count  INTEGER NOT NULL,
	duration_ms     INTEGER NOT NULL,
	started_at      DATETIME NOT NULL,
	finished_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS fefta_sources (
	as_of_date    DATE PRIMARY KEY,
	as_of_raw     TEXT NOT NULL,
	download_date DATE NOT NULL,
	file_url      TEXT NOT NULL,
	saved_path    TEXT
);

CREATE TABLE IF NOT EXISTS fefta_records (
	as_of_date       DATE NOT NULL REFERENCES fefta_sources(as_of_date),
	securities_code  TEXT NOT NULL,
	isin_code        TEXT NOT NULL,
	company_name_ja  TEXT NOT NULL,
	issue_or_company_en TEXT,
	category         INTEGER NOT NULL,
	core_operator    INTEGER,
	PRIMARY KEY (as_of_date, securities_code)
);

CREATE INDEX IF NOT EXISTS idx_announcements_published_at ON announcements(published_at);
CREATE INDEX IF NOT EXISTS idx_classified_tier ON classified(tier);
CREATE INDEX IF NOT EXISTS idx_deal_facts_report_date ON deal_facts(report_date);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertAnnouncement(ctx context.Context, a model.Announcement) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO announcements (issuer_code, company_name, published_at, title, pdf_url, locale, sector, listed_exchange, xbrl_url, has_xbrl, notes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (issuer_code, published_at, title, locale) DO UPDATE SET
	company_name = excluded.company_name,
	pdf_url      = COALESCE(excluded.pdf_url, announcements.pdf_url),
	sector       = COALESCE(excluded.sector, announcements.sector),
	listed_exchange = COALESCE(excluded.listed_exchange, announcements.listed_exchange),
	xbrl_url     = COALESCE(excluded.xbrl_url, announcements.xbrl_url),
	has_xbrl     = excluded.has_xbrl,
	notes        = COALESCE(excluded.notes, announcements.notes),
	updated_at   = datetime('now')`,
		a.IssuerCode, a.CompanyName, a.PublishedAt.UTC(), a.Title,
		nullIfEmpty(a.PDFURL), string(a.Locale), nullIfEmpty(a.Sector),
		nullIfEmpty(a.ListedExchange), nullIfEmpty(a.XBRLURL), a.HasXBRL,
		nullIfEmpty(a.Notes),
	)
	return eris.Wrapf(err, "sqlite: upsert announcement %s", a.Key())
}

func (s *SQLiteStore) UpsertClassified(ctx context.Context, c model.Classified) error {
	if !c.Relevant() {
		return eris.Errorf("sqlite: refusing to persist non-relevant record %s", c.Key())
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO classified (issuer_code, published_at, title, matched_keywords, tier)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (issuer_code, published_at, title) DO UPDATE SET
	matched_keywords = excluded.matched_keywords,
	tier             = excluded.tier,
	updated_at       = datetime('now')`,
		c.IssuerCode, c.PublishedAt.UTC(), c.Title,
		strings.Join(c.MatchedKeywords, ","), c.Tier,
	)
	return eris.Wrapf(err, "sqlite: upsert classified %s", c.Key())
}

func (s *SQLiteStore) UpsertFacts(ctx context.Context, f model.FactsRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO deal_facts (issuer_code, report_date, title, pdf_url, downloaded, local_path, investor, deal_size, deal_size_currency, share_price, share_count, deal_date, deal_structure, total_available_funding, estimated_quarters, warnings)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (issuer_code, report_date, title) DO UPDATE SET
	pdf_url        = COALESCE(excluded.pdf_url, deal_facts.pdf_url),
	downloaded     = deal_facts.downloaded OR excluded.downloaded,
	local_path     = COALESCE(excluded.local_path, deal_facts.local_path),
	investor       = COALESCE(excluded.investor, deal_facts.investor),
	deal_size      = COALESCE(excluded.deal_size, deal_facts.deal_size),
	deal_size_currency = COALESCE(excluded.deal_size_currency, deal_facts.deal_size_currency),
	share_price    = COALESCE(excluded.share_price, deal_facts.share_price),
	share_count    = COALESCE(excluded.share_count, deal_facts.share_count),
	deal_date      = COALESCE(excluded.deal_date, deal_facts.deal_date),
	deal_structure = COALESCE(excluded.deal_structure, deal_facts.deal_structure),
	total_available_funding = COALESCE(excluded.total_available_funding, deal_facts.total_available_funding),
	estimated_quarters = COALESCE(excluded.estimated_quarters, deal_facts.estimated_quarters),
	warnings       = excluded.warnings,
	updated_at     = datetime('now')`,
		f.IssuerCode, f.ReportDate.UTC(), f.Title,
		nullIfEmpty(f.PDFURL), f.Downloaded, nullIfEmpty(f.LocalPath),
		f.Facts.Investor, f.Facts.DealSize, f.Facts.DealSizeCurrency,
		f.Facts.SharePrice, f.Facts.ShareCount, f.Facts.DealDate,
		f.Facts.DealStructure, f.Facts.TotalAvailableFunding,
		f.Facts.EstimatedQuarters, strings.Join(f.Facts.Warnings, "\n"),
	)
	return eris.Wrapf(err, "sqlite: upsert facts %s/%s", f.IssuerCode, f.Title)
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess model.ScrapeSession) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO scrape_sessions (id, start_date, end_date, locale, total_found, total_classified, extraction_attempts, extraction_success, warnings_count, duration_ms, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`,
		sess.ID, sess.StartDate, sess.EndDate, string(sess.Locale),
		sess.TotalFound, sess.TotalClassified,
		sess.ExtractionAttempts, sess.ExtractionSuccess,
		sess.WarningsCount(), sess.Duration.Milliseconds(),
		sess.StartedAt.UTC(), sess.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save session %s", sess.ID)
}

func (s *SQLiteStore) SaveFeftaSnapshot(ctx context.Context, src model.FeftaSource, records []model.FeftaRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO fefta_sources (as_of_date, as_of_raw, download_date, file_url, saved_path)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (as_of_date) DO UPDATE SET
	download_date = excluded.download_date,
	file_url      = excluded.file_url,
	saved_path    = COALESCE(excluded.saved_path, fefta_sources.saved_path)`,
		src.AsOfDate, src.AsOfRaw, src.DownloadDate, src.FileURL, nullIfEmpty(src.SavedPath),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert fefta source %s", src.AsOfDate.Format("2006-01-02"))
	}
	for _, r := range records {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO fefta_records (as_of_date, securities_code, isin_code, company_name_ja, issue_or_company_en, category, core_operator)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (as_of_date, securities_code) DO UPDATE SET
	isin_code       = excluded.isin_code,
	company_name_ja = excluded.company_name_ja,
	issue_or_company_en = excluded.issue_or_company_en,
	category        = excluded.category,
	core_operator   = excluded.core_operator`,
			src.AsOfDate, r.SecuritiesCode, r.ISINCode, r.CompanyNameJA,
			nullIfEmpty(r.IssueOrCompanyEN), r.Category, r.CoreOperator,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert fefta record %s", r.SecuritiesCode)
		}
	}
	return nil
}

func (s *SQLiteStore) LatestFeftaSnapshot(ctx context.Context) (*model.FeftaSource, []model.FeftaRecord, error) {
	var src model.FeftaSource
	var savedPath sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT as_of_date, as_of_raw, download_date, file_url, saved_path FROM fefta_sources ORDER BY as_of_date DESC LIMIT 1`,
	).Scan(&src.AsOfDate, &src.AsOfRaw, &src.DownloadDate, &src.FileURL, &savedPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, eris.Wrap(err, "sqlite: latest fefta source")
	}
	src.SavedPath = savedPath.String

	rows, err := s.db.QueryContext(ctx,
		`SELECT securities_code, isin_code, company_name_ja, issue_or_company_en, category, core_operator FROM fefta_records WHERE as_of_date = ? ORDER BY securities_code`,
		src.AsOfDate,
	)
	if err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: latest fefta records")
	}
	defer rows.Close()

	var records []model.FeftaRecord
	for rows.Next() {
		var r model.FeftaRecord
		var en sql.NullString
		var core sql.NullInt64
		if err := rows.Scan(&r.SecuritiesCode, &r.ISINCode, &r.CompanyNameJA, &en, &r.Category, &core); err != nil {
			return nil, nil, eris.Wrap(err, "sqlite: scan fefta record")
		}
		r.IssueOrCompanyEN = en.String
		if core.Valid {
			v := int(core.Int64)
			r.CoreOperator = &v
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: iterate fefta records")
	}
	return &src, records, nil
}
