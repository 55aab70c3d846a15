package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. It exists so tests can
// substitute a mock pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS announcements (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	issuer_code  TEXT NOT NULL,
	company_name TEXT NOT NULL,
	published_at TIMESTAMPTZ NOT NULL,
	title        TEXT NOT NULL,
	pdf_url      TEXT,
	locale       TEXT NOT NULL,
	sector       TEXT,
	listed_exchange TEXT,
	xbrl_url     TEXT,
	has_xbrl     BOOLEAN NOT NULL DEFAULT false,
	notes        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (issuer_code, published_at, title, locale)
);

CREATE TABLE IF NOT EXISTS classified (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	issuer_code      TEXT NOT NULL,
	published_at     TIMESTAMPTZ NOT NULL,
	title            TEXT NOT NULL,
	matched_keywords TEXT NOT NULL,
	tier             TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (issuer_code, published_at, title)
);

CREATE TABLE IF NOT EXISTS deal_facts (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	issuer_code       TEXT NOT NULL,
	report_date       DATE NOT NULL,
	title             TEXT NOT NULL,
	pdf_url           TEXT,
	downloaded        BOOLEAN NOT NULL DEFAULT false,
	local_path        TEXT,
	investor          TEXT,
	deal_size         DOUBLE PRECISION,
	deal_size_currency TEXT,
	share_price       DOUBLE PRECISION,
	share_count       BIGINT,
	deal_date         DATE,
	deal_structure    TEXT,
	total_available_funding DOUBLE PRECISION,
	estimated_quarters DOUBLE PRECISION,
	warnings          TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (issuer_code, report_date, title)
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
	duration_ms     BIGINT NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL
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
CREATE INDEX IF NOT EXISTS idx_announcements_issuer ON announcements(issuer_code);
CREATE INDEX IF NOT EXISTS idx_classified_tier ON classified(tier);
CREATE INDEX IF NOT EXISTS idx_deal_facts_report_date ON deal_facts(report_date);
CREATE INDEX IF NOT EXISTS idx_fefta_records_code ON fefta_records(securities_code);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const upsertAnnouncementSQL = `
INSERT INTO announcements (issuer_code, company_name, published_at, title, pdf_url, locale, sector, listed_exchange, xbrl_url, has_xbrl, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (issuer_code, published_at, title, locale) DO UPDATE SET
	company_name = EXCLUDED.company_name,
	pdf_url      = COALESCE(EXCLUDED.pdf_url, announcements.pdf_url),
	sector       = COALESCE(EXCLUDED.sector, announcements.sector),
	listed_exchange = COALESCE(EXCLUDED.listed_exchange, announcements.listed_exchange),
	xbrl_url     = COALESCE(EXCLUDED.xbrl_url, announcements.xbrl_url),
	has_xbrl     = EXCLUDED.has_xbrl,
	notes        = COALESCE(EXCLUDED.notes, announcements.notes),
	updated_at   = now()`

// UpsertAnnouncement inserts or updates one listing row. A stored pdf_url
// survives an incoming null so a backfilled link is never lost to a later
// re-fetch of an expired listing.
func (s *PostgresStore) UpsertAnnouncement(ctx context.Context, a model.Announcement) error {
	_, err := s.pool.Exec(ctx, upsertAnnouncementSQL,
		a.IssuerCode, a.CompanyName, a.PublishedAt.UTC(), a.Title,
		nullIfEmpty(a.PDFURL), string(a.Locale), nullIfEmpty(a.Sector),
		nullIfEmpty(a.ListedExchange), nullIfEmpty(a.XBRLURL), a.HasXBRL,
		nullIfEmpty(a.Notes),
	)
	return eris.Wrapf(err, "postgres: upsert announcement %s", a.Key())
}

const upsertClassifiedSQL = `
INSERT INTO classified (issuer_code, published_at, title, matched_keywords, tier)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (issuer_code, published_at, title) DO UPDATE SET
	matched_keywords = EXCLUDED.matched_keywords,
	tier             = EXCLUDED.tier,
	updated_at       = now()`

// UpsertClassified inserts or updates a classification outcome. Records
// with no matched keywords never reach this table.
func (s *PostgresStore) UpsertClassified(ctx context.Context, c model.Classified) error {
	if !c.Relevant() {
		return eris.Errorf("postgres: refusing to persist non-relevant record %s", c.Key())
	}
	_, err := s.pool.Exec(ctx, upsertClassifiedSQL,
		c.IssuerCode, c.PublishedAt.UTC(), c.Title,
		strings.Join(c.MatchedKeywords, ","), c.Tier,
	)
	return eris.Wrapf(err, "postgres: upsert classified %s", c.Key())
}

const upsertFactsSQL = `
INSERT INTO deal_facts (issuer_code, report_date, title, pdf_url, downloaded, local_path, investor, deal_size, deal_size_currency, share_price, share_count, deal_date, deal_structure, total_available_funding, estimated_quarters, warnings)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (issuer_code, report_date, title) DO UPDATE SET
	pdf_url        = COALESCE(EXCLUDED.pdf_url, deal_facts.pdf_url),
	downloaded     = deal_facts.downloaded OR EXCLUDED.downloaded,
	local_path     = COALESCE(EXCLUDED.local_path, deal_facts.local_path),
	investor       = COALESCE(EXCLUDED.investor, deal_facts.investor),
	deal_size      = COALESCE(EXCLUDED.deal_size, deal_facts.deal_size),
	deal_size_currency = COALESCE(EXCLUDED.deal_size_currency, deal_facts.deal_size_currency),
	share_price    = COALESCE(EXCLUDED.share_price, deal_facts.share_price),
	share_count    = COALESCE(EXCLUDED.share_count, deal_facts.share_count),
	deal_date      = COALESCE(EXCLUDED.deal_date, deal_facts.deal_date),
	deal_structure = COALESCE(EXCLUDED.deal_structure, deal_facts.deal_structure),
	total_available_funding = COALESCE(EXCLUDED.total_available_funding, deal_facts.total_available_funding),
	estimated_quarters = COALESCE(EXCLUDED.estimated_quarters, deal_facts.estimated_quarters),
	warnings       = EXCLUDED.warnings,
	updated_at     = now()`

// UpsertFacts inserts or updates extracted deal facts. Non-null incoming
// fields overwrite; null incoming fields keep whatever an earlier run
// extracted.
func (s *PostgresStore) UpsertFacts(ctx context.Context, f model.FactsRecord) error {
	_, err := s.pool.Exec(ctx, upsertFactsSQL,
		f.IssuerCode, f.ReportDate.UTC(), f.Title,
		nullIfEmpty(f.PDFURL), f.Downloaded, nullIfEmpty(f.LocalPath),
		f.Facts.Investor, f.Facts.DealSize, f.Facts.DealSizeCurrency,
		f.Facts.SharePrice, f.Facts.ShareCount, f.Facts.DealDate,
		f.Facts.DealStructure, f.Facts.TotalAvailableFunding,
		f.Facts.EstimatedQuarters, strings.Join(f.Facts.Warnings, "\n"),
	)
	return eris.Wrapf(err, "postgres: upsert facts %s/%s", f.IssuerCode, f.Title)
}

const insertSessionSQL = `
INSERT INTO scrape_sessions (id, start_date, end_date, locale, total_found, total_classified, extraction_attempts, extraction_success, warnings_count, duration_ms, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO NOTHING`

// SaveSession records a run summary. Sessions are append-only.
func (s *PostgresStore) SaveSession(ctx context.Context, sess model.ScrapeSession) error {
	_, err := s.pool.Exec(ctx, insertSessionSQL,
		sess.ID, sess.StartDate, sess.EndDate, string(sess.Locale),
		sess.TotalFound, sess.TotalClassified,
		sess.ExtractionAttempts, sess.ExtractionSuccess,
		sess.WarningsCount(), sess.Duration.Milliseconds(),
		sess.StartedAt.UTC(), sess.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save session %s", sess.ID)
}

const upsertFeftaSourceSQL = `
INSERT INTO fefta_sources (as_of_date, as_of_raw, download_date, file_url, saved_path)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (as_of_date) DO UPDATE SET
	download_date = EXCLUDED.download_date,
	file_url      = EXCLUDED.file_url,
	saved_path    = COALESCE(EXCLUDED.saved_path, fefta_sources.saved_path)`

const upsertFeftaRecordSQL = `
INSERT INTO fefta_records (as_of_date, securities_code, isin_code, company_name_ja, issue_or_company_en, category, core_operator)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (as_of_date, securities_code) DO UPDATE SET
	isin_code       = EXCLUDED.isin_code,
	company_name_ja = EXCLUDED.company_name_ja,
	issue_or_company_en = EXCLUDED.issue_or_company_en,
	category        = EXCLUDED.category,
	core_operator   = EXCLUDED.core_operator`

// SaveFeftaSnapshot stores one published classification list with its rows.
func (s *PostgresStore) SaveFeftaSnapshot(ctx context.Context, src model.FeftaSource, records []model.FeftaRecord) error {
	_, err := s.pool.Exec(ctx, upsertFeftaSourceSQL,
		src.AsOfDate, src.AsOfRaw, src.DownloadDate, src.FileURL, nullIfEmpty(src.SavedPath),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert fefta source %s", src.AsOfDate.Format("2006-01-02"))
	}
	for _, r := range records {
		_, err := s.pool.Exec(ctx, upsertFeftaRecordSQL,
			src.AsOfDate, r.SecuritiesCode, r.ISINCode, r.CompanyNameJA,
			nullIfEmpty(r.IssueOrCompanyEN), r.Category, r.CoreOperator,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert fefta record %s", r.SecuritiesCode)
		}
	}
	return nil
}

// LatestFeftaSnapshot returns the most recently published list and its rows,
// or (nil, nil, nil) when no snapshot exists yet.
func (s *PostgresStore) LatestFeftaSnapshot(ctx context.Context) (*model.FeftaSource, []model.FeftaRecord, error) {
	var src model.FeftaSource
	var savedPath *string
	err := s.pool.QueryRow(ctx,
		`SELECT as_of_date, as_of_raw, download_date, file_url, saved_path FROM fefta_sources ORDER BY as_of_date DESC LIMIT 1`,
	).Scan(&src.AsOfDate, &src.AsOfRaw, &src.DownloadDate, &src.FileURL, &savedPath)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, eris.Wrap(err, "postgres: latest fefta source")
	}
	if savedPath != nil {
		src.SavedPath = *savedPath
	}

	rows, err := s.pool.Query(ctx,
		`SELECT securities_code, isin_code, company_name_ja, issue_or_company_en, category, core_operator FROM fefta_records WHERE as_of_date = $1 ORDER BY securities_code`,
		src.AsOfDate,
	)
	if err != nil {
		return nil, nil, eris.Wrap(err, "postgres: latest fefta records")
	}
	defer rows.Close()

	var records []model.FeftaRecord
	for rows.Next() {
		var r model.FeftaRecord
		var en *string
		if err := rows.Scan(&r.SecuritiesCode, &r.ISINCode, &r.CompanyNameJA, &en, &r.Category, &r.CoreOperator); err != nil {
			return nil, nil, eris.Wrap(err, "postgres: scan fefta record")
		}
		if en != nil {
			r.IssueOrCompanyEN = *en
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "postgres: iterate fefta records")
	}
	return &src, records, nil
}
