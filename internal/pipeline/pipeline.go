// Package pipeline wires the disclosure-scraping stages together: plan the
// date windows, fetch and parse listing pages, classify titles, extract deal
// facts from attachments, and persist everything idempotently. One run is
// strictly sequential; the provider's rate tolerance, not CPU, is the
// bottleneck, and the fixed inter-request delay is part of the contract.
package pipeline

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/backfill"
	"github.com/sells-group/disclosure-cli/internal/classify"
	"github.com/sells-group/disclosure-cli/internal/docextract"
	"github.com/sells-group/disclosure-cli/internal/fetcher"
	"github.com/sells-group/disclosure-cli/internal/listing"
	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/planner"
	"github.com/sells-group/disclosure-cli/internal/resilience"
	"github.com/sells-group/disclosure-cli/internal/session"
	"github.com/sells-group/disclosure-cli/internal/store"
)

// TextExtractor is the document-extraction seam. docextract.Extractor is
// the production implementation.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) model.ExtractedDocument
}

// Endpoints names the provider URLs one pipeline run talks to.
type Endpoints struct {
	// SearchURL is the ranged English search endpoint (POST).
	SearchURL string
	// ArchiveBaseURL is the Japanese day-archive base.
	ArchiveBaseURL string
}

// Pipeline holds the run-independent dependencies.
type Pipeline struct {
	fetch     fetcher.Fetcher
	extractor TextExtractor
	store     store.Store
	resolver  *backfill.Resolver
	tiers     []classify.Tier
	endpoints Endpoints

	itemsPerPage int
	maxRangeDays int
}

// Options configures optional pipeline behavior.
type Options struct {
	// ItemsPerPage is the EN search page size. Default 200.
	ItemsPerPage int
	// MaxRangeDays is the EN search's widest accepted window. Default 31.
	MaxRangeDays int
}

// New creates a Pipeline. store may be nil for file-only runs; resolver may
// be nil to disable archive backfill.
func New(f fetcher.Fetcher, ex TextExtractor, st store.Store, resolver *backfill.Resolver, tiers []classify.Tier, eps Endpoints, opts Options) *Pipeline {
	if opts.ItemsPerPage <= 0 {
		opts.ItemsPerPage = 200
	}
	if opts.MaxRangeDays <= 0 {
		opts.MaxRangeDays = 31
	}
	if len(tiers) == 0 {
		tiers = classify.DefaultTiers()
	}
	return &Pipeline{
		fetch:        f,
		extractor:    ex,
		store:        st,
		resolver:     resolver,
		tiers:        tiers,
		endpoints:    eps,
		itemsPerPage: opts.ItemsPerPage,
		maxRangeDays: opts.MaxRangeDays,
	}
}

// Row is one classified (and optionally extracted) result.
type Row struct {
	model.Classified

	Facts *model.FactsRecord
}

// Result is the output of one run: the ordered result rows plus the run
// summary. The summary exists even when every row failed.
type Result struct {
	Rows    []Row
	Session model.ScrapeSession
}

// Run executes one pipeline invocation. A listing-layout change or invalid
// parameters fail the run; everything else degrades to warnings on the
// session.
func (p *Pipeline) Run(ctx context.Context, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("locale", string(params.Locale)),
		zap.String("start", params.StartDate.Format("2006-01-02")),
		zap.String("end", params.EndDate.Format("2006-01-02")),
	)
	log.Info("starting disclosure scrape")

	limitDays := p.maxRangeDays
	if params.Locale == model.LocaleJA {
		// The day archive only serves per-day pages.
		limitDays = 1
	}
	windows, err := planner.SplitRange(params.StartDate, params.EndDate, limitDays)
	if err != nil {
		return nil, err
	}

	agg := session.New(params.StartDate, params.EndDate, params.Locale)
	result := &Result{}

	capped := false
	for _, window := range windows {
		if ctx.Err() != nil || capped {
			break
		}

		pages, err := p.fetchWindow(ctx, params.Locale, window)
		if err != nil {
			if errors.Is(err, listing.ErrLayoutChanged) {
				// An upstream layout change needs human review; continuing
				// would silently miss everything.
				result.Session = agg.Finalize()
				return result, err
			}
			log.Warn("sub-range failed, continuing with next",
				zap.String("sub_start", window.Start.Format("2006-01-02")),
				zap.Error(err),
			)
			agg.Warn("", "sub-range "+window.Start.Format("2006-01-02")+": "+err.Error())
			continue
		}

		for _, page := range pages {
			agg.RecordFound(len(page.Announcements))
			for _, w := range page.Warnings {
				agg.Warn("", w)
			}

			for _, ann := range page.Announcements {
				if ctx.Err() != nil {
					break
				}
				if !params.wantsIssuer(ann.IssuerCode) {
					continue
				}

				p.persistAnnouncement(ctx, params, agg, ann)

				res := classify.Classify(ann.Title, p.tiers)
				if res.Tier == "" {
					continue
				}
				if params.SampleCap > 0 && len(result.Rows) >= params.SampleCap {
					capped = true
					break
				}
				agg.RecordClassified()

				row := Row{Classified: model.Classified{
					Announcement:    ann,
					MatchedKeywords: res.MatchedKeywords,
					Tier:            res.Tier,
				}}
				p.persistClassified(ctx, params, agg, row.Classified)

				if params.DownloadAttachments {
					row.Facts = p.extractDocument(ctx, params, agg, row.Classified)
				}
				result.Rows = append(result.Rows, row)
			}
			if capped {
				break
			}
		}
	}

	result.Session = agg.Finalize()
	p.saveSession(ctx, params, result.Session)
	log.Info("scrape finished",
		zap.Int("found", result.Session.TotalFound),
		zap.Int("classified", result.Session.TotalClassified),
		zap.Int("warnings", result.Session.WarningsCount()),
	)
	return result, nil
}

// fetchWindow fetches and parses every listing page for one sub-range.
func (p *Pipeline) fetchWindow(ctx context.Context, locale model.Locale, window planner.DateRange) ([]*model.ListingPage, error) {
	if locale == model.LocaleJA {
		return p.fetchDayArchive(ctx, window)
	}
	return p.fetchRangedSearch(ctx, window)
}

// fetchRangedSearch drives the English POST search: the first page carries
// the total-count banner, which decides how many more pages to request.
func (p *Pipeline) fetchRangedSearch(ctx context.Context, window planner.DateRange) ([]*model.ListingPage, error) {
	first, err := p.searchPage(ctx, window, 1)
	if err != nil {
		return nil, err
	}

	pages := []*model.ListingPage{first}
	for n := 2; n <= listing.PageCount(first.TotalCount, p.itemsPerPage); n++ {
		page, err := p.searchPage(ctx, window, n)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (p *Pipeline) searchPage(ctx context.Context, window planner.DateRange, page int) (*model.ListingPage, error) {
	form := url.Values{
		"t0": {window.Start.Format("20060102")},
		"t1": {window.End.Format("20060102")},
		"q":  {""},
		"p":  {strconv.Itoa(page)},
	}
	body, err := p.fetch.PostForm(ctx, p.endpoints.SearchURL, form)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: search page %d", page)
	}
	return listing.ParseEN(body, p.endpoints.SearchURL)
}

// fetchDayArchive walks the per-day archive pages until a 404 or an empty
// table ends the pagination.
func (p *Pipeline) fetchDayArchive(ctx context.Context, window planner.DateRange) ([]*model.ListingPage, error) {
	day := window.Start

	var pages []*model.ListingPage
	for n := 1; ; n++ {
		pageURL := listing.DayArchiveURL(p.endpoints.ArchiveBaseURL, day, n)
		body, err := p.fetch.Get(ctx, pageURL)
		if err != nil {
			if isNotFound(err) {
				return pages, nil
			}
			return nil, eris.Wrapf(err, "pipeline: archive page %d", n)
		}

		page, err := listing.ParseJA(body, day, pageURL)
		if err != nil {
			if errors.Is(err, listing.ErrLayoutChanged) && n > 1 {
				// Placeholder page past the last populated one.
				return pages, nil
			}
			return nil, err
		}
		if len(page.Announcements) == 0 {
			return pages, nil
		}
		pages = append(pages, page)
	}
}

// extractDocument downloads and extracts one attachment, resolving an
// expired link through the archive when possible. Failures degrade to
// warnings; the returned record always exists so metadata persists.
func (p *Pipeline) extractDocument(ctx context.Context, params Params, agg *session.Aggregator, c model.Classified) *model.FactsRecord {
	key := c.Key()
	record := &model.FactsRecord{
		IssuerCode: c.IssuerCode,
		ReportDate: c.PublishedAt,
		Title:      c.Title,
		PDFURL:     c.PDFURL,
	}

	if record.PDFURL == "" && p.resolver != nil {
		resolved, err := p.resolver.ResolveMissingLink(ctx, key)
		if err != nil {
			agg.Warn(key.String(), "attachment link unresolved: "+err.Error())
		} else {
			record.PDFURL = resolved
		}
	}
	if record.PDFURL == "" {
		agg.Warn(key.String(), "no attachment link")
		p.persistFacts(ctx, params, agg, record)
		return record
	}

	path, err := docextract.Download(ctx, p.fetch, record.PDFURL, params.OutputDir, c.PublishedAt, c.Title)
	if err != nil {
		// Metadata still persists; the record is just not downloaded.
		agg.Warn(key.String(), "attachment fetch failed: "+err.Error())
		p.persistFacts(ctx, params, agg, record)
		return record
	}
	record.Downloaded = true
	record.LocalPath = path

	agg.ExtractionAttempt()
	doc := p.extractor.ExtractText(ctx, path)
	if doc.Method != model.ExtractionFailed {
		agg.ExtractionSuccess()
	} else {
		agg.Warn(key.String(), "text extraction failed")
	}

	record.Facts = docextract.ExtractFields(doc, c.Title)
	for _, w := range record.Facts.Warnings {
		agg.Warn(key.String(), w)
	}

	p.persistFacts(ctx, params, agg, record)
	return record
}

// Persistence failures degrade the run to file-only output for the record
// and continue; they never abort the run.

func (p *Pipeline) persistAnnouncement(ctx context.Context, params Params, agg *session.Aggregator, a model.Announcement) {
	if !params.Persist || p.store == nil {
		return
	}
	if err := p.store.UpsertAnnouncement(ctx, a); err != nil {
		zap.L().Error("persist announcement failed", zap.Error(err))
		agg.Warn(a.Key().String(), "persist failed: "+err.Error())
	}
}

func (p *Pipeline) persistClassified(ctx context.Context, params Params, agg *session.Aggregator, c model.Classified) {
	if !params.Persist || p.store == nil {
		return
	}
	if err := p.store.UpsertClassified(ctx, c); err != nil {
		zap.L().Error("persist classified failed", zap.Error(err))
		agg.Warn(c.Key().String(), "persist failed: "+err.Error())
	}
}

func (p *Pipeline) persistFacts(ctx context.Context, params Params, agg *session.Aggregator, f *model.FactsRecord) {
	if !params.Persist || p.store == nil {
		return
	}
	if err := p.store.UpsertFacts(ctx, *f); err != nil {
		zap.L().Error("persist facts failed", zap.Error(err))
		agg.Warn(f.IssuerCode+"/"+f.Title, "persist failed: "+err.Error())
	}
}

func (p *Pipeline) saveSession(ctx context.Context, params Params, s model.ScrapeSession) {
	if !params.Persist || p.store == nil {
		return
	}
	if err := p.store.SaveSession(ctx, s); err != nil {
		zap.L().Error("persist session failed", zap.Error(err))
	}
}

func isNotFound(err error) bool {
	var se *resilience.StatusError
	return errors.As(err, &se) && se.StatusCode == 404
}
