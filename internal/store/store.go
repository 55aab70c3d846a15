// Package store persists pipeline output. Every write is an idempotent
// upsert keyed on the entity's business key, so re-running a range or
// retrying a failed run never duplicates rows.
package store

import (
	"context"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// Store defines the persistence interface for the disclosure pipeline.
type Store interface {
	// Announcements
	UpsertAnnouncement(ctx context.Context, a model.Announcement) error
	UpsertClassified(ctx context.Context, c model.Classified) error
	UpsertFacts(ctx context.Context, f model.FactsRecord) error

	// Sessions
	SaveSession(ctx context.Context, s model.ScrapeSession) error

	// FEFTA classification snapshots
	SaveFeftaSnapshot(ctx context.Context, src model.FeftaSource, records []model.FeftaRecord) error
	LatestFeftaSnapshot(ctx context.Context) (*model.FeftaSource, []model.FeftaRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// nullIfEmpty maps "" to SQL NULL so upserts can distinguish "no value"
// from an actual value. Attachment URLs rely on this: a stored URL is only
// overwritten by a non-null incoming one, never erased by a null.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
