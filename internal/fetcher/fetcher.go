// Package fetcher downloads listing pages, disclosure PDFs, and ministry
// workbooks with a politeness delay between requests, retry on transient
// failures, and automatic handling of the exchange's consent interstitial.
package fetcher

import (
	"context"
	"net/url"
)

// Fetcher defines the interface for talking to disclosure providers.
type Fetcher interface {
	// Get fetches the URL and returns the response body.
	Get(ctx context.Context, url string) ([]byte, error)

	// PostForm submits a form-encoded POST and returns the response body.
	// Ranged announcement searches are driven through this.
	PostForm(ctx context.Context, url string, form url.Values) ([]byte, error)

	// DownloadToFile fetches the URL and writes it to path. Returns bytes
	// written. Consent interstitials served in place of the document are
	// accepted transparently.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
