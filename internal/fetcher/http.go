package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/disclosure-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration

	// Delay is the minimum gap between requests to the provider. Listing
	// providers throttle aggressive clients, so every request waits its turn.
	Delay time.Duration

	Retry resilience.RetryConfig
}

// HTTPFetcher implements Fetcher using net/http with a fixed politeness
// delay and retry on transient failures.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "disclosure-cli/1.0"
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.Delay), 1),
	}
}

// Get fetches the URL and returns the response body.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := f.fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	})
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: get")
	}
	return body, nil
}

// PostForm submits a form-encoded POST and returns the response body.
func (f *HTTPFetcher) PostForm(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	encoded := form.Encode()
	body, err := f.fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: post form")
	}
	return body, nil
}

// DownloadToFile fetches the URL and writes it to path.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Get(ctx, rawURL)
	if err != nil {
		return 0, err
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, bytes.NewReader(body))
	if err != nil {
		return n, eris.Wrap(err, "fetcher: write file")
	}
	return n, nil
}

// fetch runs one logical request and shields the caller from the provider's
// consent interstitial: when the response is the terms page instead of the
// requested resource, the agreement form is submitted once and the real
// body returned. Callers never see the interstitial.
func (f *HTTPFetcher) fetch(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	body, err := f.fetchRaw(ctx, build)
	if err != nil || !isConsentPage(body) {
		return body, err
	}

	req, err := build(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	zap.L().Info("consent interstitial detected, accepting",
		zap.String("url", req.URL.String()),
	)
	body, err = f.acceptConsent(ctx, req.URL.String(), body)
	if err != nil {
		return nil, eris.Wrap(err, "accept consent")
	}
	return body, nil
}

// fetchRaw runs one HTTP request through the politeness limiter and the
// retry policy. Transient failures (network errors, 5xx, 429) are retried;
// other non-2xx statuses surface immediately as a StatusError.
func (f *HTTPFetcher) fetchRaw(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	return resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) ([]byte, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "politeness delay")
		}

		req, err := build(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, resilience.NewTransientError(
				eris.Errorf("http %d from %s", resp.StatusCode, req.URL),
				resp.StatusCode,
			)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, &resilience.StatusError{StatusCode: resp.StatusCode, URL: req.URL.String()}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "read body"), 0)
		}
		return body, nil
	})
}
