package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/disclosure-cli/internal/resilience"
)

func testFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		Delay: time.Millisecond,
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			Multiplier:     2.0,
		},
	})
}

func TestGet_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte("<html>listing</html>"))
	}))
	defer srv.Close()

	body, err := testFetcher().Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, string(body), "listing")
}

func TestGet_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := testFetcher().Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_NotFoundFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testFetcher().Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var se *resilience.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestPostForm_SendsEncodedFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "20260101", r.PostForm.Get("t0"))
		assert.Equal(t, "20260131", r.PostForm.Get("t1"))
		_, _ = w.Write([]byte("results"))
	}))
	defer srv.Close()

	form := map[string][]string{"t0": {"20260101"}, "t1": {"20260131"}}
	body, err := testFetcher().PostForm(context.Background(), srv.URL, form)
	require.NoError(t, err)
	assert.Equal(t, "results", string(body))
}

func TestDownloadToFile_WritesDocument(t *testing.T) {
	pdf := []byte("%PDF-1.7 fake document body")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pdf)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "doc.pdf")
	n, err := testFetcher().DownloadToFile(context.Background(), srv.URL, path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(pdf)), n)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pdf, got)
}

func TestDownloadToFile_PolitenessDelayBetweenRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{
		Delay: 50 * time.Millisecond,
		Retry: resilience.RetryConfig{MaxAttempts: 1},
	})

	dir := t.TempDir()
	start := time.Now()
	for i := range 3 {
		_, err := f.DownloadToFile(context.Background(), srv.URL, filepath.Join(dir, "d"+string(rune('a'+i))+".pdf"))
		require.NoError(t, err)
	}
	// First token is immediate; the next two wait one delay each.
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}
