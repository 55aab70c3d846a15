package docextract

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	body  []byte
	calls int
}

func (s *stubFetcher) Get(context.Context, string) ([]byte, error) { return s.body, nil }

func (s *stubFetcher) PostForm(context.Context, string, url.Values) ([]byte, error) {
	return s.body, nil
}

func (s *stubFetcher) DownloadToFile(_ context.Context, _ string, path string) (int64, error) {
	s.calls++
	if err := os.WriteFile(path, s.body, 0o644); err != nil {
		return 0, err
	}
	return int64(len(s.body)), nil
}

func TestDownload_DeterministicPath(t *testing.T) {
	dir := t.TempDir()
	f := &stubFetcher{body: []byte("%PDF-1.7")}
	published := time.Date(2026, 1, 15, 16, 30, 0, 0, time.UTC)

	path, err := Download(context.Background(), f,
		"https://host.example.com/docs/140120260115512345.pdf", dir, published, "title")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2026_01_15_140120260115512345.pdf"), path)

	// Same inputs land on the same path.
	again, err := Download(context.Background(), f,
		"https://host.example.com/docs/140120260115512345.pdf", dir, published, "title")
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, 2, f.calls)
}

func TestDownload_SlugFromTitleWhenURLHasNoFilename(t *testing.T) {
	dir := t.TempDir()
	f := &stubFetcher{body: []byte("%PDF-1.7")}
	published := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	path, err := Download(context.Background(), f,
		"https://host.example.com/download?id=42", dir, published,
		"第三者割当による新株式発行に関するお知らせ")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2026_01_15_第三者割当による新株式発行に関するお知らせ.pdf"), path)
}

func TestAttachmentName_Sanitizes(t *testing.T) {
	got := attachmentName("https://h/x", `a/b\c: "d"?`)
	assert.NotContains(t, got, "/")
	assert.NotContains(t, got, `\`)
	assert.NotContains(t, got, "?")
}
