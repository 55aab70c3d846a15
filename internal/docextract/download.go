package docextract

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/disclosure-cli/internal/fetcher"
)

// unsafePathChars strips anything outside a conservative filename alphabet.
var unsafePathChars = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// Download fetches the attachment at rawURL into outputDir under a
// deterministic name: {YYYY_MM_DD}_{original filename or a slug derived
// from title}. Re-running the same range overwrites the same paths instead
// of accumulating duplicates.
func Download(ctx context.Context, f fetcher.Fetcher, rawURL string, outputDir string, publishedAt time.Time, title string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", eris.Wrapf(err, "docextract: create output dir %s", outputDir)
	}

	name := attachmentName(rawURL, title)
	dest := filepath.Join(outputDir, publishedAt.Format("2006_01_02")+"_"+name)

	if _, err := f.DownloadToFile(ctx, rawURL, dest); err != nil {
		return "", eris.Wrapf(err, "docextract: download %s", rawURL)
	}
	return dest, nil
}

// attachmentName picks the original filename from the URL when it has one,
// falling back to a slug of the title.
func attachmentName(rawURL, title string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
			return sanitize(base)
		}
	}

	slug := sanitize(title)
	if runes := []rune(slug); len(runes) > 80 {
		slug = string(runes[:80])
	}
	if slug == "" {
		slug = "attachment"
	}
	return slug + ".pdf"
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = unsafePathChars.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
