// Package docextract downloads disclosure attachments and pulls text and
// named deal fields out of them. Text extraction runs pdftotext in layout
// mode first and falls back to a table-aware TSV pass when the layout pass
// yields too little text, because financial figures often live only inside
// table structures that layout extraction flattens unreliably.
package docextract

import (
	"bytes"
	"context"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// runner executes an extraction pass and returns raw tool output. It exists
// as a seam so tests can substitute pdftotext.
type runner func(ctx context.Context, args ...string) ([]byte, error)

// Extractor converts downloaded PDFs into text and table cells.
type Extractor struct {
	binPath string

	// minTextChars is the threshold below which the layout pass is treated
	// as failed and the table-aware pass runs.
	minTextChars int

	run runner
}

// NewExtractor creates an Extractor. Empty binPath means "pdftotext" on
// PATH; minTextChars of 0 uses the default of 100.
func NewExtractor(binPath string, minTextChars int) *Extractor {
	if binPath == "" {
		binPath = "pdftotext"
	}
	if minTextChars <= 0 {
		minTextChars = 100
	}
	e := &Extractor{binPath: binPath, minTextChars: minTextChars}
	e.run = e.execPdfToText
	return e
}

// ExtractText extracts text from the PDF at path. The result's Method
// records which strategy produced the text; ExtractionFailed comes with
// empty text and is not an error, since callers persist the owning record
// either way.
func (e *Extractor) ExtractText(ctx context.Context, path string) model.ExtractedDocument {
	doc := model.ExtractedDocument{Path: path}

	out, err := e.run(ctx, "-layout", path, "-")
	text := strings.TrimSpace(string(out))
	if err == nil && len(text) >= e.minTextChars {
		doc.Text = text
		doc.Method = model.ExtractionPrimary
		return doc
	}
	if err != nil {
		zap.L().Debug("layout extraction failed, trying table-aware pass",
			zap.String("path", path),
			zap.Error(err),
		)
	}

	tsvOut, tsvErr := e.run(ctx, "-tsv", path, "-")
	if tsvErr == nil {
		cells, tsvText := parseTSV(tsvOut)
		if len(tsvText) >= e.minTextChars || (len(tsvText) > len(text) && tsvText != "") {
			doc.Text = tsvText
			doc.TableCells = cells
			doc.Method = model.ExtractionFallback
			return doc
		}
	}

	// Both passes came up short. Keep whatever the layout pass produced
	// only if it produced anything at all.
	if text != "" {
		doc.Text = text
		doc.Method = model.ExtractionPrimary
		return doc
	}

	zap.L().Warn("text extraction failed",
		zap.String("path", path),
	)
	doc.Method = model.ExtractionFailed
	return doc
}

func (e *Extractor) execPdfToText(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.binPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "docextract: %s failed: %s", e.binPath, stderr.String())
	}
	return stdout.Bytes(), nil
}

// parseTSV turns pdftotext -tsv output into rows of cell text plus a flat
// text rendering. The TSV format emits one word per line with page, block,
// line, and word numbers; words sharing (page, block, line) form one cell
// row in the original table.
func parseTSV(out []byte) ([][]string, string) {
	type lineKey struct {
		page, block, par, line int
	}

	grouped := map[lineKey][]string{}
	var order []lineKey

	for i, raw := range strings.Split(string(out), "\n") {
		if i == 0 || strings.TrimSpace(raw) == "" {
			continue // header
		}
		fields := strings.Split(raw, "\t")
		if len(fields) < 12 {
			continue
		}
		word := strings.TrimSpace(fields[11])
		if word == "" || word == "###LINE###" || word == "###PAGE###" || word == "###FLOW###" {
			continue
		}
		// TSV columns: level, page_num, par_num, block_num, line_num,
		// word_num, left, top, width, height, conf, text.
		key := lineKey{
			page:  atoi(fields[1]),
			par:   atoi(fields[2]),
			block: atoi(fields[3]),
			line:  atoi(fields[4]),
		}
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], word)
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.page != b.page {
			return a.page < b.page
		}
		if a.block != b.block {
			return a.block < b.block
		}
		if a.par != b.par {
			return a.par < b.par
		}
		return a.line < b.line
	})

	var cells [][]string
	var sb strings.Builder
	prevBlock := -1
	for _, key := range order {
		words := grouped[key]
		if key.block != prevBlock {
			cells = append(cells, nil)
			prevBlock = key.block
		}
		joined := strings.Join(words, " ")
		cells[len(cells)-1] = append(cells[len(cells)-1], joined)
		sb.WriteString(joined)
		sb.WriteString("\n")
	}
	return cells, strings.TrimSpace(sb.String())
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
