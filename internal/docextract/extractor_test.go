package docextract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/disclosure-cli/internal/model"
)

const layoutText = `第三者割当による新株式発行に関するお知らせ
割当先 Global Growth Partners
調達資金の総額 1,000百万円
発行価額 1株につき 523円
発行新株式数 1,912,045株
払込期日 2026年2月10日`

func fakeRunner(layout string, layoutErr error, tsv string, tsvErr error) runner {
	return func(_ context.Context, args ...string) ([]byte, error) {
		switch args[0] {
		case "-layout":
			return []byte(layout), layoutErr
		case "-tsv":
			return []byte(tsv), tsvErr
		}
		return nil, errors.New("unexpected args")
	}
}

func TestExtractText_PrimarySucceeds(t *testing.T) {
	e := NewExtractor("", 10)
	e.run = fakeRunner(layoutText, nil, "", errors.New("not called"))

	doc := e.ExtractText(context.Background(), "/tmp/a.pdf")
	assert.Equal(t, model.ExtractionPrimary, doc.Method)
	assert.Contains(t, doc.Text, "割当先")
	assert.Empty(t, doc.TableCells)
}

func TestExtractText_FallsBackOnShortText(t *testing.T) {
	tsv := strings.Join([]string{
		"level\tpage_num\tpar_num\tblock_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext",
		"5\t1\t1\t1\t1\t1\t0\t0\t10\t10\t95\t調達資金の総額",
		"5\t1\t1\t1\t1\t2\t12\t0\t10\t10\t95\t1,000百万円",
		"5\t1\t1\t2\t1\t1\t0\t20\t10\t10\t95\t発行価額",
		"5\t1\t1\t2\t1\t2\t12\t20\t10\t10\t95\t523円",
	}, "\n")

	e := NewExtractor("", 20)
	e.run = fakeRunner("", nil, tsv, nil)

	doc := e.ExtractText(context.Background(), "/tmp/b.pdf")
	assert.Equal(t, model.ExtractionFallback, doc.Method)
	assert.NotEmpty(t, doc.Text)
	require.Len(t, doc.TableCells, 2)
	assert.Contains(t, doc.TableCells[0], "調達資金の総額 1,000百万円")
}

func TestExtractText_BothFail(t *testing.T) {
	e := NewExtractor("", 10)
	e.run = fakeRunner("", errors.New("broken pdf"), "", errors.New("broken pdf"))

	doc := e.ExtractText(context.Background(), "/tmp/c.pdf")
	assert.Equal(t, model.ExtractionFailed, doc.Method)
	assert.Empty(t, doc.Text)
}

func TestExtractText_KeepsShortPrimaryWhenFallbackWorse(t *testing.T) {
	e := NewExtractor("", 100)
	e.run = fakeRunner("short but real", nil, "", errors.New("tsv failed"))

	doc := e.ExtractText(context.Background(), "/tmp/d.pdf")
	assert.Equal(t, model.ExtractionPrimary, doc.Method)
	assert.Equal(t, "short but real", doc.Text)
}
