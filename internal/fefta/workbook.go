package fefta

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/normalize"
)

// Workbook column layout. The ministry has kept this stable across
// publications: securities code, ISIN, Japanese company name, English issue
// or company name, designation category as a circled numeral, and the
// core-operator designation which is blank or a dash for most companies.
var (
	securitiesCodeRe = regexp.MustCompile(`^\d{4,5}[A-Z0-9]?$`)
	isinRe           = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}\d$`)
)

const (
	colSecuritiesCode = 0
	colISIN           = 1
	colCompanyNameJA  = 2
	colIssueEN        = 3
	colCategory       = 4
	colCoreOperator   = 5
)

// ParseWorkbook reads the classification rows from the workbook at path.
// sheetName selects the data sheet; empty means the first sheet. Rows
// without both a securities code and an ISIN are headers or footnotes and
// are skipped. A glyph the normalizer cannot map aborts the parse with an
// error naming the row and column, because silently mis-bucketing a company
// is worse than failing the import.
func ParseWorkbook(path, sheetName string) ([]model.FeftaRecord, error) {
	file, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fefta: open workbook %s", path)
	}

	var sheet *xlsx.Sheet
	if sheetName == "" {
		if len(file.Sheets) == 0 {
			return nil, eris.Errorf("fefta: workbook %s has no sheets", path)
		}
		sheet = file.Sheets[0]
	} else {
		var ok bool
		sheet, ok = file.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("fefta: workbook %s has no sheet %q", path, sheetName)
		}
	}

	var records []model.FeftaRecord
	for i, row := range sheet.Rows {
		code := cellAt(row, colSecuritiesCode)
		isin := cellAt(row, colISIN)
		// Header rows, footnotes and spacer rows carry no code/ISIN pair.
		if !securitiesCodeRe.MatchString(code) || !isinRe.MatchString(isin) {
			continue
		}

		category, err := normalize.Numeral(cellAt(row, colCategory), i, "category")
		if err != nil {
			return nil, eris.Wrap(err, "fefta: parse workbook")
		}
		core, err := normalize.OptionalNumeral(cellAt(row, colCoreOperator), i, "core_operator")
		if err != nil {
			return nil, eris.Wrap(err, "fefta: parse workbook")
		}

		records = append(records, model.FeftaRecord{
			SecuritiesCode:   code,
			ISINCode:         isin,
			CompanyNameJA:    cellAt(row, colCompanyNameJA),
			IssueOrCompanyEN: cellAt(row, colIssueEN),
			Category:         category,
			CoreOperator:     core,
		})
	}
	if len(records) == 0 {
		return nil, eris.Errorf("fefta: no company rows in workbook %s", path)
	}
	return records, nil
}

func cellAt(row *xlsx.Row, i int) string {
	if i >= len(row.Cells) {
		return ""
	}
	return strings.TrimSpace(row.Cells[i].String())
}
