package fetcher

import (
	"strings"

	"github.com/extrame/xls"
	"github.com/rotisserie/eris"
)

// maxXLSCols is the BIFF8 column limit.
const maxXLSCols = 256

// ReadXLS reads a legacy BIFF (.xls) workbook and returns all rows of the
// selected sheet as string slices. Missing rows are skipped.
func ReadXLS(path string, opts XLSXOptions) (rows [][]string, err error) {
	// The BIFF decoder panics on some malformed records.
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = eris.Errorf("xls: malformed workbook %s: %v", path, r)
		}
	}()

	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, eris.Wrap(err, "xls: open file")
	}

	sheet, err := getXLSSheet(wb, opts)
	if err != nil {
		return nil, err
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := xlsRow(sheet, i)
		if row == nil {
			continue
		}
		rows = append(rows, xlsCells(row))
	}

	return rows, nil
}

// xlsRow returns row i, or nil when the sheet has no record for it.
// WorkSheet.Row dereferences the missing row.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

// xlsCells converts a row to strings. LastCol is exclusive and comes from
// the ROW record, which some writers omit; those rows are scanned up to the
// format's column limit and trimmed.
func xlsCells(row *xls.Row) []string {
	last := row.LastCol()
	scanned := last <= 0
	if scanned {
		last = maxXLSCols
	}
	cells := make([]string, last)
	for j := row.FirstCol(); j < last; j++ {
		cells[j] = strings.TrimSpace(row.Col(j))
	}
	if scanned {
		n := len(cells)
		for n > 0 && cells[n-1] == "" {
			n--
		}
		cells = cells[:n]
	}
	return cells
}

func getXLSSheet(wb *xls.WorkBook, opts XLSXOptions) (*xls.WorkSheet, error) {
	if opts.SheetName != "" {
		for i := 0; i < wb.NumSheets(); i++ {
			if s := wb.GetSheet(i); s != nil && s.Name == opts.SheetName {
				return s, nil
			}
		}
		return nil, eris.Errorf("xls: sheet %q not found", opts.SheetName)
	}

	if opts.SheetIndex >= wb.NumSheets() {
		return nil, eris.Errorf("xls: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, wb.NumSheets())
	}

	sheet := wb.GetSheet(opts.SheetIndex)
	if sheet == nil {
		return nil, eris.Errorf("xls: sheet %d is empty", opts.SheetIndex)
	}
	return sheet, nil
}
