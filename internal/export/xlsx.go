package export

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/finparse/statements/internal/statement"
)

// XLSX returns a workbook with one sheet per result in the wide layout.
func XLSX(results []statement.ExtractionResult, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	f := excelize.NewFile()
	used := make(map[string]int)

	for i, res := range results {
		sheet := sheetName(res, used)
		if i == 0 {
			// rename the default sheet instead of leaving it empty
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, fmt.Errorf("new sheet: %w", err)
			}
		}

		headers := append([]string{"Line Item", "Standardized Item"}, res.Data.Years...)
		for col, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			_ = f.SetCellValue(sheet, cell, h)
		}

		row := 2
		for _, li := range res.Data.LineItems {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(sheet, cell, v)
			}
			write(1, li.Name)
			write(2, li.StandardizedName)
			for yi, y := range res.Data.Years {
				if v := li.Values[y]; v != nil {
					write(3+yi, *v)
				}
			}
			row++
		}

		_ = f.SetColWidth(sheet, "A", "A", 36)
		_ = f.SetColWidth(sheet, "B", "B", 24)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	logger.Info("export.xlsx.ok",
		"sheets", len(results),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// sheetName derives a legal, unique sheet name from the result's company
// (falling back to the file name). Excel caps names at 31 chars and forbids
// a handful of runes.
func sheetName(res statement.ExtractionResult, used map[string]int) string {
	name := strings.TrimSpace(res.Data.CompanyName)
	if name == "" {
		name = res.FileName
	}
	if name == "" {
		name = "Statement"
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, name)
	if r := []rune(name); len(r) > 28 {
		name = string(r[:28])
	}
	used[name]++
	if n := used[name]; n > 1 {
		name = fmt.Sprintf("%s_%d", name, n)
	}
	return name
}
