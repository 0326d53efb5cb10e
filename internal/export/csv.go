package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/gocarina/gocsv"

	"github.com/finparse/statements/internal/statement"
)

// WideCSV writes one row per line item with one column per year. With more
// than one result the year columns are the union across results, in
// first-appearance order; a company column keeps rows attributable.
func WideCSV(results []statement.ExtractionResult) ([]byte, error) {
	years := unionYears(results)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{"Company", "Line Item", "Standardized Item"}, years...)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for _, res := range results {
		for _, li := range res.Data.LineItems {
			row := make([]string, 0, len(header))
			row = append(row, res.Data.CompanyName, li.Name, li.StandardizedName)
			for _, y := range years {
				row = append(row, formatValue(li.Values[y]))
			}
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("write row: %w", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// longRow is one (company, line item, year) triple.
type longRow struct {
	Company          string `csv:"company"`
	LineItem         string `csv:"line_item"`
	StandardizedItem string `csv:"standardized_item"`
	Year             string `csv:"year"`
	Value            string `csv:"value"`
}

// LongCSV writes one row per (company, line item, year) triple, years in each
// result's own order.
func LongCSV(results []statement.ExtractionResult) ([]byte, error) {
	var rows []longRow
	for _, res := range results {
		for _, li := range res.Data.LineItems {
			for _, y := range res.Data.Years {
				rows = append(rows, longRow{
					Company:          res.Data.CompanyName,
					LineItem:         li.Name,
					StandardizedItem: li.StandardizedName,
					Year:             y,
					Value:            formatValue(li.Values[y]),
				})
			}
		}
	}
	out, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, fmt.Errorf("marshal long csv: %w", err)
	}
	return out, nil
}

func unionYears(results []statement.ExtractionResult) []string {
	var years []string
	seen := make(map[string]struct{})
	for _, res := range results {
		for _, y := range res.Data.Years {
			if _, ok := seen[y]; ok {
				continue
			}
			seen[y] = struct{}{}
			years = append(years, y)
		}
	}
	return years
}

// formatValue renders a nullable numeric; nil becomes an empty cell.
func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
