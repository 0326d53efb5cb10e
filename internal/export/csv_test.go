package export

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finparse/statements/constants"
	"github.com/finparse/statements/internal/statement"
)

func f(v float64) *float64 { return &v }

func sampleResults() []statement.ExtractionResult {
	return []statement.ExtractionResult{
		{
			FileName: "acme.pdf",
			Data: statement.FinancialData{
				CompanyName: "Acme Corp",
				Years:       []string{"FY2022", "FY2023"},
				LineItems: []statement.LineItem{
					{
						Name:             "Net revenues",
						StandardizedName: "Revenue",
						Values:           map[string]*float64{"FY2022": f(1200), "FY2023": f(1450.5)},
					},
					{
						Name:             "Cost of sales",
						StandardizedName: "Cost of Revenue",
						Values:           map[string]*float64{"FY2022": f(-800), "FY2023": nil},
					},
				},
				Completeness: constants.CompletenessPartial,
			},
		},
	}
}

func parseCSV(t *testing.T, b []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(string(b))).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWideCSV(t *testing.T) {
	b, err := WideCSV(sampleResults())
	require.NoError(t, err)
	rows := parseCSV(t, b)

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Company", "Line Item", "Standardized Item", "FY2022", "FY2023"}, rows[0])
	assert.Equal(t, []string{"Acme Corp", "Net revenues", "Revenue", "1200", "1450.5"}, rows[1])
	// nil value renders as an empty cell
	assert.Equal(t, []string{"Acme Corp", "Cost of sales", "Cost of Revenue", "-800", ""}, rows[2])
}

func TestWideCSV_UnionYearsAcrossResults(t *testing.T) {
	results := sampleResults()
	results = append(results, statement.ExtractionResult{
		FileName: "beta.pdf",
		Data: statement.FinancialData{
			CompanyName: "Beta Inc",
			Years:       []string{"FY2021", "FY2022"},
			LineItems: []statement.LineItem{
				{Name: "Revenue", StandardizedName: "Revenue", Values: map[string]*float64{"FY2021": f(10), "FY2022": f(20)}},
			},
			Completeness: constants.CompletenessComplete,
		},
	})

	b, err := WideCSV(results)
	require.NoError(t, err)
	rows := parseCSV(t, b)

	// first-appearance order, never sorted
	assert.Equal(t, []string{"Company", "Line Item", "Standardized Item", "FY2022", "FY2023", "FY2021"}, rows[0])
	assert.Equal(t, []string{"Beta Inc", "Revenue", "Revenue", "20", "", "10"}, rows[3])
}

func TestLongCSV(t *testing.T) {
	b, err := LongCSV(sampleResults())
	require.NoError(t, err)
	rows := parseCSV(t, b)

	require.Len(t, rows, 5) // header + 2 items x 2 years
	assert.Equal(t, []string{"company", "line_item", "standardized_item", "year", "value"}, rows[0])
	assert.Equal(t, []string{"Acme Corp", "Net revenues", "Revenue", "FY2022", "1200"}, rows[1])
	assert.Equal(t, []string{"Acme Corp", "Cost of sales", "Cost of Revenue", "FY2023", ""}, rows[4])
}

func TestWideCSV_Empty(t *testing.T) {
	b, err := WideCSV(nil)
	require.NoError(t, err)
	rows := parseCSV(t, b)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Company", "Line Item", "Standardized Item"}, rows[0])
}
