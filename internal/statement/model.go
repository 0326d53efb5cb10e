package statement

import (
	"strings"

	"github.com/finparse/statements/constants"
)

// LineItem is one income-statement row with its values keyed by year label.
// A nil value means the report did not state a figure for that year.
type LineItem struct {
	Name             string              `json:"name"`
	StandardizedName string              `json:"standardized_name"`
	Values           map[string]*float64 `json:"values"`
}

// FinancialData is the normalized income statement for one document.
type FinancialData struct {
	CompanyName  string                 `json:"company_name"`
	Currency     string                 `json:"currency,omitempty"`
	Units        string                 `json:"units,omitempty"`
	Years        []string               `json:"years"`
	LineItems    []LineItem             `json:"line_items"`
	MissingItems []string               `json:"missing_items,omitempty"`
	Completeness constants.Completeness `json:"completeness"`
}

// ExtractionResult pairs a source file with its extracted data.
type ExtractionResult struct {
	FileName string        `json:"file_name"`
	Data     FinancialData `json:"data"`
}

// ParseCompleteness maps a model-reported completeness string onto the enum.
// Matching is case-insensitive and tolerant of spaces/hyphens; anything
// unrecognized degrades to partial rather than failing the document.
func ParseCompleteness(s string) constants.Completeness {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "-", "_")
	v = strings.ReplaceAll(v, " ", "_")
	switch v {
	case string(constants.CompletenessComplete):
		return constants.CompletenessComplete
	case string(constants.CompletenessNotFound):
		return constants.CompletenessNotFound
	default:
		return constants.CompletenessPartial
	}
}
