package statement

import "strings"

// Document mirrors the JSON contract returned by the model: each line item
// carries a year/value array rather than a map, and the year list is declared
// separately at the top level.
type Document struct {
	CompanyName  string        `json:"company_name"`
	Currency     string        `json:"currency,omitempty"`
	Units        string        `json:"units,omitempty"`
	Years        []string      `json:"years"`
	LineItems    []DocLineItem `json:"line_items"`
	MissingItems []string      `json:"missing_items,omitempty"`
	Completeness string        `json:"completeness"`
}

// DocLineItem is the wire form of a line item.
type DocLineItem struct {
	Name             string      `json:"name"`
	StandardizedName string      `json:"standardized_name,omitempty"`
	Values           []YearValue `json:"values"`
}

// YearValue is one (year, value) pair; Value is null when the report omits
// the figure for that year.
type YearValue struct {
	Year  string   `json:"year"`
	Value *float64 `json:"value"`
}

// Normalize converts the wire document into the year-keyed domain model.
//
// Year order is the model's declared order; years that only appear inside
// line-item value arrays are appended in first-appearance order. Years are
// never sorted. Duplicate (year, value) entries within one item keep the
// first non-nil value.
func Normalize(doc Document) FinancialData {
	out := FinancialData{
		CompanyName:  strings.TrimSpace(doc.CompanyName),
		Currency:     strings.TrimSpace(doc.Currency),
		Units:        strings.TrimSpace(doc.Units),
		MissingItems: doc.MissingItems,
		Completeness: ParseCompleteness(doc.Completeness),
	}

	seen := make(map[string]struct{}, len(doc.Years))
	addYear := func(y string) {
		y = strings.TrimSpace(y)
		if y == "" {
			return
		}
		if _, ok := seen[y]; ok {
			return
		}
		seen[y] = struct{}{}
		out.Years = append(out.Years, y)
	}
	for _, y := range doc.Years {
		addYear(y)
	}

	out.LineItems = make([]LineItem, 0, len(doc.LineItems))
	for _, it := range doc.LineItems {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			continue
		}
		std := strings.TrimSpace(it.StandardizedName)
		if std == "" {
			std = name
		}
		li := LineItem{
			Name:             name,
			StandardizedName: std,
			Values:           make(map[string]*float64, len(it.Values)),
		}
		for _, yv := range it.Values {
			year := strings.TrimSpace(yv.Year)
			if year == "" {
				continue
			}
			addYear(year)
			if existing, ok := li.Values[year]; ok && existing != nil {
				continue
			}
			li.Values[year] = yv.Value
		}
		out.LineItems = append(out.LineItems, li)
	}

	return out
}
