package llm

// RequiredLineItems are the standardized names the model is asked to map
// report rows onto. Rows it cannot find go to missing_items.
var RequiredLineItems = []string{
	"Revenue",
	"Cost of Revenue",
	"Gross Profit",
	"Operating Expenses",
	"Operating Income",
	"Interest Expense",
	"Income Tax Expense",
	"Net Income",
}

// BuildStatementJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. It is sent to the provider as the output contract and used
// locally to validate the reply.
func BuildStatementJSONSchema() map[string]any {
	yearValue := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"year":  map[string]any{"type": "string", "minLength": 1},
			"value": map[string]any{"type": []string{"number", "null"}},
		},
		"required": []string{"year", "value"},
	}

	lineItem := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name":              map[string]any{"type": "string", "minLength": 1},
			"standardized_name": map[string]any{"type": "string"},
			"values":            map[string]any{"type": "array", "items": yearValue},
		},
		"required": []string{"name", "values"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"company_name": map[string]any{"type": "string", "minLength": 1},
			"currency":     map[string]any{"type": "string"},
			"units":        map[string]any{"type": "string"},
			"years": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string", "minLength": 1},
			},
			"line_items": map[string]any{
				"type":  "array",
				"items": lineItem,
			},
			"missing_items": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"completeness": map[string]any{
				"type": "string",
				"enum": []string{"complete", "partial", "not_found"},
			},
		},
		"required": []string{"company_name", "years", "line_items", "completeness"},
	}
}
