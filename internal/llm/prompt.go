package llm

import "strings"

// BuildSystemPrompt composes the system message: output contract, line-item
// standardization rules, and formatting hygiene.
func BuildSystemPrompt(req ExtractRequest) string {
	parts := []string{
		"You are a financial analyst. Extract the income statement from the attached PDF report.",
		"Return ONLY JSON that matches the provided JSON Schema.",
		"Map each report row onto one of the standardized line items when possible: " +
			strings.Join(RequiredLineItems, ", ") + ".",
		"Keep the original row label in 'name' and put the standardized label in 'standardized_name'.",
		"List standardized items you could not find in 'missing_items'.",
		"Report every fiscal period shown, most recent last, using the report's own labels (e.g. FY2023, 2023, Q4 2023) in 'years'.",
		"For each line item emit one entry per year in 'values'; use null when the report does not state a figure for that year.",
		"Use negative numbers for costs and expenses only if the report presents them as negative.",
		"Set 'units' to the stated scale (e.g. thousands, millions) and 'currency' to the ISO 4217 code when visible.",
		"Set 'completeness' to 'complete' when every standardized item was found, 'partial' when some are missing, 'not_found' when the document contains no income statement.",
		"Never invent figures. If a value is not in the document, it is null or the item is missing.",
	}
	if hint := strings.TrimSpace(req.CompanyHint); hint != "" {
		parts = append(parts, "The company is likely: "+hint+".")
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the filename hint next to the attached document.
func BuildUserPrompt(req ExtractRequest) string {
	var b strings.Builder
	b.WriteString("Filename: ")
	b.WriteString(strings.TrimSpace(req.FileName))
	b.WriteString("\n\nExtract the income statement from the attached PDF and return JSON matching the schema.")
	return b.String()
}
