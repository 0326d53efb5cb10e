package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SanitizeDocument removes or normalizes recoverable offenders in a model
// reply so the document can still validate against the schema:
//   - drops unknown top-level keys (additionalProperties friendliness)
//   - normalizes completeness casing ("Complete" -> "complete", "not found" -> "not_found")
//   - coerces numeric strings inside value arrays to numbers; "N/A"/"" become null
//   - drops null/empty optionals (currency, units, standardized_name)
//
// It returns the cleaned JSON and the list of touched keys.
func SanitizeDocument(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var touched []string

	allowed := map[string]struct{}{
		"company_name": {}, "currency": {}, "units": {}, "years": {},
		"line_items": {}, "missing_items": {}, "completeness": {},
	}
	for k := range m {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			touched = append(touched, k+"(unknown)")
		}
	}

	dropEmptyString := func(k string) {
		switch v := m[k].(type) {
		case nil:
			delete(m, k)
			touched = append(touched, k+"(null)")
		case string:
			if strings.TrimSpace(v) == "" {
				delete(m, k)
				touched = append(touched, k+"(empty)")
			}
		}
	}
	if _, ok := m["currency"]; ok {
		dropEmptyString("currency")
	}
	if _, ok := m["units"]; ok {
		dropEmptyString("units")
	}

	if v, ok := m["completeness"].(string); ok {
		c := strings.ToLower(strings.TrimSpace(v))
		c = strings.ReplaceAll(c, "-", "_")
		c = strings.ReplaceAll(c, " ", "_")
		switch c {
		case "complete", "partial", "not_found":
		default:
			c = "partial"
		}
		if c != v {
			touched = append(touched, "completeness")
		}
		m["completeness"] = c
	}

	if items, ok := m["line_items"].([]any); ok {
		for _, rawItem := range items {
			item, ok := rawItem.(map[string]any)
			if !ok {
				continue
			}
			if v, ok := item["standardized_name"]; ok {
				switch t := v.(type) {
				case nil:
					delete(item, "standardized_name")
					touched = append(touched, "standardized_name(null)")
				case string:
					if strings.TrimSpace(t) == "" {
						delete(item, "standardized_name")
						touched = append(touched, "standardized_name(empty)")
					}
				}
			}
			values, ok := item["values"].([]any)
			if !ok {
				continue
			}
			for _, rv := range values {
				yv, ok := rv.(map[string]any)
				if !ok {
					continue
				}
				if s, ok := yv["value"].(string); ok {
					cleaned := strings.TrimSpace(s)
					if cleaned == "" || strings.EqualFold(cleaned, "null") || strings.EqualFold(cleaned, "n/a") {
						yv["value"] = nil
						touched = append(touched, "value(blank)")
						continue
					}
					if f, err := strconv.ParseFloat(normalizeNumber(cleaned), 64); err == nil {
						yv["value"] = f
						touched = append(touched, "value(string)")
					} else {
						yv["value"] = nil
						touched = append(touched, "value(unparseable)")
					}
				}
			}
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, touched, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, touched, nil
}

// normalizeNumber strips thousands separators and accounting parentheses so
// "(1,234.5)" parses as -1234.5.
func normalizeNumber(s string) string {
	s = strings.ReplaceAll(s, ",", "")
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}
	return s
}
