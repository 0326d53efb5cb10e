package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finparse/statements/internal/common"
	"github.com/finparse/statements/internal/llm"
	"github.com/finparse/statements/internal/statement"
)

// Extract implements llm.StatementExtractor using chat/completions with the
// PDF attached as a base64 file part. The reply is validated against the
// statement schema; a lenient sanitize pass runs before giving up.
func (c *Client) Extract(ctx context.Context, req llm.ExtractRequest) (statement.FinancialData, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"file", req.FileName,
		"pdf_bytes", len(req.PDF),
	)

	if len(req.PDF) == 0 {
		return statement.FinancialData{}, nil, fmt.Errorf("empty pdf: %w", common.ErrInvalidInput)
	}

	schema := llm.BuildStatementJSONSchema()
	sys := llm.BuildSystemPrompt(req)
	user := llm.BuildUserPrompt(req)
	dataURL := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(req.PDF)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": sys},
			{"role": "user", "content": []map[string]any{
				{"type": "file", "file": map[string]any{
					"filename":  req.FileName,
					"file_data": dataURL,
				}},
				{"type": "text", "text": user + "\n\nReturn ONLY JSON that matches the provided schema."},
			}},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, status, httpErr := c.postJSON(ctx, rid, endpoint, body, headers)
	if httpErr != nil {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			c.logger.Error("llm.extract.auth_error",
				"req_id", rid, "status", status,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return statement.FinancialData{}, nil, fmt.Errorf("openai status %d: %w", status, common.ErrUnauthorized)
		}
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return statement.FinancialData{}, nil, httpErr
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return statement.FinancialData{}, raw, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.extract.no_choices",
			"req_id", rid, "raw", string(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return statement.FinancialData{}, raw, fmt.Errorf("no choices in openai response")
	}
	content := stripFences(strings.TrimSpace(cc.Choices[0].Message.Content))
	rawContent := []byte(content)

	// Validate strictly first; sanitize and re-validate as the fallback.
	if err := llm.ValidateJSONAgainstSchema(schema, rawContent); err != nil {
		cleaned, touched, sErr := llm.SanitizeDocument(rawContent)
		if sErr != nil {
			c.logger.Error("llm.extract.sanitize_failed",
				"req_id", rid, "error", sErr,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return statement.FinancialData{}, rawContent, fmt.Errorf("sanitize failed: %w", sErr)
		}
		if vErr := llm.ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			c.logger.Error("llm.extract.schema_validation_failed",
				"req_id", rid, "error", vErr, "content", string(rawContent),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return statement.FinancialData{}, rawContent, fmt.Errorf("schema validation failed: %w", vErr)
		}
		c.logger.Warn("llm.extract.sanitize_applied",
			"req_id", rid, "touched", touched,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		rawContent = cleaned
	}

	var doc statement.Document
	if err := json.Unmarshal(rawContent, &doc); err != nil {
		c.logger.Error("llm.extract.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return statement.FinancialData{}, rawContent, fmt.Errorf("unmarshal document: %w", err)
	}
	data := statement.Normalize(doc)

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"company", data.CompanyName,
		"years", len(data.Years),
		"line_items", len(data.LineItems),
		"completeness", data.Completeness,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return data, rawContent, nil
}

// stripFences removes a surrounding markdown code fence some models add
// despite the json_object response format.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
