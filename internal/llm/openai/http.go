package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// postJSON posts payload to the provider and returns the raw body and status
// code. Non-2xx replies come back with the body intact so the caller can map
// auth failures and surface provider error messages.
func (c *Client) postJSON(ctx context.Context, reqID, url string, payload any, headers map[string]string) ([]byte, int, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	c.logger.Info("llm.http.done",
		"req_id", reqID,
		"status", resp.StatusCode,
		"request_bytes", len(buf),
		"response_bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return raw, resp.StatusCode, nil
}
