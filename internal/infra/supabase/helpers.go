package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// ============================================================
// HTTP helpers for POST, PATCH, DELETE
// ============================================================

// doPost inserts into table. prefer is sent as the Prefer header, e.g.
// "resolution=merge-duplicates" for an upsert.
func (c *Client) doPost(ctx context.Context, table string, data any, prefer string) ([]byte, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, prefer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: POST request failed",
			zap.String("table", table),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: POST non-2xx",
			zap.String("table", table),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, &statusError{Method: http.MethodPost, Path: table, Status: resp.StatusCode, Body: string(body)}
	}

	c.logger.Debug("supabase: POST OK", zap.String("table", table), zap.Int("status", resp.StatusCode))
	return body, nil
}

// doPatch updates the rows matched by path and returns them.
func (c *Client) doPatch(ctx context.Context, path string, data any) ([]byte, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, "return=representation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: PATCH request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: PATCH non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, &statusError{Method: http.MethodPatch, Path: path, Status: resp.StatusCode, Body: string(body)}
	}

	c.logger.Debug("supabase: PATCH OK", zap.String("path", path))
	return body, nil
}

func (c *Client) doDelete(ctx context.Context, path string) error {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: DELETE request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := readBody(resp)
		c.logger.Warn("supabase: DELETE non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return &statusError{Method: http.MethodDelete, Path: path, Status: resp.StatusCode, Body: string(body)}
	}

	c.logger.Debug("supabase: DELETE OK", zap.String("path", path))
	return nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
