package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-plug/internal/plug"
)

// apiError mirrors the server's structured error body.
type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Code, e.Message)
}

// historyResponse is the body of GET /api/v1/plug/history.
type historyResponse struct {
	Entries []plug.HistoryEntry `json:"entries"`
	Count   int                 `json:"count"`
}

// client calls the plugd HTTP API.
type client struct {
	base string
	http *http.Client
}

func newClient(addr string, timeout time.Duration) *client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &client{
		base: strings.TrimRight(addr, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// do sends a request and decodes a 2xx JSON body into out. The raw body is
// returned so callers can print it unchanged.
func (c *client) do(ctx context.Context, method, path string, out any) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		apiErr.Status = resp.StatusCode
		return body, apiErr
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return body, fmt.Errorf("decoding response: %w", err)
		}
	}
	return body, nil
}

func (c *client) power(ctx context.Context, action string) (plug.Result, []byte, error) {
	var res plug.Result
	body, err := c.do(ctx, http.MethodPost, "/api/v1/plug/"+action, &res)
	return res, body, err
}

func (c *client) status(ctx context.Context) (plug.Result, []byte, error) {
	var res plug.Result
	body, err := c.do(ctx, http.MethodGet, "/api/v1/plug", &res)
	return res, body, err
}

func (c *client) history(ctx context.Context, limit int) (historyResponse, []byte, error) {
	var out historyResponse
	path := "/api/v1/plug/history"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	body, err := c.do(ctx, http.MethodGet, path, &out)
	return out, body, err
}
