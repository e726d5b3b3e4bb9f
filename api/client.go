// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soothill/battery-data-logger/monitoring"
	"github.com/soothill/battery-data-logger/pkg/errors"
)

const clientTimeout = 10 * time.Second

// Client talks to a running logger's API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for addr, which may be "host:port" or a URL.
func NewClient(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

// Status returns the sampler status.
func (c *Client) Status(ctx context.Context) (*monitoring.Status, error) {
	var status monitoring.Status
	if err := c.do(ctx, http.MethodGet, "/api/sampler", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Start starts the sampler. A zero interval uses the server's configured one.
func (c *Client) Start(ctx context.Context, interval time.Duration) (*StartResponse, error) {
	var req IntervalRequest
	if interval != 0 {
		seconds := int(interval / time.Second)
		req.IntervalSeconds = &seconds
	}
	var resp StartResponse
	if err := c.do(ctx, http.MethodPost, "/api/sampler/start", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop stops the sampler and reports whether it was running.
func (c *Client) Stop(ctx context.Context) (bool, error) {
	var resp StopResponse
	if err := c.do(ctx, http.MethodPost, "/api/sampler/stop", nil, &resp); err != nil {
		return false, err
	}
	return resp.Stopped, nil
}

// Tick samples every device once on the server.
func (c *Client) Tick(ctx context.Context) (int, error) {
	var resp TickResponse
	if err := c.do(ctx, http.MethodPost, "/api/sampler/tick", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Appended, nil
}

// Health checks the liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewNetworkError(method+" "+path, c.baseURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
