package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"loom/internal/api"
)

// daemonClient talks to the loomd HTTP API.
type daemonClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newDaemonClient(addr, token string) (*daemonClient, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return nil, errors.New("daemon address not configured; set paths.api_bind or pass --addr")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	return &daemonClient{
		baseURL: strings.TrimRight(trimmed, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *daemonClient) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var status api.DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *daemonClient) Submit(ctx context.Context, req api.SubmitRequest) (*api.SubmitResponse, error) {
	var resp api.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/workflows", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *daemonClient) List(ctx context.Context, state string) ([]api.WorkflowItem, error) {
	path := "/api/workflows"
	if strings.TrimSpace(state) != "" {
		path += "?state=" + url.QueryEscape(state)
	}
	var resp api.WorkflowListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *daemonClient) Describe(ctx context.Context, id string) (*api.WorkflowItem, error) {
	var resp api.WorkflowItemResponse
	if err := c.do(ctx, http.MethodGet, "/api/workflows/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Item, nil
}

func (c *daemonClient) Retry(ctx context.Context, id string) (int64, error) {
	var resp api.RetryResponse
	if err := c.do(ctx, http.MethodPost, "/api/workflows/"+url.PathEscape(id)+"/retry", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (c *daemonClient) ClearFailed(ctx context.Context) (int64, error) {
	var resp api.RetryResponse
	if err := c.do(ctx, http.MethodPost, "/api/workflows/clear-failed", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (c *daemonClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reach daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
