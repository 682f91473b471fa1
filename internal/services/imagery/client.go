package imagery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"loom/internal/config"
	"loom/internal/services"
)

const defaultHTTPTimeout = 60 * time.Second

// Image is a sourced product image candidate.
type Image struct {
	URL    string `json:"url"`
	Alt    string `json:"alt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Client talks to the image sourcing service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client (useful for tests).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs an imagery client from configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.Imagery.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Imagery.TimeoutSeconds) * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.Imagery.URL), "/"),
		apiKey:     strings.TrimSpace(cfg.Imagery.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Configured reports whether an imagery endpoint is set. The images stage is
// optional; an unconfigured client makes the stage skip rather than fail.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Search returns image candidates for a product query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Image, error) {
	if !c.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, "images", "search images", "imagery.url is not configured", nil)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, services.Wrap(services.ErrValidation, "images", "search images", "query is empty", nil)
	}
	if limit <= 0 {
		limit = 5
	}

	endpoint := fmt.Sprintf("%s/v1/images?query=%s&limit=%d", c.baseURL, url.QueryEscape(query), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build image search request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "images", "search images", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, services.Wrap(services.ErrTransient, "images", "search images",
			fmt.Sprintf("service returned status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrValidation, "images", "search images",
			fmt.Sprintf("service rejected request with status %d", resp.StatusCode), nil)
	}

	var payload struct {
		Images []Image `json:"images"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrTransient, "images", "decode image search response", "malformed response body", err)
	}
	return payload.Images, nil
}
