package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"loom/internal/config"
	"loom/internal/services"
)

const defaultHTTPTimeout = 60 * time.Second

// Record is a catalog record as the commerce platform stores it.
type Record struct {
	ID          string   `json:"id,omitempty"`
	SKU         string   `json:"sku"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// Client talks to the commerce platform catalog API.
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

// NewClient constructs a platform client from configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.Platform.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Platform.TimeoutSeconds) * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.Platform.URL), "/"),
		apiKey:     strings.TrimSpace(cfg.Platform.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Configured reports whether a platform endpoint is set.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// CreateRecord publishes a new catalog record and returns its platform id.
// A slug collision surfaces as services.ErrConflict.
func (c *Client) CreateRecord(ctx context.Context, record *Record) (string, error) {
	var created Record
	err := c.do(ctx, http.MethodPost, "/v1/catalog/records", record, &created, "create record")
	if err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", services.Wrap(services.ErrTransient, "sync", "create record", "platform returned no record id", nil)
	}
	return created.ID, nil
}

// UpdateRecord replaces an existing catalog record in place.
func (c *Client) UpdateRecord(ctx context.Context, record *Record) error {
	if record.ID == "" {
		return services.Wrap(services.ErrValidation, "sync", "update record", "record has no platform id", nil)
	}
	return c.do(ctx, http.MethodPut, "/v1/catalog/records/"+url.PathEscape(record.ID), record, nil, "update record")
}

// FindBySKU looks up the record previously published for a SKU, or nil.
func (c *Client) FindBySKU(ctx context.Context, sku string) (*Record, error) {
	var found Record
	err := c.do(ctx, http.MethodGet, "/v1/catalog/records?sku="+url.QueryEscape(sku), nil, &found, "find record")
	if err != nil {
		if services.Classify(err) == services.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &found, nil
}

// Ping verifies the platform is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/ping", nil, nil, "ping")
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, operation string) error {
	if !c.Configured() {
		return services.Wrap(services.ErrConfiguration, "sync", operation, "platform.url is not configured", nil)
	}

	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", operation, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "sync", operation, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusConflict:
		return conflictError(operation, resp.Body)
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "sync", operation, "record not found", nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "sync", operation,
			fmt.Sprintf("platform rejected credentials with status %d", resp.StatusCode), nil)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return services.Wrap(services.ErrTransient, "sync", operation,
			fmt.Sprintf("platform returned status %d", resp.StatusCode), nil)
	default:
		return services.Wrap(services.ErrValidation, "sync", operation,
			fmt.Sprintf("platform rejected request with status %d: %s", resp.StatusCode, readBodySnippet(resp.Body)), nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return services.Wrap(services.ErrTransient, "sync", operation, "malformed response body", err)
		}
	}
	return nil
}

// conflictError extracts the competing slug from the platform's 409 payload
// so the conflict resolver can report what it collided with.
func conflictError(operation string, body io.Reader) error {
	var payload struct {
		Error        string `json:"error"`
		CompetingKey string `json:"competing_key"`
	}
	message := "slug already in use"
	if err := json.NewDecoder(body).Decode(&payload); err == nil && payload.CompetingKey != "" {
		message = fmt.Sprintf("slug %q already in use", payload.CompetingKey)
	}
	return services.Wrap(services.ErrConflict, "sync", operation, message, nil)
}

func readBodySnippet(r io.Reader) string {
	snippet, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(snippet))
}
