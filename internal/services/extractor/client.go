package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"loom/internal/config"
	"loom/internal/services"
)

const defaultHTTPTimeout = 60 * time.Second

// Document is the structured representation the extraction service returns
// for a source product sheet.
type Document struct {
	SKU         string            `json:"sku"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Brand       string            `json:"brand"`
	Attributes  map[string]string `json:"attributes"`
}

// Client talks to the document extraction service.
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

// NewClient constructs an extraction client from configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.Extractor.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Extractor.TimeoutSeconds) * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.Extractor.URL), "/"),
		apiKey:     strings.TrimSpace(cfg.Extractor.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Configured reports whether an extraction endpoint is set.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

type extractRequest struct {
	SourceRef string `json:"source_ref"`
	Payload   string `json:"payload,omitempty"`
}

// Extract submits the source document and returns its structured fields.
func (c *Client) Extract(ctx context.Context, sourceRef, payload string) (*Document, error) {
	if !c.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, "extract", "call extraction service", "extractor.url is not configured", nil)
	}

	body, err := json.Marshal(extractRequest{SourceRef: sourceRef, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "extract", "call extraction service", "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, services.Wrap(services.ErrNotFound, "extract", "call extraction service",
			fmt.Sprintf("source %s not found", sourceRef), nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, services.Wrap(services.ErrValidation, "extract", "call extraction service",
			fmt.Sprintf("service rejected request with status %d: %s", resp.StatusCode, readBodySnippet(resp.Body)), nil)
	default:
		return nil, services.Wrap(services.ErrTransient, "extract", "call extraction service",
			fmt.Sprintf("service returned status %d", resp.StatusCode), nil)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, services.Wrap(services.ErrTransient, "extract", "decode extraction response", "malformed response body", err)
	}
	if strings.TrimSpace(doc.SKU) == "" {
		return nil, services.Wrap(services.ErrValidation, "extract", "decode extraction response", "document has no sku", nil)
	}
	return &doc, nil
}

func readBodySnippet(r io.Reader) string {
	snippet, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(snippet))
}
