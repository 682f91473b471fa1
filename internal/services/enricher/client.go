package enricher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"loom/internal/config"
	"loom/internal/services"
)

const (
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 60 * time.Second
	defaultBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
)

const systemPrompt = `You enrich product catalog copy. Given a product draft as JSON,
respond with JSON only: {"description": "...", "keywords": ["..."], "category": "..."}.
The description expands the draft into polished marketing copy. Keywords are
search terms a shopper would use. Category is a single merchandising category.`

// Enrichment is the structured output the model produces for a draft.
type Enrichment struct {
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Category    string   `json:"category"`
}

// Client wraps an OpenRouter-compatible chat completion API for catalog
// enrichment.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
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

// NewClient constructs an enrichment client from configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.Enricher.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Enricher.TimeoutSeconds) * time.Second
	}
	baseURL := strings.TrimSpace(cfg.Enricher.URL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.Enricher.APIKey),
		model:      strings.TrimSpace(cfg.Enricher.Model),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Configured reports whether an API key is available.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Enrich sends the draft payload to the model and parses its JSON answer.
func (c *Client) Enrich(ctx context.Context, draftJSON string) (*Enrichment, error) {
	if !c.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, "enrich", "call enrichment model", "enricher.api_key is not configured", nil)
	}
	draftJSON = strings.TrimSpace(draftJSON)
	if draftJSON == "" {
		return nil, services.Wrap(services.ErrValidation, "enrich", "call enrichment model", "draft payload is empty", nil)
	}

	payload := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: draftJSON},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "enrich", "call enrichment model", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, services.Wrap(services.ErrTransient, "enrich", "call enrichment model",
			fmt.Sprintf("model returned status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, services.Wrap(services.ErrValidation, "enrich", "call enrichment model",
			fmt.Sprintf("model rejected request with status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, services.Wrap(services.ErrTransient, "enrich", "decode model response", "malformed response body", err)
	}
	if len(completion.Choices) == 0 {
		return nil, services.Wrap(services.ErrTransient, "enrich", "decode model response", "no choices in response", nil)
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	enrichment, err := decodeEnrichment(content)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "enrich", "decode model response", "model did not return the expected JSON", err)
	}
	return enrichment, nil
}

// decodeEnrichment tolerates models that wrap JSON in markdown fences.
func decodeEnrichment(content string) (*Enrichment, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("empty model content")
	}
	var enrichment Enrichment
	if err := json.Unmarshal([]byte(content), &enrichment); err != nil {
		return nil, err
	}
	if strings.TrimSpace(enrichment.Description) == "" {
		return nil, errors.New("enrichment has no description")
	}
	return &enrichment, nil
}
