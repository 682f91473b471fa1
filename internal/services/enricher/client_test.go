package enricher_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"loom/internal/services"
	"loom/internal/services/enricher"
	"loom/internal/testsupport"
)

func newClient(t *testing.T, url string) *enricher.Client {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Enricher.URL = url
	cfg.Enricher.APIKey = "secret"
	return enricher.NewClient(cfg)
}

func completionBody(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
}

func TestEnrichParsesModelJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["model"] != "google/gemini-3-flash-preview" {
			t.Fatalf("unexpected model %v", req["model"])
		}
		_ = json.NewEncoder(w).Encode(completionBody(
			`{"description": "A beautiful walnut desk.", "keywords": ["desk", "walnut"], "category": "Office"}`,
		))
	}))
	defer server.Close()

	enrichment, err := newClient(t, server.URL).Enrich(context.Background(), `{"title":"Walnut Desk"}`)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if enrichment.Category != "Office" || len(enrichment.Keywords) != 2 {
		t.Fatalf("unexpected enrichment: %#v", enrichment)
	}
}

func TestEnrichToleratesMarkdownFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(completionBody(
			"```json\n{\"description\": \"Copy.\", \"keywords\": [], \"category\": \"Misc\"}\n```",
		))
	}))
	defer server.Close()

	enrichment, err := newClient(t, server.URL).Enrich(context.Background(), `{"title":"x"}`)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if enrichment.Description != "Copy." {
		t.Fatalf("unexpected enrichment: %#v", enrichment)
	}
}

func TestEnrichRateLimitIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newClient(t, server.URL).Enrich(context.Background(), `{"title":"x"}`)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestEnrichGarbageContentIsValidation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(completionBody("sorry, I cannot help with that"))
	}))
	defer server.Close()

	_, err := newClient(t, server.URL).Enrich(context.Background(), `{"title":"x"}`)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEnrichWithoutKeyIsConfigurationError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Enricher.APIKey = ""
	client := enricher.NewClient(cfg)

	_, err := client.Enrich(context.Background(), `{"title":"x"}`)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
