package platform_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"loom/internal/services"
	"loom/internal/services/platform"
	"loom/internal/testsupport"
)

func newClient(t *testing.T, url string) *platform.Client {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Platform.URL = url
	cfg.Platform.APIKey = "secret"
	return platform.NewClient(cfg)
}

func TestCreateRecordReturnsID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/catalog/records" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var record platform.Record
		if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
			t.Fatalf("decode record: %v", err)
		}
		record.ID = "ext-42"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(record)
	}))
	defer server.Close()

	id, err := newClient(t, server.URL).CreateRecord(context.Background(), &platform.Record{
		SKU:  "sku-1",
		Slug: "walnut-desk",
	})
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	if id != "ext-42" {
		t.Fatalf("unexpected id %q", id)
	}
}

func TestCreateRecordConflictCarriesCompetingKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":         "conflict",
			"competing_key": "walnut-desk",
		})
	}))
	defer server.Close()

	_, err := newClient(t, server.URL).CreateRecord(context.Background(), &platform.Record{Slug: "walnut-desk"})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if !strings.Contains(err.Error(), "walnut-desk") {
		t.Fatalf("expected competing key in message, got %v", err)
	}
}

func TestUpdateRecordRequiresID(t *testing.T) {
	err := newClient(t, "http://127.0.0.1:0").UpdateRecord(context.Background(), &platform.Record{Slug: "x"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFindBySKUReturnsNilWhenMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	record, err := newClient(t, server.URL).FindBySKU(context.Background(), "sku-missing")
	if err != nil {
		t.Fatalf("FindBySKU failed: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record, got %#v", record)
	}
}

func TestServerErrorsAreTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := newClient(t, server.URL).Ping(context.Background())
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestAuthFailureIsConfigurationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	err := newClient(t, server.URL).Ping(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
