package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"loom/internal/api"
)

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("command %v failed: %v\noutput: %s", args, err, out.String())
	}
	return out.String()
}

func TestSubmitCommandPostsToDaemon(t *testing.T) {
	var received api.SubmitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/workflows" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.SubmitResponse{
			Item: api.WorkflowItem{ID: "wf-1", EntityID: received.EntityID, Status: "pending"},
		})
	}))
	defer server.Close()

	output := runCommand(t, "submit", "SKU-100", "--title", "Walnut Desk", "--addr", server.URL)
	if received.EntityID != "SKU-100" || received.Title != "Walnut Desk" {
		t.Fatalf("daemon received %+v", received)
	}
	if !strings.Contains(output, "Queued workflow wf-1") {
		t.Fatalf("unexpected output: %s", output)
	}
}

func TestQueueListRendersItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != "pending" {
			t.Errorf("unexpected state filter: %q", r.URL.Query().Get("state"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.WorkflowListResponse{Items: []api.WorkflowItem{
			{ID: "wf-1", EntityID: "SKU-100", Title: "Walnut Desk", Status: "pending"},
		}})
	}))
	defer server.Close()

	output := runCommand(t, "queue", "list", "--state", "pending", "--addr", server.URL)
	if !strings.Contains(output, "SKU-100") || !strings.Contains(output, "pending") {
		t.Fatalf("unexpected output: %s", output)
	}
}

func TestStatusCommandEmitsJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.DaemonStatus{
			Running: true,
			PID:     42,
			Workflow: api.WorkflowStatus{
				Running:    true,
				QueueStats: map[string]int{"pending": 1},
			},
		})
	}))
	defer server.Close()

	output := runCommand(t, "status", "--json", "--addr", server.URL)
	var status api.DaemonStatus
	if err := json.Unmarshal([]byte(output), &status); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, output)
	}
	if !status.Running || status.PID != 42 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestRootWithoutArgsShowsHelp(t *testing.T) {
	output := runCommand(t)
	if !strings.Contains(output, "loom") || !strings.Contains(output, "Usage") {
		t.Fatalf("expected help output, got: %s", output)
	}
}
