package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"loom/internal/api"
	"loom/internal/daemon"
	"loom/internal/logging"
	"loom/internal/testsupport"
)

func startDaemon(t *testing.T) (*daemon.Daemon, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 3600

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	return d, "http://" + d.APIAddr()
}

func TestHealthzReportsOK(t *testing.T) {
	_, base := startDaemon(t)

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestSubmitAndFetchWorkflow(t *testing.T) {
	_, base := startDaemon(t)

	body, _ := json.Marshal(api.SubmitRequest{EntityID: "SKU-100", Title: "Walnut Desk"})
	resp, err := http.Post(base+"/api/workflows", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("submit request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected submit status: %d", resp.StatusCode)
	}
	var submitted api.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if submitted.Existing || submitted.Item.EntityID != "SKU-100" {
		t.Fatalf("unexpected submit response: %+v", submitted)
	}

	item, err := http.Get(fmt.Sprintf("%s/api/workflows/%s", base, submitted.Item.ID))
	if err != nil {
		t.Fatalf("fetch request failed: %v", err)
	}
	defer item.Body.Close()
	if item.StatusCode != http.StatusOK {
		t.Fatalf("unexpected fetch status: %d", item.StatusCode)
	}
	var fetched api.WorkflowItemResponse
	if err := json.NewDecoder(item.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode fetch response: %v", err)
	}
	if fetched.Item.ID != submitted.Item.ID {
		t.Fatalf("unexpected item: %+v", fetched.Item)
	}

	list, err := http.Get(base + "/api/workflows?state=pending")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	defer list.Body.Close()
	var listed api.WorkflowListResponse
	if err := json.NewDecoder(list.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listed.Items) != 1 || listed.Items[0].ID != submitted.Item.ID {
		t.Fatalf("unexpected list: %+v", listed.Items)
	}
}

func TestStatusRequiresBearerToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 3600
	cfg.Paths.APIToken = "sekrit"

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	base := "http://" + d.APIAddr()

	resp, err := http.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, base+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized request failed: %v", err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", authed.StatusCode)
	}
	var status api.DaemonStatus
	if err := json.NewDecoder(authed.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || !status.Workflow.Running {
		t.Fatalf("unexpected status payload: %+v", status)
	}

	// Health endpoint stays open for probes.
	probe, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	probe.Body.Close()
	if probe.StatusCode != http.StatusOK {
		t.Fatalf("expected open healthz, got %d", probe.StatusCode)
	}
}
