package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"loom/internal/notifications"
	"loom/internal/testsupport"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(cfg)
	err := svc.Publish(context.Background(), notifications.EventWorkflowCompleted, notifications.Payload{"title": "Example"})
	if err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "submitted",
			event:         notifications.EventWorkflowSubmitted,
			payload:       notifications.Payload{"title": "Walnut Desk"},
			expectTitle:   "Loom - Submitted",
			expectMessage: "Queued for processing: Walnut Desk",
			expectTags:    "loom,workflow,submitted",
		},
		{
			name:  "completed",
			event: notifications.EventWorkflowCompleted,
			payload: notifications.Payload{
				"title":      "Walnut Desk",
				"naturalKey": "walnut-desk",
			},
			expectTitle:    "Loom - Complete",
			expectMessage:  "Catalog record published: Walnut Desk\nKey: walnut-desk",
			expectTags:     "loom,workflow,completed",
			expectPriority: "high",
		},
		{
			name:  "error",
			event: notifications.EventError,
			payload: notifications.Payload{
				"context": "sync",
				"error":   "platform unavailable",
			},
			expectTitle:    "Loom - Error",
			expectMessage:  "Error with sync: platform unavailable",
			expectTags:     "loom,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := testsupport.NewConfig(t)
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.Submitted = true
			cfg.Notifications.Completed = true
			cfg.Notifications.Errors = true

			svc := notifications.NewService(cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected body %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestDisabledEventsAreSuppressed(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Submitted = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(cfg)
	if err := svc.Publish(context.Background(), notifications.EventWorkflowSubmitted, notifications.Payload{"title": "x"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := svc.Publish(context.Background(), notifications.EventError, notifications.Payload{"context": "sync", "error": "x"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if requests != 0 {
		t.Fatalf("expected suppressed events, saw %d requests", requests)
	}
}
