package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"loom/internal/config"
)

const userAgent = "Loom/0.1.0"

// Event enumerates the workflow milestones worth telling an operator about.
type Event string

const (
	EventWorkflowSubmitted Event = "workflow_submitted"
	EventWorkflowCompleted Event = "workflow_completed"
	EventWorkflowFailed    Event = "workflow_failed"
	EventStaleReclaimed    Event = "stale_reclaimed"
	EventError             Event = "error"
	EventTest              Event = "test"
)

// Payload carries the free-form fields each event template renders.
type Payload map[string]string

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		submitted: cfg.Notifications.Submitted,
		completed: cfg.Notifications.Completed,
		errors:    cfg.Notifications.Errors,
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	submitted bool
	completed bool
	errors    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, enabled := n.render(event, payload)
	if !enabled {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) render(event Event, payload Payload) (message, bool) {
	title := strings.TrimSpace(payload["title"])
	switch event {
	case EventWorkflowSubmitted:
		return message{
			title: "Loom - Submitted",
			body:  fmt.Sprintf("Queued for processing: %s", title),
			tags:  []string{"loom", "workflow", "submitted"},
		}, n.submitted
	case EventWorkflowCompleted:
		body := fmt.Sprintf("Catalog record published: %s", title)
		if key := strings.TrimSpace(payload["naturalKey"]); key != "" {
			body = fmt.Sprintf("%s\nKey: %s", body, key)
		}
		return message{
			title:    "Loom - Complete",
			body:     body,
			tags:     []string{"loom", "workflow", "completed"},
			priority: "high",
		}, n.completed
	case EventWorkflowFailed:
		return message{
			title:    "Loom - Failed",
			body:     fmt.Sprintf("Workflow failed: %s\n%s", title, strings.TrimSpace(payload["error"])),
			tags:     []string{"loom", "workflow", "failed"},
			priority: "high",
		}, n.errors
	case EventStaleReclaimed:
		return message{
			title: "Loom - Reclaimed",
			body:  fmt.Sprintf("Requeued %s stalled workflow(s) after heartbeat timeout", strings.TrimSpace(payload["count"])),
			tags:  []string{"loom", "workflow", "reclaimed"},
		}, n.errors
	case EventError:
		return message{
			title:    "Loom - Error",
			body:     fmt.Sprintf("Error with %s: %s", strings.TrimSpace(payload["context"]), strings.TrimSpace(payload["error"])),
			tags:     []string{"loom", "error", "alert"},
			priority: "high",
		}, n.errors
	case EventTest:
		return message{
			title: "Loom - Test",
			body:  "Notification delivery is working.",
			tags:  []string{"loom", "test"},
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected with status %d", resp.StatusCode)
	}
	return nil
}
