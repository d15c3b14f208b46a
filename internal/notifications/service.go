package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hydralite/internal/config"
)

const userAgent = "Hydralite/1.0.0"

// Event identifies a notification-worthy pipeline milestone.
type Event string

const (
	EventJobCompleted   Event = "job_completed"
	EventJobFailed      Event = "job_failed"
	EventFileQuarantine Event = "file_quarantined"
	EventFileAbandoned  Event = "file_abandoned"
	EventTest           Event = "test"
)

// Payload carries event-specific values keyed by name.
type Payload map[string]string

// Service publishes pipeline events.
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
		enabled: map[Event]bool{
			EventJobCompleted:   cfg.Notifications.JobCompleted,
			EventJobFailed:      cfg.Notifications.JobFailed,
			EventFileQuarantine: cfg.Notifications.Quarantine,
			EventFileAbandoned:  cfg.Notifications.Quarantine,
			EventTest:           true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }
	switch event {
	case EventJobCompleted:
		body := fmt.Sprintf("✅ Report ready: %s", get("audio_name"))
		if lang := get("language"); lang != "" {
			body += fmt.Sprintf(" (%s)", lang)
		}
		return message{
			title: "Hydralite - Report Ready",
			body:  body,
			tags:  []string{"hydralite", "report", "completed"},
		}, true
	case EventJobFailed:
		body := fmt.Sprintf("❌ Processing failed for %s", get("audio_name"))
		if reason := get("error"); reason != "" {
			body += ": " + reason
		}
		return message{
			title:    "Hydralite - Processing Failed",
			body:     body,
			tags:     []string{"hydralite", "error", "alert"},
			priority: "high",
		}, true
	case EventFileQuarantine:
		return message{
			title: "Hydralite - File Quarantined",
			body:  fmt.Sprintf("⏸ %s failed (attempt %s); retry scheduled", get("file"), get("attempts")),
			tags:  []string{"hydralite", "quarantine"},
		}, true
	case EventFileAbandoned:
		return message{
			title:    "Hydralite - File Abandoned",
			body:     fmt.Sprintf("🛑 %s failed %s times; manual retry required", get("file"), get("attempts")),
			tags:     []string{"hydralite", "quarantine", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Hydralite - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"hydralite", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
