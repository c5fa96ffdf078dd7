package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"claimlens/internal/config"
)

const userAgent = "ClaimLens/0.1.0"

// Event identifies a notification-worthy occurrence.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventError        Event = "error"
	EventTest         Event = "test"
)

// Payload carries event-specific values used to build the message.
type Payload map[string]any

// Service defines the notification surface exposed to the scheduler and
// daemon. Publish never blocks job processing on notification delivery
// problems beyond the configured request timeout.
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
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		jobCompleted: cfg.Notifications.JobCompleted,
		jobFailed:    cfg.Notifications.JobFailed,
		errors:       cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	jobCompleted bool
	jobFailed    bool
	errors       bool
}

// Publish formats and sends the event. Events disabled in configuration are
// silently dropped.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	switch event {
	case EventJobCompleted:
		if !n.jobCompleted {
			return nil
		}
		body := fmt.Sprintf("✅ Fact check complete: %s", payloadString(payload, "source"))
		claims := payloadInt(payload, "claims")
		degraded := payloadInt(payload, "degraded")
		if claims > 0 {
			body = fmt.Sprintf("%s\n%d claims checked", body, claims)
			if degraded > 0 {
				body = fmt.Sprintf("%s, %d unverifiable", body, degraded)
			}
		}
		return n.send(ctx, message{
			title: "ClaimLens - Job Complete",
			body:  body,
			tags:  []string{"claimlens", "job", "completed"},
		})
	case EventJobFailed:
		if !n.jobFailed {
			return nil
		}
		body := fmt.Sprintf("❌ Fact check failed: %s", payloadString(payload, "source"))
		if reason := payloadString(payload, "error"); reason != "" {
			body = fmt.Sprintf("%s\n%s", body, reason)
		}
		return n.send(ctx, message{
			title:    "ClaimLens - Job Failed",
			body:     body,
			tags:     []string{"claimlens", "job", "failed"},
			priority: "high",
		})
	case EventError:
		if !n.errors {
			return nil
		}
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := payloadString(payload, "context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if reason := payloadString(payload, "error"); reason != "" {
			builder.WriteString(reason)
		} else {
			builder.WriteString("unknown")
		}
		return n.send(ctx, message{
			title:    "ClaimLens - Error",
			body:     builder.String(),
			tags:     []string{"claimlens", "error", "alert"},
			priority: "high",
		})
	case EventTest:
		return n.send(ctx, message{
			title:    "ClaimLens - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"claimlens", "test"},
			priority: "low",
		})
	default:
		return nil
	}
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch value := payload[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case error:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(value.Error())
	case fmt.Stringer:
		return strings.TrimSpace(value.String())
	default:
		return ""
	}
}

func payloadInt(payload Payload, key string) int {
	if payload == nil {
		return 0
	}
	switch value := payload[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

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
