package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"launchlock/internal/config"
)

const userAgent = "LaunchLock/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventHumanRequired Event = "human_required"
	EventFailedFatal   Event = "failed_fatal"
	EventTest          Event = "test"
)

// Payload carries event fields. Recognized keys: command_id, command_type,
// error_code, error_message, attempts.
type Payload map[string]any

// Service publishes operator notifications.
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
			EventHumanRequired: cfg.Notifications.HumanRequired,
			EventFailedFatal:   cfg.Notifications.FailedFatal,
			EventTest:          true,
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
	subject := commandSubject(payload)
	switch event {
	case EventHumanRequired:
		return message{
			title:    "LaunchLock - Needs Attention",
			body:     fmt.Sprintf("%s needs an operator%s", subject, reason(payload)),
			tags:     []string{"launchlock", "human_required", "warning"},
			priority: "high",
		}, true
	case EventFailedFatal:
		return message{
			title:    "LaunchLock - Command Failed",
			body:     fmt.Sprintf("%s failed permanently%s", subject, reason(payload)),
			tags:     []string{"launchlock", "failed_fatal", "alert"},
			priority: "urgent",
		}, true
	case EventTest:
		return message{
			title:    "LaunchLock - Test",
			body:     "Notification system test",
			tags:     []string{"launchlock", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func commandSubject(payload Payload) string {
	commandType := strings.TrimSpace(stringValue(payload["command_type"]))
	commandID := strings.TrimSpace(stringValue(payload["command_id"]))
	switch {
	case commandType != "" && commandID != "":
		return fmt.Sprintf("%s command %s", commandType, commandID)
	case commandID != "":
		return "command " + commandID
	default:
		return "a command"
	}
}

func reason(payload Payload) string {
	code := strings.TrimSpace(stringValue(payload["error_code"]))
	msg := strings.TrimSpace(stringValue(payload["error_message"]))
	switch {
	case code != "" && msg != "":
		return fmt.Sprintf(": %s (%s)", msg, code)
	case msg != "":
		return ": " + msg
	case code != "":
		return ": " + code
	default:
		return ""
	}
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
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
