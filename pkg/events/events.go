package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"portfoliohub/internal/util"
)

// Event types routed on the topic exchange.
const (
	UserRegistered            = "user.registered"
	UserVerificationRequested = "user.verification_requested"
	InquiryReceived           = "contact.inquiry_received"
	NewsletterSubscribed      = "newsletter.subscribed"
	NewsletterUnsubscribed    = "newsletter.unsubscribed"
	CommentCreated            = "comment.created"
	ProjectPublished          = "project.published"
	AssetUploaded             = "asset.uploaded"
)

// Event is the JSON envelope published for every domain event.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

// New stamps an event with an id and the current time.
func New(eventType string, data map[string]any) Event {
	return Event{
		ID:         util.NewID(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

func (e Event) body() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Emit publishes evt and only logs failures.
func Emit(ctx context.Context, p Publisher, evt Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, evt); err != nil {
		util.LoggerFromContext(ctx).Warn("event_publish_failed", "event", evt.Type, "event_id", evt.ID, "err", err)
	}
}

// LogPublisher writes events to the structured log instead of a broker.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, evt Event) error {
	p.logger.InfoContext(ctx, "event", "type", evt.Type, "event_id", evt.ID, "data", redact(evt.Data))
	return nil
}

func (p *LogPublisher) Close() error { return nil }

const redacted = "REDACTED"

// redact copies data with token values and token query parameters masked.
func redact(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case map[string]any:
			out[k] = redact(val)
		case string:
			if strings.Contains(strings.ToLower(k), "token") {
				out[k] = redacted
			} else {
				out[k] = redactURL(val)
			}
		default:
			out[k] = v
		}
	}
	return out
}

func redactURL(s string) string {
	if !strings.Contains(s, "token=") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return redacted
	}
	q := u.Query()
	for key := range q {
		if strings.Contains(strings.ToLower(key), "token") {
			q.Set(key, redacted)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
