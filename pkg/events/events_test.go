package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	failNext  error
	closed    int
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed++
	return nil
}

func newFakePublisher(dials *int, ch *fakeChannel) *AMQPPublisher {
	return &AMQPPublisher{
		url:      "amqp://test",
		exchange: DefaultExchange,
		timeout:  time.Second,
		dial: func() (amqpChannel, error) {
			*dials++
			return ch, nil
		},
	}
}

func TestAMQPPublisherPublishesPersistentJSON(t *testing.T) {
	dials := 0
	ch := &fakeChannel{}
	p := newFakePublisher(&dials, ch)

	evt := New(CommentCreated, map[string]any{"commentId": "c1"})
	if err := p.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(ch.published) != 1 || ch.keys[0] != CommentCreated {
		t.Fatalf("unexpected publish: keys=%v", ch.keys)
	}
	msg := ch.published[0]
	if msg.DeliveryMode != amqp.Persistent || msg.ContentType != "application/json" || msg.MessageId != evt.ID {
		t.Fatalf("unexpected message properties: %+v", msg)
	}
	var decoded Event
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.Type != CommentCreated || decoded.Data["commentId"] != "c1" {
		t.Fatalf("unexpected body: %+v", decoded)
	}
}

func TestAMQPPublisherRedialsAfterFailure(t *testing.T) {
	dials := 0
	ch := &fakeChannel{failNext: errors.New("channel closed")}
	p := newFakePublisher(&dials, ch)

	if err := p.Publish(context.Background(), New(AssetUploaded, nil)); err == nil {
		t.Fatalf("expected publish error")
	}
	if err := p.Publish(context.Background(), New(AssetUploaded, nil)); err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if dials != 2 || ch.closed != 1 {
		t.Fatalf("expected a redial after failure, dials=%d closed=%d", dials, ch.closed)
	}
}

func TestNewAMQPPublisherRequiresURL(t *testing.T) {
	if _, err := NewAMQPPublisher(" ", ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestEmitLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	prev := slog.Default()
	slog.SetDefault(logger)
	t.Cleanup(func() { slog.SetDefault(prev) })

	dials := 0
	p := newFakePublisher(&dials, &fakeChannel{failNext: errors.New("down")})
	Emit(context.Background(), p, New(UserRegistered, nil))
	if !strings.Contains(buf.String(), "event_publish_failed") {
		t.Fatalf("expected failure to be logged, got %q", buf.String())
	}
	Emit(context.Background(), nil, New(UserRegistered, nil))
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))
	if err := p.Publish(context.Background(), New(NewsletterSubscribed, map[string]any{"email": "a@b.c"})); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !strings.Contains(buf.String(), NewsletterSubscribed) {
		t.Fatalf("expected event in log, got %q", buf.String())
	}
}

func TestLogPublisherMasksTokens(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))
	evt := New(UserVerificationRequested, map[string]any{
		"userId":    "u-1",
		"email":     "ada@example.com",
		"token":     "s3cr3t-verify",
		"verifyUrl": "https://studio.example/verify-email?token=s3cr3t-verify",
		"nested":    map[string]any{"unsubscribeToken": "s3cr3t-unsub"},
	})
	if err := p.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "s3cr3t") {
		t.Fatalf("token leaked into log: %s", out)
	}
	for _, want := range []string{"ada@example.com", "https://studio.example/verify-email?token=REDACTED"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log, got %s", want, out)
		}
	}
	if evt.Data["token"] != "s3cr3t-verify" {
		t.Fatalf("published event must not be modified")
	}
}
