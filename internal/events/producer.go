// Package events publishes auth lifecycle events to kafka. Publishing
// is best-effort: a broker fault is logged and never fails the request
// that triggered it.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/quantflow/backend/internal/logging"
)

const (
	UserRegistered   = "user.registered"
	UserLoggedIn     = "user.logged_in"
	UserLoggedOut    = "user.logged_out"
	UserDeactivated  = "user.deactivated"
	TokenRefreshed   = "user.token_refreshed"
)

type Event struct {
	Type      string         `json:"type"`
	UserID    string         `json:"user_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Producer is nil-safe: a nil producer drops everything, so callers
// never branch on whether kafka is configured.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 {
		return nil
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			WriteTimeout: 5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, eventType, userID string, payload map[string]any) {
	if p == nil {
		return
	}

	data, err := json.Marshal(Event{
		Type:      eventType,
		UserID:    userID,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		logging.FromContext(ctx).Error("event_marshal_failed", "type", eventType, "error", err)
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(userID),
		Value: data,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", eventType, "error", err)
	}
}

func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
