package publisher

import (
	"context"
	"encoding/json"
	"time"

	"Minerva_2.0/internal/database/kafka"
	"Minerva_2.0/pkg/logger"
)

// CompletionEvent is the message emitted to the event stream after every
// finished dispatch, successful or not.
type CompletionEvent struct {
	TaskID         string      `json:"task_id"`
	ConversationID string      `json:"conversation_id"`
	AgentID        string      `json:"agent_id"`
	Status         string      `json:"status"`
	Cached         bool        `json:"cached"`
	Result         interface{} `json:"result,omitempty"`
	Error          string      `json:"error,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// EventPublisher emits completion events; downstream consumers (analytics,
// audit) subscribe to the topic independently of the request path.
type EventPublisher interface {
	PublishCompletion(ctx context.Context, event CompletionEvent)
}

// KafkaEventPublisher publishes completion events through the shared Kafka
// client. Publishing is fire-and-forget from the request path's point of
// view: failures are logged, never surfaced.
type KafkaEventPublisher struct {
	client *kafka.KafkaClient
	log    *logger.Logger
}

func NewKafkaEventPublisher(client *kafka.KafkaClient, log *logger.Logger) *KafkaEventPublisher {
	return &KafkaEventPublisher{client: client, log: log}
}

func (p *KafkaEventPublisher) PublishCompletion(ctx context.Context, event CompletionEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		p.log.WithError(err).Error("failed to marshal completion event")
		return
	}
	// Key by conversation so one conversation's events stay ordered.
	if err := p.client.Publish(ctx, []byte(event.ConversationID), value); err != nil {
		p.log.WithError(err).Error("failed to publish completion event")
	}
}

// NoopEventPublisher is used when the event stream is disabled in config.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishCompletion(ctx context.Context, event CompletionEvent) {}
