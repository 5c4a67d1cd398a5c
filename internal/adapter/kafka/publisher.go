package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/civic-data-tour/internal/config"
	"github.com/couchcryptid/civic-data-tour/internal/domain"
	"github.com/couchcryptid/civic-data-tour/internal/highlight"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces activity events to a Kafka topic.
// It implements tour.EventSink and highlight.View.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates an asynchronous Kafka producer for the configured events topic.
// Delivery failures are logged; publishing never blocks the caller.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaEventsTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafkago.Message, err error) {
			if err != nil {
				logger.Warn("activity events not delivered", "count", len(msgs), "error", err)
			}
		},
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishActivity implements tour.EventSink.
func (p *Publisher) PublishActivity(ev domain.ActivityEvent) {
	msg, err := serializeToMessage(ev)
	if err != nil {
		p.logger.Error("drop activity event", "type", ev.Type, "action", ev.Action, "error", err)
		return
	}
	if err := p.writer.WriteMessages(context.Background(), msg); err != nil {
		p.logger.Warn("publish activity event", "type", ev.Type, "action", ev.Action, "error", err)
	}
}

// Render implements highlight.View by publishing every highlight change.
func (p *Publisher) Render(sel highlight.Selection) {
	ev := domain.NewActivityEvent(domain.ActivityHighlight, sel.Context.Kind)
	ev.Names = sel.Names
	ev.Originator = sel.Context.Originator
	ev.SceneID = sel.Context.SceneID
	ev.Message = sel.Message
	p.PublishActivity(ev)
}

// Close flushes pending messages and closes the producer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals an ActivityEvent into a Kafka message.
func serializeToMessage(ev domain.ActivityEvent) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize activity event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ev.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "occurred_at", Value: []byte(ev.OccurredAt.Format(time.RFC3339))},
		},
	}, nil
}
