package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the subset of *kafka.Writer the emitter needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaEmitter struct {
	writer messageWriter
	topics map[string]string
	logger *zap.Logger
}

// NewKafkaWriter builds an async writer. Topics are chosen per message, so
// the writer itself has none.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaEmitter(writer messageWriter, notificationTopic, activityTopic string, logger *zap.Logger) *KafkaEmitter {
	if logger == nil {
		logger = zap.L()
	}
	return &KafkaEmitter{
		writer: writer,
		topics: map[string]string{
			ChannelNotification: notificationTopic,
			ChannelActivity:     activityTopic,
		},
		logger: logger.Named("events.kafka"),
	}
}

func (e *KafkaEmitter) Emit(ctx context.Context, channel string, event Event) error {
	topic, ok := e.topics[channel]
	if !ok || topic == "" {
		return fmt.Errorf("unknown event channel %q", channel)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = e.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(event.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "org_id", Value: []byte(event.OrgID)},
		},
	})
	if err != nil {
		e.logger.Warn("publish event failed",
			zap.String("topic", topic),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
		return err
	}
	return nil
}
