package broadcast

import (
	"context"
	"encoding/json"

	"wordroom/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaMirror writes every public event to a Kafka topic keyed by room id, so
// one room's events stay in one partition and in order.
type KafkaMirror struct {
	writer *kafka.Writer
}

func NewKafkaMirror(brokers []string, topic string, logger *zap.Logger) *KafkaMirror {
	return &KafkaMirror{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("kafka mirror write failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}}
}

func (m *KafkaMirror) Mirror(ctx context.Context, roomID string, events []models.Event) error {
	msgs, err := kafkaMessages(roomID, events)
	if err != nil {
		return err
	}
	return m.writer.WriteMessages(ctx, msgs...)
}

func kafkaMessages(roomID string, events []models.Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(roomID),
			Value: value,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(e.Type)},
			},
		})
	}
	return msgs, nil
}

func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}
