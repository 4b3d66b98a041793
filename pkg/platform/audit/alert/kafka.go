package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"workspace-audit/internal/platform/kafka/producer"
)

// Producer is the subset of the Kafka producer used for alert delivery.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaNotifier publishes alerts as JSON records keyed by alert type so one
// type stays ordered within a partition.
type KafkaNotifier struct {
	producer Producer
	topic    string
}

// NewKafkaNotifier creates a notifier publishing to topic.
func NewKafkaNotifier(p Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: p, topic: topic}
}

// Name implements Notifier.
func (n *KafkaNotifier) Name() string { return "kafka" }

// Notify implements Notifier.
func (n *KafkaNotifier) Notify(ctx context.Context, a Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return n.producer.Produce(ctx, &producer.Message{
		Topic: n.topic,
		Key:   []byte(a.Type),
		Value: payload,
		Headers: map[string]string{
			"alert_type": string(a.Type),
			"severity":   string(a.Severity),
		},
	})
}
