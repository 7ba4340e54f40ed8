package policy

import (
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"
)

// KafkaNotifier is an alternate notification transport publishing terminal-
// step notifications to a topic, for deployments that already run Kafka for
// their event bus rather than the spec's raw unix-domain stream. It
// implements the same Notifier interface as StreamNotifier so the worker
// runtime can use either interchangeably.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewKafkaNotifier creates a KafkaNotifier publishing to topic over brokers.
func NewKafkaNotifier(brokers []string, topic string, logger *slog.Logger) (*KafkaNotifier, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &KafkaNotifier{producer: producer, topic: topic, logger: logger}, nil
}

// Notify publishes {topic: txid, body: ...} keyed by txid so consumers can
// partition by transaction. Failures are logged, not propagated, matching
// the spec's best-effort notification contract.
func (k *KafkaNotifier) Notify(txid string, body any) {
	payload, err := json.Marshal(map[string]any{"topic": txid, "body": body})
	if err != nil {
		k.logger.Error("marshaling kafka notification", "error", err, "txid", txid)
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(txid),
		Value: sarama.ByteEncoder(payload),
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		k.logger.Error("kafka notification failed", "error", err, "txid", txid)
	}
}

// Close releases the underlying producer.
func (k *KafkaNotifier) Close() error { return k.producer.Close() }
