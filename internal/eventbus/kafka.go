package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig describes the optional Kafka fan-out of broadcast events.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Keyed lets a record choose its Kafka partition key. Records without it are
// distributed by the balancer.
type Keyed interface {
	BroadcastKey() string
}

// KafkaForwarder is a bus subscriber that mirrors broadcast events onto a
// Kafka topic as JSON.
type KafkaForwarder struct {
	writer  *kafka.Writer
	timeout time.Duration
	logger  zerolog.Logger
}

// NewKafkaForwarder builds a forwarder from config.
func NewKafkaForwarder(cfg KafkaConfig, logger zerolog.Logger) *KafkaForwarder {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: time.Second,
		WriteTimeout: timeout,
	}
	return &KafkaForwarder{
		writer:  writer,
		timeout: timeout,
		logger:  logger.With().Str("component", "kafka_forwarder").Logger(),
	}
}

// Handle implements the bus Handler contract. Errors are logged and dropped;
// the forwarder is best-effort like every other subscriber.
func (f *KafkaForwarder) Handle(evt Event) {
	value, err := json.Marshal(evt.Record)
	if err != nil {
		f.logger.Error().Err(err).
			Str("record_type", typeName(evt.Record)).
			Msg("marshal broadcast event")
		return
	}

	var key []byte
	if keyed, ok := evt.Record.(Keyed); ok {
		key = []byte(keyed.BroadcastKey())
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	if err := f.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
		Time:  evt.At,
	}); err != nil {
		f.logger.Error().Err(err).
			Str("record_type", typeName(evt.Record)).
			Msg("forward broadcast event to kafka")
	}
}

// Close releases the underlying writer.
func (f *KafkaForwarder) Close() error {
	if f.writer != nil {
		return f.writer.Close()
	}
	return nil
}
