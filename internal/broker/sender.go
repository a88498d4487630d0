// Package broker wraps the Kafka client used as the ordered channel between
// admission and consumption.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tradestore/configs"
	"github.com/navid-fn/tradestore/internal/faulttolerance"
	"github.com/navid-fn/tradestore/internal/models"
)

// MessageWriter is the part of *kafka.Writer the Sender needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter builds a synchronous writer for the trades topic. Messages are
// partitioned by key with the murmur2 hash so ordering per trade_id matches
// what a Java producer would produce.
func NewWriter(cfg configs.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Murmur2Balancer{},
		RequiredAcks:           kafka.RequireAll,
		BatchSize:              1,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           cfg.WriteTimeout,
		Compression:            kafka.Zstd,
		AllowAutoTopicCreation: false,
	}
}

// Sender publishes trade envelopes. It fails fast when the breaker is open
// and never retries on its own.
type Sender struct {
	writer  MessageWriter
	breaker *faulttolerance.CircuitBreaker
	timeout time.Duration
	logger  *logrus.Logger
}

// NewSender creates a new Kafka sender
func NewSender(writer MessageWriter, timeout time.Duration, logger *logrus.Logger) *Sender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sender{
		writer: writer,
		breaker: faulttolerance.NewCircuitBreaker(faulttolerance.CircuitBreakerConfig{
			MaxFailures: 5,
			Timeout:     10 * time.Second,
			Name:        "kafka-trades",
		}, logger),
		timeout: timeout,
		logger:  logger,
	}
}

// PublishTrade writes msg keyed by its trade id and waits for the broker
// acknowledgement. A write aborted by the caller's ctx does not count
// against the broker.
func (s *Sender) PublishTrade(ctx context.Context, msg models.TradeMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("serialize trade message: %w", err)
	}

	err = s.breaker.Execute(ctx, func() error {
		writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.writer.WriteMessages(writeCtx, kafka.Message{
			Key:   []byte(msg.TradeID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "request_id", Value: []byte(msg.RequestID)},
			},
		})
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"request_id": msg.RequestID,
			"trade_id":   msg.TradeID,
			"version":    msg.Version,
			"error":      err,
		}).Error("kafka write failed")
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}
