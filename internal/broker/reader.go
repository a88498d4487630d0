package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tradestore/configs"
)

// NewReader builds the consumer-group reader for the trades topic. Offsets
// are committed explicitly by the caller once a message has been handled.
func NewReader(cfg configs.KafkaConfig, logger *logrus.Logger) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Errorf("kafka reader: "+msg, args...)
		}),
	})
}

// Pinger checks broker reachability for the health endpoint.
type Pinger struct {
	brokers []string
}

func NewPinger(brokers []string) *Pinger {
	return &Pinger{brokers: brokers}
}

// Ping succeeds as soon as one broker accepts a connection.
func (p *Pinger) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	var lastErr error
	for _, addr := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("kafka unreachable: %w", lastErr)
}
