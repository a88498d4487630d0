package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	ckafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tradestore/configs"
)

// EnsureTopic creates the trades topic with the configured partition count
// and replication factor. An existing topic is left untouched.
func EnsureTopic(ctx context.Context, cfg configs.KafkaConfig, logger *logrus.Logger) error {
	admin, err := ckafka.NewAdminClient(&ckafka.ConfigMap{
		"bootstrap.servers": strings.Join(cfg.Brokers, ","),
	})
	if err != nil {
		return fmt.Errorf("failed to create Kafka admin client: %w", err)
	}
	defer admin.Close()

	results, err := admin.CreateTopics(ctx,
		[]ckafka.TopicSpecification{topicSpec(cfg)},
		ckafka.SetAdminOperationTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("create topic %s: %w", cfg.Topic, err)
	}
	created, err := checkTopicResults(results)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"topic":      cfg.Topic,
		"partitions": cfg.Partitions,
		"created":    created,
	}).Info("kafka topic ready")
	return nil
}

func topicSpec(cfg configs.KafkaConfig) ckafka.TopicSpecification {
	return ckafka.TopicSpecification{
		Topic:             cfg.Topic,
		NumPartitions:     cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
}

// checkTopicResults reports whether any topic was newly created.
func checkTopicResults(results []ckafka.TopicResult) (bool, error) {
	created := false
	for _, r := range results {
		switch r.Error.Code() {
		case ckafka.ErrNoError:
			created = true
		case ckafka.ErrTopicAlreadyExists:
		default:
			return false, fmt.Errorf("create topic %s: %w", r.Topic, r.Error)
		}
	}
	return created, nil
}
