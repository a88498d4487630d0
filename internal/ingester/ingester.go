// Package ingester consumes trade submissions from Kafka, validates them
// against the stored versions and persists the accepted ones to Postgres.
// Each handled message ends with a terminal status on its request record.
package ingester

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tradestore/internal/metrics"
	"github.com/navid-fn/tradestore/internal/models"
	"github.com/navid-fn/tradestore/internal/validator"
)

// MessageReader is the consumer-group side of *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// TradeStore is the part of the record store the ingester uses.
type TradeStore interface {
	GetMaxVersion(ctx context.Context, tradeID string) (*int, error)
	Upsert(ctx context.Context, trade *models.Trade) error
}

// RequestStore moves request records to a terminal status.
type RequestStore interface {
	UpdateStatus(ctx context.Context, requestID string, status models.RequestStatus, reason string) error
}

// Outcome is how a single message ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
	OutcomeMalformed Outcome = "malformed"
)

// Config holds ingester configuration parameters.
type Config struct {
	// Workers is the number of goroutines handling messages. A partition is
	// always served by the same worker.
	Workers int

	// Now returns the processing time used by the maturity rule.
	Now func() time.Time
}

// Ingester consumes trade messages and commits each offset only after the
// message has been handled.
type Ingester struct {
	reader   MessageReader
	trades   TradeStore
	requests RequestStore
	chain    validator.Chain
	logger   *logrus.Logger
	cfg      Config
}

// NewIngester creates a new Ingester with the provided dependencies.
func NewIngester(reader MessageReader, trades TradeStore, requests RequestStore, logger *logrus.Logger, cfg Config) *Ingester {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ingester{
		reader:   reader,
		trades:   trades,
		requests: requests,
		chain:    validator.DefaultChain(),
		logger:   logger,
		cfg:      cfg,
	}
}

// Start runs the fetch loop until ctx is cancelled. Messages are dispatched
// to workers by partition so a trade id is never handled concurrently.
// A message that was already started finishes even after cancellation;
// fetched messages that were not started stay uncommitted and are redelivered.
func (ig *Ingester) Start(ctx context.Context) error {
	ig.logger.WithField("workers", ig.cfg.Workers).Info("starting ingester loop")

	queues := make([]chan kafka.Message, ig.cfg.Workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan kafka.Message, 1)
		wg.Add(1)
		go func(queue <-chan kafka.Message) {
			defer wg.Done()
			ig.worker(ctx, queue)
		}(queues[i])
	}

	defer func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
		ig.logger.Info("ingester loop stopped")
	}()

	for {
		m, err := ig.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			metrics.IngesterErrors.WithLabelValues(metrics.StageFetch).Inc()
			ig.logger.WithError(err).Error("kafka fetch error")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		select {
		case queues[m.Partition%len(queues)] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (ig *Ingester) worker(ctx context.Context, queue <-chan kafka.Message) {
	for m := range queue {
		if ctx.Err() != nil {
			continue
		}
		// Finish the message even if shutdown starts midway.
		mctx := context.WithoutCancel(ctx)
		ig.HandleMessage(mctx, m)
		if err := ig.reader.CommitMessages(mctx, m); err != nil {
			metrics.IngesterErrors.WithLabelValues(metrics.StageCommit).Inc()
			ig.logger.WithFields(logrus.Fields{
				"partition": m.Partition,
				"offset":    m.Offset,
				"error":     err,
			}).Warn("failed to commit offset")
		}
	}
}

// HandleMessage validates and persists one message and records the result on
// its request. It never returns an error: every failure is logged, counted
// and ends the message.
func (ig *Ingester) HandleMessage(ctx context.Context, m kafka.Message) Outcome {
	start := time.Now()
	defer func() {
		metrics.IngesterDuration.Observe(time.Since(start).Seconds())
	}()

	outcome := ig.handle(ctx, m)
	metrics.IngesterMessages.WithLabelValues(string(outcome)).Inc()
	return outcome
}

func (ig *Ingester) handle(ctx context.Context, m kafka.Message) Outcome {
	log := ig.logger.WithFields(logrus.Fields{
		"partition": m.Partition,
		"offset":    m.Offset,
	})

	var env models.TradeMessage
	if err := json.Unmarshal(m.Value, &env); err != nil {
		metrics.IngesterErrors.WithLabelValues(metrics.StageDecode).Inc()
		log.WithError(err).Warn("dropping undecodable trade message")
		return OutcomeMalformed
	}
	log = log.WithFields(logrus.Fields{
		"request_id": env.RequestID,
		"trade_id":   env.TradeID,
		"version":    env.Version,
	})

	sub, err := env.Submission()
	if err != nil {
		metrics.IngesterErrors.WithLabelValues(metrics.StageDecode).Inc()
		log.WithError(err).Warn("dropping invalid trade message")
		ig.markStatus(ctx, log, env.RequestID, models.RequestFailed, fmt.Sprintf("Malformed trade message: %v", err))
		return OutcomeMalformed
	}

	// The stored max version is only read once the maturity rule has passed.
	action, err := ig.chain.Validate(sub, validator.Context{
		Now: ig.cfg.Now(),
		LookupMaxVersion: func() (*int, error) {
			return ig.trades.GetMaxVersion(ctx, sub.TradeID)
		},
	})
	if err != nil {
		ve, ok := validator.AsValidationError(err)
		if !ok {
			metrics.IngesterErrors.WithLabelValues(metrics.StageLookup).Inc()
			log.WithError(err).Error("failed to look up stored version")
			return OutcomeFailed
		}
		log.WithField("kind", ve.Kind).Info(ve.Message)
		ig.markStatus(ctx, log, env.RequestID, models.RequestFailed, ve.Message)
		return OutcomeRejected
	}

	if err := ig.trades.Upsert(ctx, sub.ToTrade()); err != nil {
		metrics.IngesterErrors.WithLabelValues(metrics.StagePersist).Inc()
		log.WithError(fmt.Errorf("upsert trade: %w", err)).Error("failed to persist trade")
		return OutcomeFailed
	}
	log.WithField("action", action).Info("trade persisted")

	ig.markStatus(ctx, log, env.RequestID, models.RequestSuccess, "")
	return OutcomeSucceeded
}

// markStatus records a terminal status. Failures leave the request PENDING.
func (ig *Ingester) markStatus(ctx context.Context, log *logrus.Entry, requestID string, status models.RequestStatus, reason string) {
	if requestID == "" {
		return
	}
	if err := ig.requests.UpdateStatus(ctx, requestID, status, reason); err != nil {
		metrics.IngesterErrors.WithLabelValues(metrics.StageStatusUpdate).Inc()
		log.WithFields(logrus.Fields{
			"status": status,
			"error":  err,
		}).Error("failed to update request status")
	}
}
