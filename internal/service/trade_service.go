// Package service holds the admission gateway and the read side of the
// trade store used by the HTTP API.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tradestore/internal/metrics"
	"github.com/navid-fn/tradestore/internal/models"
)

// RequestStore is the lifecycle store as seen by the API.
type RequestStore interface {
	CreatePending(ctx context.Context, requestID string, trade models.TradeSubmission) error
	Get(ctx context.Context, requestID string) (*models.RequestRecord, error)
}

// Publisher sends an accepted submission to the trades topic.
type Publisher interface {
	PublishTrade(ctx context.Context, msg models.TradeMessage) error
}

// TradeReader is the read-only view of the record store.
type TradeReader interface {
	ListAll(ctx context.Context) ([]models.Trade, error)
	ListVersions(ctx context.Context, tradeID string) ([]models.Trade, error)
}

type IngestStatus string

const (
	StatusAccepted         IngestStatus = "accepted"
	StatusTemporaryFailure IngestStatus = "temporary_failure"
)

const (
	acceptedMessage    = "Trade queued for processing"
	unavailableMessage = "Service temporarily unavailable. Please retry later."
)

// IngestResult is the synchronous answer to a submission. A temporary failure
// is a result, not an error: the caller is expected to retry.
type IngestResult struct {
	Status            IngestStatus `json:"status"`
	RequestID         string       `json:"request_id,omitempty"`
	TradeID           string       `json:"trade_id,omitempty"`
	Version           int          `json:"version,omitempty"`
	Message           string       `json:"message"`
	RetryAfterSeconds int          `json:"retry_after_seconds,omitempty"`
}

// TradeView is a stored trade with its derived expiry flag.
type TradeView struct {
	TradeID        string    `json:"trade_id"`
	Version        int       `json:"version"`
	CounterpartyID string    `json:"counterparty_id"`
	BookID         string    `json:"book_id"`
	MaturityDate   string    `json:"maturity_date"`
	CreatedDate    string    `json:"created_date"`
	Expired        bool      `json:"expired"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Config struct {
	RetryAfterSeconds int
}

type TradeService struct {
	requests  RequestStore
	publisher Publisher
	trades    TradeReader
	logger    *logrus.Logger
	cfg       Config

	newID func() string
	now   func() time.Time
}

func NewTradeService(requests RequestStore, publisher Publisher, trades TradeReader, logger *logrus.Logger, cfg Config) *TradeService {
	if cfg.RetryAfterSeconds <= 0 {
		cfg.RetryAfterSeconds = 60
	}
	return &TradeService{
		requests:  requests,
		publisher: publisher,
		trades:    trades,
		logger:    logger,
		cfg:       cfg,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// IngestTrade records the submission as PENDING and publishes it. When the
// publish fails the PENDING record is left in place and expires on its own.
func (s *TradeService) IngestTrade(ctx context.Context, sub models.TradeSubmission) IngestResult {
	requestID := s.newID()
	log := s.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"trade_id":   sub.TradeID,
		"version":    sub.Version,
	})
	log.Info("trade submission received")

	if err := s.requests.CreatePending(ctx, requestID, sub); err != nil {
		metrics.AdmissionErrors.WithLabelValues(metrics.StagePending).Inc()
		log.WithError(err).Warn("failed to record pending request")
		return s.temporaryFailure()
	}

	if err := s.publisher.PublishTrade(ctx, models.NewTradeMessage(requestID, sub)); err != nil {
		metrics.AdmissionErrors.WithLabelValues(metrics.StagePublish).Inc()
		log.WithError(err).Warn("failed to publish trade")
		return s.temporaryFailure()
	}

	metrics.AdmissionResults.WithLabelValues(string(StatusAccepted)).Inc()
	log.Info("trade accepted")
	return IngestResult{
		Status:    StatusAccepted,
		RequestID: requestID,
		TradeID:   sub.TradeID,
		Version:   sub.Version,
		Message:   acceptedMessage,
	}
}

func (s *TradeService) temporaryFailure() IngestResult {
	metrics.AdmissionResults.WithLabelValues(string(StatusTemporaryFailure)).Inc()
	return IngestResult{
		Status:            StatusTemporaryFailure,
		Message:           unavailableMessage,
		RetryAfterSeconds: s.cfg.RetryAfterSeconds,
	}
}

// GetRequestStatus returns storage.ErrRequestNotFound for unknown and
// expired requests.
func (s *TradeService) GetRequestStatus(ctx context.Context, requestID string) (*models.RequestRecord, error) {
	return s.requests.Get(ctx, requestID)
}

func (s *TradeService) ListTrades(ctx context.Context) ([]TradeView, error) {
	trades, err := s.trades.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.views(trades), nil
}

func (s *TradeService) GetTradeVersions(ctx context.Context, tradeID string) ([]TradeView, error) {
	trades, err := s.trades.ListVersions(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	return s.views(trades), nil
}

func (s *TradeService) views(trades []models.Trade) []TradeView {
	now := s.now()
	out := make([]TradeView, 0, len(trades))
	for i := range trades {
		t := &trades[i]
		out = append(out, TradeView{
			TradeID:        t.TradeID,
			Version:        t.Version,
			CounterpartyID: t.CounterpartyID,
			BookID:         t.BookID,
			MaturityDate:   models.FormatDate(t.MaturityDate),
			CreatedDate:    models.FormatDate(t.CreatedDate),
			Expired:        t.Expired(now),
			CreatedAt:      t.CreatedAt,
			UpdatedAt:      t.UpdatedAt,
		})
	}
	return out
}
