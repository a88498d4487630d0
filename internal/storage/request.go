package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/navid-fn/tradestore/internal/models"
	"github.com/redis/go-redis/v9"
)

const requestKeyPrefix = "trade-request:"

// RequestStorage is the lifecycle store for trade submissions. Records
// older than the retention window are indistinguishable from absent ones.
type RequestStorage interface {
	// CreatePending writes a new PENDING record with a snapshot of the trade.
	CreatePending(ctx context.Context, requestID string, trade models.TradeSubmission) error

	// UpdateStatus sets the status (and failure reason, when non-empty) of an
	// existing record. It never recreates an expired record and never replaces
	// a terminal status with a different one.
	UpdateStatus(ctx context.Context, requestID string, status models.RequestStatus, reason string) error

	// Get returns ErrRequestNotFound for unknown or expired request ids.
	Get(ctx context.Context, requestID string) (*models.RequestRecord, error)

	Ping(ctx context.Context) error
}

// updateStatusScript returns 0 when the key is gone, 2 when the current status
// is terminal and differs from the requested one, 1 on success. HSET keeps
// the key's TTL.
var updateStatusScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
local current = redis.call('HGET', KEYS[1], 'status')
if current ~= 'PENDING' and current ~= ARGV[1] then
	return 2
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'updated_at', ARGV[2])
if ARGV[3] ~= '' then
	redis.call('HSET', KEYS[1], 'failure_reason', ARGV[3])
end
return 1
`)

type redisRequestStorage struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisRequestStorage stores each request as a hash that expires ttl after
// creation.
func NewRedisRequestStorage(client redis.UniversalClient, ttl time.Duration) RequestStorage {
	return &redisRequestStorage{
		client: client,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func requestKey(requestID string) string {
	return requestKeyPrefix + requestID
}

func (s *redisRequestStorage) CreatePending(ctx context.Context, requestID string, trade models.TradeSubmission) error {
	key := requestKey(requestID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"request_id", requestID,
			"status", string(models.RequestPending),
			"trade_id", trade.TradeID,
			"version", trade.Version,
			"counterparty_id", trade.CounterpartyID,
			"book_id", trade.BookID,
			"maturity_date", models.FormatDate(trade.MaturityDate),
			"created_date", models.FormatDate(trade.CreatedDate),
			"created_at", s.now().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create pending request %s: %w", requestID, err)
	}
	return nil
}

func (s *redisRequestStorage) UpdateStatus(ctx context.Context, requestID string, status models.RequestStatus, reason string) error {
	res, err := updateStatusScript.Run(ctx, s.client,
		[]string{requestKey(requestID)},
		string(status), s.now().Format(time.RFC3339Nano), reason,
	).Int()
	if err != nil {
		return fmt.Errorf("update request %s: %w", requestID, err)
	}
	switch res {
	case 0:
		return ErrRequestNotFound
	case 2:
		return ErrInvalidTransition
	}
	return nil
}

func (s *redisRequestStorage) Get(ctx context.Context, requestID string) (*models.RequestRecord, error) {
	fields, err := s.client.HGetAll(ctx, requestKey(requestID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrRequestNotFound
	}
	return decodeRequest(fields)
}

func (s *redisRequestStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decodeRequest(fields map[string]string) (*models.RequestRecord, error) {
	version, err := strconv.Atoi(fields["version"])
	if err != nil {
		return nil, fmt.Errorf("corrupt request record: version %q", fields["version"])
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt request record: created_at %q", fields["created_at"])
	}

	rec := &models.RequestRecord{
		RequestID:      fields["request_id"],
		Status:         models.RequestStatus(fields["status"]),
		TradeID:        fields["trade_id"],
		Version:        version,
		FailureReason:  fields["failure_reason"],
		CreatedAt:      createdAt,
		CounterpartyID: fields["counterparty_id"],
		BookID:         fields["book_id"],
		MaturityDate:   fields["maturity_date"],
		CreatedDate:    fields["created_date"],
	}
	if raw, ok := fields["updated_at"]; ok {
		updatedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt request record: updated_at %q", raw)
		}
		rec.UpdatedAt = &updatedAt
	}
	return rec, nil
}
