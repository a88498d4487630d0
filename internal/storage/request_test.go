package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/navid-fn/tradestore/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequestStorage(t *testing.T, ttl time.Duration) (RequestStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRequestStorage(client, ttl), mr
}

func submission() models.TradeSubmission {
	return models.TradeSubmission{
		TradeID:        "T1",
		Version:        1,
		CounterpartyID: "CP-1",
		BookID:         "B1",
		MaturityDate:   date(2030, 5, 20),
		CreatedDate:    date(2026, 1, 15),
	}
}

func TestCreatePendingAndGet(t *testing.T) {
	store, mr := newTestRequestStorage(t, 7*24*time.Hour)
	ctx := context.Background()

	require.NoError(t, store.CreatePending(ctx, "req-1", submission()))

	rec, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", rec.RequestID)
	assert.Equal(t, models.RequestPending, rec.Status)
	assert.Equal(t, "T1", rec.TradeID)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, "2030-05-20", rec.MaturityDate)
	assert.Empty(t, rec.FailureReason)
	assert.Nil(t, rec.UpdatedAt)
	assert.False(t, rec.CreatedAt.IsZero())

	assert.Equal(t, 7*24*time.Hour, mr.TTL(requestKey("req-1")))
}

func TestUpdateStatusSuccess(t *testing.T) {
	store, mr := newTestRequestStorage(t, time.Hour)
	ctx := context.Background()
	require.NoError(t, store.CreatePending(ctx, "req-1", submission()))

	mr.FastForward(10 * time.Minute)
	require.NoError(t, store.UpdateStatus(ctx, "req-1", models.RequestSuccess, ""))

	rec, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestSuccess, rec.Status)
	assert.NotNil(t, rec.UpdatedAt)
	assert.Empty(t, rec.FailureReason)

	// The retention window still counts from creation.
	assert.Equal(t, 50*time.Minute, mr.TTL(requestKey("req-1")))
}

func TestUpdateStatusFailedWithReason(t *testing.T) {
	store, _ := newTestRequestStorage(t, time.Hour)
	ctx := context.Background()
	require.NoError(t, store.CreatePending(ctx, "req-1", submission()))

	require.NoError(t, store.UpdateStatus(ctx, "req-1", models.RequestFailed, "version too low"))

	rec, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestFailed, rec.Status)
	assert.Equal(t, "version too low", rec.FailureReason)
}

func TestUpdateStatusTerminalIsNotReplaced(t *testing.T) {
	store, _ := newTestRequestStorage(t, time.Hour)
	ctx := context.Background()
	require.NoError(t, store.CreatePending(ctx, "req-1", submission()))
	require.NoError(t, store.UpdateStatus(ctx, "req-1", models.RequestSuccess, ""))

	// Same terminal status again (redelivery) is accepted.
	require.NoError(t, store.UpdateStatus(ctx, "req-1", models.RequestSuccess, ""))

	err := store.UpdateStatus(ctx, "req-1", models.RequestFailed, "expired")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	rec, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestSuccess, rec.Status)
	assert.Empty(t, rec.FailureReason)
}

func TestUpdateStatusUnknownRequest(t *testing.T) {
	store, _ := newTestRequestStorage(t, time.Hour)

	err := store.UpdateStatus(context.Background(), "nope", models.RequestSuccess, "")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestExpiredRecordIsNotFound(t *testing.T) {
	store, mr := newTestRequestStorage(t, time.Hour)
	ctx := context.Background()
	require.NoError(t, store.CreatePending(ctx, "req-1", submission()))

	mr.FastForward(time.Hour + time.Second)

	_, err := store.Get(ctx, "req-1")
	assert.ErrorIs(t, err, ErrRequestNotFound)

	err = store.UpdateStatus(ctx, "req-1", models.RequestSuccess, "")
	assert.ErrorIs(t, err, ErrRequestNotFound)
	assert.False(t, mr.Exists(requestKey("req-1")))
}

func TestGetUnknownRequest(t *testing.T) {
	store, _ := newTestRequestStorage(t, time.Hour)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestRedisUnavailable(t *testing.T) {
	store, mr := newTestRequestStorage(t, time.Hour)
	mr.Close()

	err := store.CreatePending(context.Background(), "req-1", submission())
	assert.Error(t, err)
	assert.Error(t, store.Ping(context.Background()))
}
