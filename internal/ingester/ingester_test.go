package ingester

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/navid-fn/tradestore/internal/models"
	"github.com/navid-fn/tradestore/internal/storage"
)

var today = time.Date(2026, 10, 17, 10, 30, 0, 0, time.UTC)

type fixture struct {
	trades   storage.TradeStorage
	requests storage.RequestStorage
	ig       *Ingester
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newFixture(t *testing.T, reader MessageReader) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Trade{}))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		trades:   storage.NewGormTradeStorage(db),
		requests: storage.NewRedisRequestStorage(client, 7*24*time.Hour),
	}
	f.ig = NewIngester(reader, f.trades, f.requests, quietLogger(), Config{
		Workers: 2,
		Now:     func() time.Time { return today },
	})
	return f
}

func submission(tradeID string, version int, maturity time.Time) models.TradeSubmission {
	return models.TradeSubmission{
		TradeID:        tradeID,
		Version:        version,
		CounterpartyID: "CP-1",
		BookID:         "B1",
		MaturityDate:   maturity,
		CreatedDate:    today,
	}
}

// submit stores the PENDING record the way admission does and returns the
// Kafka message carrying the submission.
func (f *fixture) submit(t *testing.T, requestID string, sub models.TradeSubmission) kafka.Message {
	t.Helper()
	require.NoError(t, f.requests.CreatePending(context.Background(), requestID, sub))
	data, err := json.Marshal(models.NewTradeMessage(requestID, sub))
	require.NoError(t, err)
	return kafka.Message{Key: []byte(sub.TradeID), Value: data}
}

func (f *fixture) status(t *testing.T, requestID string) *models.RequestRecord {
	t.Helper()
	rec, err := f.requests.Get(context.Background(), requestID)
	require.NoError(t, err)
	return rec
}

func future() time.Time { return time.Date(2030, 5, 20, 0, 0, 0, 0, time.UTC) }

func TestFirstVersionIsInserted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out := f.ig.HandleMessage(ctx, f.submit(t, "r1", submission("T1", 1, future())))

	assert.Equal(t, OutcomeSucceeded, out)
	assert.Equal(t, models.RequestSuccess, f.status(t, "r1").Status)
	got, err := f.trades.Get(ctx, "T1", 1)
	require.NoError(t, err)
	assert.Equal(t, "CP-1", got.CounterpartyID)
	all, err := f.trades.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "T1", all[0].TradeID)
	assert.Equal(t, 1, all[0].Version)
}

func TestEqualVersionOverwritesAndLowerIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.Equal(t, OutcomeSucceeded, f.ig.HandleMessage(ctx, f.submit(t, "r1", submission("T2", 2, future()))))

	overwrite := submission("T2", 2, future())
	overwrite.CounterpartyID = "CP-2"
	assert.Equal(t, OutcomeSucceeded, f.ig.HandleMessage(ctx, f.submit(t, "r2", overwrite)))
	got, err := f.trades.Get(ctx, "T2", 2)
	require.NoError(t, err)
	assert.Equal(t, "CP-2", got.CounterpartyID)

	out := f.ig.HandleMessage(ctx, f.submit(t, "r3", submission("T2", 1, future())))
	assert.Equal(t, OutcomeRejected, out)
	rec := f.status(t, "r3")
	assert.Equal(t, models.RequestFailed, rec.Status)
	assert.Contains(t, rec.FailureReason, "lower")

	_, err = f.trades.Get(ctx, "T2", 1)
	assert.ErrorIs(t, err, storage.ErrTradeNotFound)
}

func TestHigherVersionAddsRow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.ig.HandleMessage(ctx, f.submit(t, "r1", submission("T3", 1, future())))
	f.ig.HandleMessage(ctx, f.submit(t, "r2", submission("T3", 3, future())))

	versions, err := f.trades.ListVersions(ctx, "T3")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, 3, versions[1].Version)
}

func TestPastMaturityIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out := f.ig.HandleMessage(ctx, f.submit(t, "r1", submission("T4", 1, today.AddDate(0, 0, -1))))

	assert.Equal(t, OutcomeRejected, out)
	rec := f.status(t, "r1")
	assert.Equal(t, models.RequestFailed, rec.Status)
	assert.Contains(t, rec.FailureReason, "maturity date")
	_, err := f.trades.Get(ctx, "T4", 1)
	assert.ErrorIs(t, err, storage.ErrTradeNotFound)
}

func TestMaturityTodayIsAccepted(t *testing.T) {
	f := newFixture(t, nil)

	out := f.ig.HandleMessage(context.Background(), f.submit(t, "r1", submission("T5", 1, today)))

	assert.Equal(t, OutcomeSucceeded, out)
}

func TestReprocessingIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	msg := f.submit(t, "r1", submission("T6", 1, future()))

	require.Equal(t, OutcomeSucceeded, f.ig.HandleMessage(ctx, msg))
	first, err := f.trades.Get(ctx, "T6", 1)
	require.NoError(t, err)

	require.Equal(t, OutcomeSucceeded, f.ig.HandleMessage(ctx, msg))
	second, err := f.trades.Get(ctx, "T6", 1)
	require.NoError(t, err)

	assert.Equal(t, first.CounterpartyID, second.CounterpartyID)
	assert.Equal(t, first.BookID, second.BookID)
	assert.True(t, first.MaturityDate.Equal(second.MaturityDate))
	all, err := f.trades.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUndecodableMessageIsDropped(t *testing.T) {
	f := newFixture(t, nil)

	out := f.ig.HandleMessage(context.Background(), kafka.Message{Value: []byte("{not json")})

	assert.Equal(t, OutcomeMalformed, out)
}

func TestInvalidEnvelopeFailsRequest(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.requests.CreatePending(context.Background(), "r1", submission("T7", 1, future())))
	data, err := json.Marshal(models.TradeMessage{RequestID: "r1", TradeID: "T7", Version: 1, MaturityDate: "tomorrow", CreatedDate: "2026-10-17"})
	require.NoError(t, err)

	out := f.ig.HandleMessage(context.Background(), kafka.Message{Value: data})

	assert.Equal(t, OutcomeMalformed, out)
	assert.Equal(t, models.RequestFailed, f.status(t, "r1").Status)
}

type failingTrades struct{ err error }

func (s failingTrades) GetMaxVersion(context.Context, string) (*int, error) { return nil, nil }
func (s failingTrades) Upsert(context.Context, *models.Trade) error         { return s.err }

func TestPersistenceErrorLeavesRequestPending(t *testing.T) {
	f := newFixture(t, nil)
	f.ig.trades = failingTrades{err: errors.New("connection reset")}

	out := f.ig.HandleMessage(context.Background(), f.submit(t, "r1", submission("T8", 1, future())))

	assert.Equal(t, OutcomeFailed, out)
	assert.Equal(t, models.RequestPending, f.status(t, "r1").Status)
}

type unreachableTrades struct {
	err     error
	lookups int
}

func (s *unreachableTrades) GetMaxVersion(context.Context, string) (*int, error) {
	s.lookups++
	return nil, s.err
}
func (s *unreachableTrades) Upsert(context.Context, *models.Trade) error { return s.err }

func TestPastMaturityIsRejectedWhileStoreIsDown(t *testing.T) {
	f := newFixture(t, nil)
	store := &unreachableTrades{err: errors.New("connection refused")}
	f.ig.trades = store

	out := f.ig.HandleMessage(context.Background(), f.submit(t, "r1", submission("T10", 1, today.AddDate(0, 0, -1))))

	assert.Equal(t, OutcomeRejected, out)
	rec := f.status(t, "r1")
	assert.Equal(t, models.RequestFailed, rec.Status)
	assert.Contains(t, rec.FailureReason, "maturity date")
	assert.Zero(t, store.lookups)
}

func TestVersionLookupErrorLeavesRequestPending(t *testing.T) {
	f := newFixture(t, nil)
	store := &unreachableTrades{err: errors.New("connection refused")}
	f.ig.trades = store

	out := f.ig.HandleMessage(context.Background(), f.submit(t, "r1", submission("T11", 1, future())))

	assert.Equal(t, OutcomeFailed, out)
	assert.Equal(t, models.RequestPending, f.status(t, "r1").Status)
	assert.Equal(t, 1, store.lookups)
}

func TestMissingRequestRecordStillPersists(t *testing.T) {
	f := newFixture(t, nil)
	data, err := json.Marshal(models.NewTradeMessage("expired-request", submission("T9", 1, future())))
	require.NoError(t, err)

	out := f.ig.HandleMessage(context.Background(), kafka.Message{Value: data})

	assert.Equal(t, OutcomeSucceeded, out)
	_, err = f.trades.Get(context.Background(), "T9", 1)
	assert.NoError(t, err)
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		m := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func TestStartProcessesPartitionInOrderAndCommits(t *testing.T) {
	reader := &fakeReader{}
	f := newFixture(t, reader)

	// Same trade id on one partition: v1, v2 then a late v1 that must lose.
	msgs := []kafka.Message{
		f.submit(t, "r1", submission("T10", 1, future())),
		f.submit(t, "r2", submission("T10", 2, future())),
		f.submit(t, "r3", submission("T10", 1, future())),
		f.submit(t, "r4", submission("T11", 1, future())),
	}
	for i := range msgs {
		msgs[i].Offset = int64(i)
		msgs[i].Partition = 0
	}
	msgs[3].Partition = 1
	reader.pending = msgs

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.ig.Start(ctx) }()

	require.Eventually(t, func() bool { return reader.committedCount() == len(msgs) }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, models.RequestSuccess, f.status(t, "r1").Status)
	assert.Equal(t, models.RequestSuccess, f.status(t, "r2").Status)
	assert.Equal(t, models.RequestFailed, f.status(t, "r3").Status)
	assert.Equal(t, models.RequestSuccess, f.status(t, "r4").Status)

	var partition0 []int64
	for _, m := range reader.committed {
		if m.Partition == 0 {
			partition0 = append(partition0, m.Offset)
		}
	}
	assert.Equal(t, []int64{0, 1, 2}, partition0)
}

func TestStartReturnsOnCancel(t *testing.T) {
	f := newFixture(t, &fakeReader{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, f.ig.Start(ctx))
}
