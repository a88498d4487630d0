package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		maturity time.Time
		expected bool
	}{
		{"yesterday", time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), true},
		{"today", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), false},
		{"tomorrow", time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := &Trade{MaturityDate: tt.maturity}
			assert.Equal(t, tt.expected, trade.Expired(now))
		})
	}
}

func TestTradeMessageRoundTrip(t *testing.T) {
	sub := TradeSubmission{
		TradeID:        "T1",
		Version:        2,
		CounterpartyID: "CP-1",
		BookID:         "B1",
		MaturityDate:   time.Date(2027, 5, 20, 0, 0, 0, 0, time.UTC),
		CreatedDate:    time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	}

	msg := NewTradeMessage("req-1", sub)
	assert.Equal(t, "2027-05-20", msg.MaturityDate)
	assert.Equal(t, ActionInsert, msg.Action)

	back, err := msg.Submission()
	require.NoError(t, err)
	assert.Equal(t, sub, back)
}

func TestTradeMessageSubmissionErrors(t *testing.T) {
	valid := TradeMessage{TradeID: "T1", Version: 1, MaturityDate: "2027-01-01", CreatedDate: "2026-01-01"}

	noID := valid
	noID.TradeID = ""
	_, err := noID.Submission()
	assert.Error(t, err)

	zeroVersion := valid
	zeroVersion.Version = 0
	_, err = zeroVersion.Submission()
	assert.Error(t, err)

	badDate := valid
	badDate.MaturityDate = "20/05/2027"
	_, err = badDate.Submission()
	assert.Error(t, err)
}

func TestRequestStatusTerminal(t *testing.T) {
	assert.False(t, RequestPending.Terminal())
	assert.True(t, RequestSuccess.Terminal())
	assert.True(t, RequestFailed.Terminal())
}
