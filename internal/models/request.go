package models

import "time"

// RequestStatus is the lifecycle state of one trade submission.
type RequestStatus string

const (
	RequestPending RequestStatus = "PENDING"
	RequestSuccess RequestStatus = "SUCCESS"
	RequestFailed  RequestStatus = "FAILED"
)

// Terminal reports whether no further transition is expected.
func (s RequestStatus) Terminal() bool {
	return s == RequestSuccess || s == RequestFailed
}

// RequestRecord tracks the outcome of one submission in Redis.
// Records expire after the configured retention window.
type RequestRecord struct {
	RequestID     string        `json:"request_id"`
	Status        RequestStatus `json:"status"`
	TradeID       string        `json:"trade_id"`
	Version       int           `json:"version"`
	FailureReason string        `json:"failure_reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     *time.Time    `json:"updated_at,omitempty"`

	// Snapshot of the submitted trade, kept for operators; not part of the
	// status response.
	CounterpartyID string `json:"-"`
	BookID         string `json:"-"`
	MaturityDate   string `json:"-"`
	CreatedDate    string `json:"-"`
}
