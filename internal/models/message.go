package models

import (
	"fmt"
	"time"
)

// TradeAction classifies how an accepted submission affects the record store.
// It is advisory: persistence always matches on (trade_id, version).
type TradeAction string

const (
	ActionInsert TradeAction = "insert"
	ActionUpsert TradeAction = "upsert"
)

// TradeSubmission is a structurally valid trade as received from a caller.
type TradeSubmission struct {
	TradeID        string
	Version        int
	CounterpartyID string
	BookID         string
	MaturityDate   time.Time
	CreatedDate    time.Time
}

// ToTrade builds the record-store row for the submission.
func (s TradeSubmission) ToTrade() *Trade {
	return &Trade{
		TradeID:        s.TradeID,
		Version:        s.Version,
		CounterpartyID: s.CounterpartyID,
		BookID:         s.BookID,
		MaturityDate:   DateOf(s.MaturityDate),
		CreatedDate:    DateOf(s.CreatedDate),
	}
}

// TradeMessage is the JSON envelope published to the trades topic.
// It is keyed by TradeID so every version of a trade lands on one partition.
type TradeMessage struct {
	RequestID      string      `json:"request_id"`
	TradeID        string      `json:"trade_id"`
	Version        int         `json:"version"`
	CounterpartyID string      `json:"counterparty_id"`
	BookID         string      `json:"book_id"`
	MaturityDate   string      `json:"maturity_date"`
	CreatedDate    string      `json:"created_date"`
	Action         TradeAction `json:"action"`
}

// NewTradeMessage wraps a submission for publishing. The action is a
// placeholder; the consumer derives the real one.
func NewTradeMessage(requestID string, s TradeSubmission) TradeMessage {
	return TradeMessage{
		RequestID:      requestID,
		TradeID:        s.TradeID,
		Version:        s.Version,
		CounterpartyID: s.CounterpartyID,
		BookID:         s.BookID,
		MaturityDate:   FormatDate(s.MaturityDate),
		CreatedDate:    FormatDate(s.CreatedDate),
		Action:         ActionInsert,
	}
}

// Submission parses the envelope back into a TradeSubmission.
func (m TradeMessage) Submission() (TradeSubmission, error) {
	if m.TradeID == "" {
		return TradeSubmission{}, fmt.Errorf("missing trade_id")
	}
	if m.Version < 1 {
		return TradeSubmission{}, fmt.Errorf("invalid version %d", m.Version)
	}
	maturity, err := ParseDate(m.MaturityDate)
	if err != nil {
		return TradeSubmission{}, fmt.Errorf("invalid maturity_date %q: %w", m.MaturityDate, err)
	}
	created, err := ParseDate(m.CreatedDate)
	if err != nil {
		return TradeSubmission{}, fmt.Errorf("invalid created_date %q: %w", m.CreatedDate, err)
	}
	return TradeSubmission{
		TradeID:        m.TradeID,
		Version:        m.Version,
		CounterpartyID: m.CounterpartyID,
		BookID:         m.BookID,
		MaturityDate:   maturity,
		CreatedDate:    created,
	}, nil
}
