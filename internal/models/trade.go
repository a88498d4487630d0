// Package models defines the domain models used across the application.
package models

import "time"

// DateLayout is the wire format of calendar dates (maturity_date, created_date).
const DateLayout = "2006-01-02"

// Trade represents a single versioned trade record in PostgreSQL.
// The pair (TradeID, Version) is the primary key.
type Trade struct {
	// TradeID is the client-assigned trade identity, at most 20 characters.
	TradeID string `gorm:"column:trade_id;primaryKey;size:20;index:idx_trades_trade_id" json:"trade_id"`

	// Version starts at 1 and only grows for a given TradeID.
	Version int `gorm:"column:version;primaryKey;autoIncrement:false" json:"version"`

	CounterpartyID string `gorm:"column:counterparty_id;size:50;not null" json:"counterparty_id"`
	BookID         string `gorm:"column:book_id;size:50;not null" json:"book_id"`

	// MaturityDate and CreatedDate are calendar dates stored at UTC midnight.
	MaturityDate time.Time `gorm:"column:maturity_date;type:date;not null;index:idx_trades_maturity_date" json:"maturity_date"`
	CreatedDate  time.Time `gorm:"column:created_date;type:date;not null" json:"created_date"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Trade) TableName() string {
	return "trades"
}

// Expired reports whether the maturity date lies strictly before the calendar
// day of now. It is derived on every read and never stored.
func (t *Trade) Expired(now time.Time) bool {
	return DateOf(t.MaturityDate).Before(DateOf(now))
}

// DateOf truncates t to midnight UTC of its UTC calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return DateOf(t).Format(DateLayout)
}
