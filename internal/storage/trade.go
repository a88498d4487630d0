package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/navid-fn/tradestore/internal/models"
	"gorm.io/gorm"
)

// TradeStorage is the durable record store for versioned trades.
// Implementations must be safe for concurrent use.
type TradeStorage interface {
	// Upsert updates the non-key fields of the row matching (trade_id, version)
	// or inserts a new row when none exists.
	Upsert(ctx context.Context, trade *models.Trade) error

	// Get returns ErrTradeNotFound when the pair does not exist.
	Get(ctx context.Context, tradeID string, version int) (*models.Trade, error)

	// GetMaxVersion returns nil when the trade id has no rows.
	GetMaxVersion(ctx context.Context, tradeID string) (*int, error)

	// ListAll returns every row ordered by (trade_id, version).
	ListAll(ctx context.Context) ([]models.Trade, error)

	// ListVersions returns the rows of one trade ordered by version.
	ListVersions(ctx context.Context, tradeID string) ([]models.Trade, error)

	Ping(ctx context.Context) error
}

type gormTradeStorage struct {
	db *gorm.DB
}

func NewGormTradeStorage(db *gorm.DB) TradeStorage {
	return &gormTradeStorage{db: db}
}

func (s *gormTradeStorage) Upsert(ctx context.Context, trade *models.Trade) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Trade
		err := tx.Where("trade_id = ? AND version = ?", trade.TradeID, trade.Version).
			Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(trade).Error
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		err = tx.Model(&existing).Updates(map[string]any{
			"counterparty_id": trade.CounterpartyID,
			"book_id":         trade.BookID,
			"maturity_date":   trade.MaturityDate,
			"created_date":    trade.CreatedDate,
			"updated_at":      now,
		}).Error
		if err != nil {
			return err
		}
		trade.CreatedAt = existing.CreatedAt
		trade.UpdatedAt = now
		return nil
	})
}

func (s *gormTradeStorage) Get(ctx context.Context, tradeID string, version int) (*models.Trade, error) {
	var trade models.Trade
	err := s.db.WithContext(ctx).
		Where("trade_id = ? AND version = ?", tradeID, version).
		Take(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTradeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

func (s *gormTradeStorage) GetMaxVersion(ctx context.Context, tradeID string) (*int, error) {
	var maxVersion sql.NullInt64
	row := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Select("MAX(version)").
		Where("trade_id = ?", tradeID).
		Row()
	if err := row.Scan(&maxVersion); err != nil {
		return nil, err
	}
	if !maxVersion.Valid {
		return nil, nil
	}
	v := int(maxVersion.Int64)
	return &v, nil
}

func (s *gormTradeStorage) ListAll(ctx context.Context) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).Order("trade_id, version").Find(&trades).Error
	return trades, err
}

func (s *gormTradeStorage) ListVersions(ctx context.Context, tradeID string) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("trade_id = ?", tradeID).
		Order("version").
		Find(&trades).Error
	return trades, err
}

func (s *gormTradeStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
