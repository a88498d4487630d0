// Package storage provides the two stores of the trade pipeline: the durable
// trade record store (PostgreSQL via gorm) and the request lifecycle store
// (Redis with per-key expiry). The stores are independent; no transaction
// spans both.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrTradeNotFound is returned when no row matches (trade_id, version).
	ErrTradeNotFound = errors.New("trade not found")

	// ErrRequestNotFound is returned when a request id is unknown or its
	// lifecycle record has expired.
	ErrRequestNotFound = errors.New("request not found")

	// ErrInvalidTransition is returned when a terminal request status would be
	// overwritten by a different status.
	ErrInvalidTransition = errors.New("request status transition not allowed")
)

// NewPostgres opens a gorm connection to PostgreSQL and verifies it with a
// ping. Returns an error if the ping does not succeed within 5 seconds.
func NewPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewRedisClient creates a Redis client and tests the connection.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
