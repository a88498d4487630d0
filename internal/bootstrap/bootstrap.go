// Package bootstrap opens the connections shared by the binaries, retrying
// while the dependencies start up.
package bootstrap

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/navid-fn/tradestore/configs"
	"github.com/navid-fn/tradestore/internal/faulttolerance"
	"github.com/navid-fn/tradestore/internal/storage"
)

func ConnectPostgres(ctx context.Context, cfg configs.PostgresConfig, logger *logrus.Logger) (*gorm.DB, error) {
	var db *gorm.DB
	retryer := faulttolerance.NewRetryer(faulttolerance.DefaultRetryConfig("postgres"), logger)
	err := retryer.Execute(ctx, func() error {
		var err error
		db, err = storage.NewPostgres(cfg.DSN())
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.WithField("host", cfg.Host).Info("connected to postgres")
	return db, nil
}

func ConnectRedis(ctx context.Context, cfg configs.RedisConfig, logger *logrus.Logger) (*redis.Client, error) {
	var client *redis.Client
	retryer := faulttolerance.NewRetryer(faulttolerance.DefaultRetryConfig("redis"), logger)
	err := retryer.Execute(ctx, func() error {
		var err error
		client, err = storage.NewRedisClient(cfg.Addr, cfg.Password, cfg.DB)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.WithField("addr", cfg.Addr).Info("connected to redis")
	return client, nil
}
