package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tradestore/configs"
	"github.com/navid-fn/tradestore/internal/bootstrap"
	"github.com/navid-fn/tradestore/internal/broker"
	"github.com/navid-fn/tradestore/internal/ingester"
	"github.com/navid-fn/tradestore/internal/logging"
	"github.com/navid-fn/tradestore/internal/storage"
)

func main() {
	appConfig := configs.AppLoad()
	logger := logging.NewLogger(appConfig.LogLevel, appConfig.Environment)

	// Run with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := bootstrap.ConnectPostgres(ctx, appConfig.Postgres, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	redisClient, err := bootstrap.ConnectRedis(ctx, appConfig.Redis, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()

	kafkaReader := broker.NewReader(appConfig.KafkaTrade, logger)
	defer kafkaReader.Close()

	svc := ingester.NewIngester(
		kafkaReader,
		storage.NewGormTradeStorage(db),
		storage.NewRedisRequestStorage(redisClient, appConfig.Redis.RequestTTL),
		logger,
		ingester.Config{Workers: appConfig.Ingester.WorkerCount},
	)

	logger.WithFields(logrus.Fields{
		"topic": appConfig.KafkaTrade.Topic,
		"group": appConfig.KafkaTrade.GroupID,
	}).Info("consumer started")

	if err := svc.Start(ctx); err != nil {
		logger.WithError(err).Fatal("consumer stopped with error")
	}
	logger.Info("consumer shutdown complete")
}
