package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/navid-fn/tradestore/configs"
	"github.com/navid-fn/tradestore/internal/bootstrap"
	"github.com/navid-fn/tradestore/internal/broker"
	"github.com/navid-fn/tradestore/internal/logging"
	"github.com/navid-fn/tradestore/internal/migrations"
)

func main() {
	topics := flag.Bool("topics", false, "Also create the Kafka trades topic")
	flag.Parse()

	cfg := configs.AppLoad()
	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := bootstrap.ConnectPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.WithError(err).Fatal("failed to get sql.DB")
	}
	defer sqlDB.Close()

	logger.Info("running database migrations")
	if err := migrations.Up(sqlDB); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}
	logger.Info("migrations completed successfully")

	if *topics {
		if err := broker.EnsureTopic(ctx, cfg.KafkaTrade, logger); err != nil {
			logger.WithError(err).Fatal("topic provisioning failed")
		}
	}
}
