package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/navid-fn/tradestore/configs"
	"github.com/navid-fn/tradestore/internal/bootstrap"
	"github.com/navid-fn/tradestore/internal/broker"
	"github.com/navid-fn/tradestore/internal/logging"
	"github.com/navid-fn/tradestore/internal/service"
	"github.com/navid-fn/tradestore/internal/storage"
	"github.com/navid-fn/tradestore/server/internal/handler"
	"github.com/navid-fn/tradestore/server/internal/router"
)

func main() {
	appConfig := configs.AppLoad()
	logger := logging.NewLogger(appConfig.LogLevel, appConfig.Environment)
	if appConfig.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

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

	tradeWriter := broker.NewWriter(appConfig.KafkaTrade)
	defer tradeWriter.Close()

	tradeStorage := storage.NewGormTradeStorage(db)
	requestStorage := storage.NewRedisRequestStorage(redisClient, appConfig.Redis.RequestTTL)
	sender := broker.NewSender(tradeWriter, appConfig.KafkaTrade.WriteTimeout, logger)

	tradeService := service.NewTradeService(requestStorage, sender, tradeStorage, logger, service.Config{
		RetryAfterSeconds: appConfig.Server.RetryAfterSeconds,
	})

	healthMonitor := handler.NewHealthMonitor(tradeStorage, broker.NewPinger(appConfig.KafkaTrade.Brokers), requestStorage,
		appConfig.Server.HealthInterval, logger)
	healthMonitor.Start(ctx)

	engine, err := router.NewRouter(&router.Config{
		TradeHandler:   handler.NewTradeHandler(tradeService),
		RequestHandler: handler.NewRequestHandler(tradeService, appConfig.Server.WatchInterval, logger),
		HealthHandler:  handler.NewHealthHandler(healthMonitor),
		Logger:         logger,
		RateLimitRPS:   appConfig.Server.RateLimitRPS,
		RateLimitBurst: appConfig.Server.RateLimitBurst,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to build router")
	}

	srv := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", srv.Addr).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down api")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
	healthMonitor.Wait()
	logger.Info("api stopped")
}
