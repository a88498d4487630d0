package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tradestore/server/internal/handler"
	"github.com/navid-fn/tradestore/server/internal/middleware"
)

type Config struct {
	TradeHandler   *handler.TradeHandler
	RequestHandler *handler.RequestHandler
	HealthHandler  *handler.HealthHandler
	Logger         *logrus.Logger

	// RateLimitRPS and RateLimitBurst apply to trade submissions per client IP.
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(cfg *Config) (*gin.Engine, error) {
	if err := handler.RegisterValidations(); err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.CorrelationID(), middleware.RequestLogger(cfg.Logger))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.GET("/health", cfg.HealthHandler.Check)
	registerTradeRoutes(api, cfg.TradeHandler, middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	registerRequestRoutes(api, cfg.RequestHandler)

	return router, nil
}
