package router

import (
	"github.com/gin-gonic/gin"

	"github.com/navid-fn/tradestore/server/internal/handler"
)

func registerTradeRoutes(router *gin.RouterGroup, tradeHandler *handler.TradeHandler, limiter gin.HandlerFunc) {
	trades := router.Group("/trades")
	{
		trades.POST("", limiter, tradeHandler.Create)
		trades.GET("", tradeHandler.List)
		trades.GET("/:trade_id", tradeHandler.GetVersions)
	}
}

func registerRequestRoutes(router *gin.RouterGroup, requestHandler *handler.RequestHandler) {
	requests := router.Group("/requests")
	{
		requests.GET("/:request_id", requestHandler.Get)
		requests.GET("/:request_id/watch", requestHandler.Watch)
	}
}
