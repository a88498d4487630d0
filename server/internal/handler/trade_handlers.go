// Package handler maps HTTP requests onto the trade service.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/navid-fn/tradestore/internal/models"
	"github.com/navid-fn/tradestore/internal/service"
)

// TradeService is implemented by *service.TradeService.
type TradeService interface {
	IngestTrade(ctx context.Context, sub models.TradeSubmission) service.IngestResult
	GetRequestStatus(ctx context.Context, requestID string) (*models.RequestRecord, error)
	ListTrades(ctx context.Context) ([]service.TradeView, error)
	GetTradeVersions(ctx context.Context, tradeID string) ([]service.TradeView, error)
}

// TradeCreateRequest is the body of POST /trades.
type TradeCreateRequest struct {
	TradeID        string `json:"trade_id" binding:"required,notblank,max=20"`
	Version        int    `json:"version" binding:"required,min=1,max=2147483647"`
	CounterpartyID string `json:"counterparty_id" binding:"required,max=50"`
	BookID         string `json:"book_id" binding:"required,max=50"`
	MaturityDate   string `json:"maturity_date" binding:"required,datetime=2006-01-02"`
	CreatedDate    string `json:"created_date" binding:"required,datetime=2006-01-02"`
}

// RegisterValidations adds the custom binding rules used by request bodies.
func RegisterValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("notblank", validators.NotBlank)
}

func (r TradeCreateRequest) submission() (models.TradeSubmission, error) {
	maturity, err := models.ParseDate(r.MaturityDate)
	if err != nil {
		return models.TradeSubmission{}, err
	}
	created, err := models.ParseDate(r.CreatedDate)
	if err != nil {
		return models.TradeSubmission{}, err
	}
	return models.TradeSubmission{
		TradeID:        strings.TrimSpace(r.TradeID),
		Version:        r.Version,
		CounterpartyID: r.CounterpartyID,
		BookID:         r.BookID,
		MaturityDate:   maturity,
		CreatedDate:    created,
	}, nil
}

type TradeHandler struct {
	tradeService TradeService
}

func NewTradeHandler(service TradeService) *TradeHandler {
	return &TradeHandler{
		tradeService: service,
	}
}

// Create admits a trade for asynchronous processing.
func (h *TradeHandler) Create(c *gin.Context) {
	var req TradeCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sub, err := req.submission()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.tradeService.IngestTrade(c.Request.Context(), sub)
	if result.Status == service.StatusTemporaryFailure {
		c.Header("Retry-After", strconv.Itoa(result.RetryAfterSeconds))
		c.JSON(http.StatusServiceUnavailable, result)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (h *TradeHandler) List(c *gin.Context) {
	trades, err := h.tradeService.ListTrades(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trades"})
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (h *TradeHandler) GetVersions(c *gin.Context) {
	trades, err := h.tradeService.GetTradeVersions(c.Request.Context(), c.Param("trade_id"))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trade versions"})
		return
	}
	c.JSON(http.StatusOK, trades)
}
