package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tradestore/internal/models"
	"github.com/navid-fn/tradestore/internal/storage"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type RequestHandler struct {
	tradeService  TradeService
	watchInterval time.Duration
	logger        *logrus.Logger
}

func NewRequestHandler(service TradeService, watchInterval time.Duration, logger *logrus.Logger) *RequestHandler {
	if watchInterval <= 0 {
		watchInterval = 500 * time.Millisecond
	}
	return &RequestHandler{
		tradeService:  service,
		watchInterval: watchInterval,
		logger:        logger,
	}
}

func notFound(requestID string) gin.H {
	return gin.H{"error": fmt.Sprintf("Request '%s' not found", requestID)}
}

// Get returns the lifecycle record of a submission.
func (h *RequestHandler) Get(c *gin.Context) {
	requestID := c.Param("request_id")
	rec, err := h.tradeService.GetRequestStatus(c.Request.Context(), requestID)
	if errors.Is(err, storage.ErrRequestNotFound) {
		c.JSON(http.StatusNotFound, notFound(requestID))
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request store unavailable"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Watch streams the lifecycle record over a websocket each time its status
// changes. The stream ends after a terminal status or once the record is gone.
func (h *RequestHandler) Watch(c *gin.Context) {
	requestID := c.Param("request_id")
	rec, err := h.tradeService.GetRequestStatus(c.Request.Context(), requestID)
	if errors.Is(err, storage.ErrRequestNotFound) {
		c.JSON(http.StatusNotFound, notFound(requestID))
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request store unavailable"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Drain client frames so close and ping control messages are processed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	log := h.logger.WithField("request_id", requestID)
	if err := writeJSON(conn, rec); err != nil {
		log.WithError(err).Debug("watch write failed")
		return
	}

	ticker := time.NewTicker(h.watchInterval)
	defer ticker.Stop()

	last := rec.Status
	for !last.Terminal() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rec, err = h.tradeService.GetRequestStatus(ctx, requestID)
		if errors.Is(err, storage.ErrRequestNotFound) {
			closeWith(conn, websocket.CloseNormalClosure, "request expired")
			return
		}
		if err != nil {
			log.WithError(err).Warn("watch poll failed")
			continue
		}
		if rec.Status == last {
			continue
		}
		last = rec.Status
		if err := writeJSON(conn, rec); err != nil {
			log.WithError(err).Debug("watch write failed")
			return
		}
	}
	closeWith(conn, websocket.CloseNormalClosure, string(last))
}

func writeJSON(conn *websocket.Conn, rec *models.RequestRecord) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(rec)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(writeWait))
}
