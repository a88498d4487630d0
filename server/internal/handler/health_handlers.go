package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tradestore/internal/faulttolerance"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies reported by the health endpoint, by check name.
var healthComponents = []string{"db", "kafka", "redis"}

// NewHealthMonitor registers a check for every non-nil dependency.
func NewHealthMonitor(db, kafka, redis Pinger, interval time.Duration, logger logrus.FieldLogger) *faulttolerance.HealthMonitor {
	monitor := faulttolerance.NewHealthMonitor(logger, interval)
	for name, p := range map[string]Pinger{"db": db, "kafka": kafka, "redis": redis} {
		if p != nil {
			monitor.AddCheck(name, p.Ping)
		}
	}
	return monitor
}

type HealthHandler struct {
	monitor *faulttolerance.HealthMonitor
}

func NewHealthHandler(monitor *faulttolerance.HealthMonitor) *HealthHandler {
	return &HealthHandler{monitor: monitor}
}

// Check always answers 200; a failing dependency only degrades the status.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	results := h.monitor.CheckNow(ctx)

	body := gin.H{}
	overall := "ok"
	for _, name := range healthComponents {
		check, ok := results[name]
		switch {
		case !ok:
			body[name] = "not_initialised"
			overall = "degraded"
		case check.Status == faulttolerance.HealthStatusHealthy:
			body[name] = "ok"
		default:
			body[name] = "error: " + check.Error
			overall = "degraded"
		}
	}
	body["status"] = overall
	c.JSON(http.StatusOK, body)
}
