package faulttolerance

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthStatus represents the health status of a dependency
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	// HealthStatusUnknown is reported until a check has run once.
	HealthStatusUnknown HealthStatus = "unknown"
)

// HealthCheck is the last observed result of a named check.
type HealthCheck struct {
	Name      string
	Status    HealthStatus
	LastCheck time.Time
	Duration  time.Duration
	Error     string
	CheckFunc func(ctx context.Context) error
}

// HealthMonitor runs named dependency checks, periodically in the background
// and on demand, and logs every status change.
type HealthMonitor struct {
	checks   map[string]*HealthCheck
	mutex    sync.RWMutex
	logger   logrus.FieldLogger
	interval time.Duration
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(logger logrus.FieldLogger, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &HealthMonitor{
		checks:   make(map[string]*HealthCheck),
		logger:   logger,
		interval: interval,
		timeout:  5 * time.Second,
	}
}

// AddCheck registers a check. A later call with the same name replaces it.
func (hm *HealthMonitor) AddCheck(name string, checkFunc func(ctx context.Context) error) {
	hm.mutex.Lock()
	defer hm.mutex.Unlock()

	hm.checks[name] = &HealthCheck{
		Name:      name,
		Status:    HealthStatusUnknown,
		CheckFunc: checkFunc,
	}
}

// Start runs all checks every interval until ctx is done.
func (hm *HealthMonitor) Start(ctx context.Context) {
	hm.wg.Add(1)
	go hm.monitorLoop(ctx)
	hm.logger.WithField("interval", hm.interval).Info("health monitor started")
}

// Wait blocks until the loop started by Start has returned.
func (hm *HealthMonitor) Wait() {
	hm.wg.Wait()
}

func (hm *HealthMonitor) monitorLoop(ctx context.Context) {
	defer hm.wg.Done()

	ticker := time.NewTicker(hm.interval)
	defer ticker.Stop()

	hm.CheckNow(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hm.CheckNow(ctx)
		}
	}
}

// CheckNow runs every registered check concurrently and returns the results.
func (hm *HealthMonitor) CheckNow(ctx context.Context) map[string]HealthCheck {
	hm.mutex.RLock()
	checks := make([]*HealthCheck, 0, len(hm.checks))
	for _, check := range hm.checks {
		checks = append(checks, check)
	}
	hm.mutex.RUnlock()

	var wg sync.WaitGroup
	for _, check := range checks {
		wg.Add(1)
		go func(check *HealthCheck) {
			defer wg.Done()
			hm.runCheck(ctx, check)
		}(check)
	}
	wg.Wait()

	return hm.GetHealth()
}

func (hm *HealthMonitor) runCheck(ctx context.Context, check *HealthCheck) {
	if check.CheckFunc == nil {
		return
	}

	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	err := check.CheckFunc(checkCtx)
	duration := time.Since(start)

	hm.mutex.Lock()
	defer hm.mutex.Unlock()

	oldStatus := check.Status
	check.LastCheck = start
	check.Duration = duration

	log := hm.logger.WithFields(logrus.Fields{
		"check":    check.Name,
		"duration": duration,
	})
	if err != nil {
		check.Status = HealthStatusUnhealthy
		check.Error = err.Error()
		if oldStatus != HealthStatusUnhealthy {
			log.WithError(err).Error("health check failed")
		}
		return
	}

	check.Status = HealthStatusHealthy
	check.Error = ""
	if oldStatus == HealthStatusUnhealthy {
		log.Info("health check recovered")
	}
}

// GetHealth returns a copy of the last results, without the check functions.
func (hm *HealthMonitor) GetHealth() map[string]HealthCheck {
	hm.mutex.RLock()
	defer hm.mutex.RUnlock()

	result := make(map[string]HealthCheck, len(hm.checks))
	for name, check := range hm.checks {
		c := *check
		c.CheckFunc = nil
		result[name] = c
	}
	return result
}

// GetOverallHealth is healthy only when every check last passed.
func (hm *HealthMonitor) GetOverallHealth() HealthStatus {
	hm.mutex.RLock()
	defer hm.mutex.RUnlock()

	overall := HealthStatusHealthy
	for _, check := range hm.checks {
		switch check.Status {
		case HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case HealthStatusUnknown:
			overall = HealthStatusUnknown
		}
	}
	return overall
}
