package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/CzarCx/qr-brain/internal/metrics"
	"github.com/CzarCx/qr-brain/internal/tracing"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 3 * time.Second

// HealthCheck pings a set of dependencies, keyed by name; nil means healthy
type HealthCheck func(ctx context.Context) map[string]error

// MetricsHandler handles metrics-related HTTP requests
type MetricsHandler struct {
	metrics *metrics.Metrics
	tracer  tracing.Tracer
	checks  []HealthCheck
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(metrics *metrics.Metrics, tracer tracing.Tracer, checks ...HealthCheck) *MetricsHandler {
	return &MetricsHandler{
		metrics: metrics,
		tracer:  tracer,
		checks:  checks,
	}
}

// HandleGetMetrics returns all metrics
func (h *MetricsHandler) HandleGetMetrics(c *gin.Context) {
	defer h.tracer.Operation("get-metrics")(nil)

	h.metrics.SetGauge("goroutines", int64(runtime.NumGoroutine()))

	c.JSON(http.StatusOK, h.metrics.GetAllMetrics())
}

// HandleGetHealthCheck pings the datastores and returns a simplified health status
func (h *MetricsHandler) HandleGetHealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	errs := map[string]string{}
	for _, check := range h.checks {
		for name, err := range check(ctx) {
			h.metrics.SetHealth(name, err == nil)
			if err != nil {
				errs[name] = err.Error()
			}
		}
	}

	healthChecks := h.metrics.GetHealthChecks()

	healthy := true
	for _, status := range healthChecks {
		if !status {
			healthy = false
			break
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	body := gin.H{
		"status":  healthy,
		"details": healthChecks,
	}
	if len(errs) > 0 {
		body["errors"] = errs
	}
	c.JSON(status, body)
}

// RegisterRoutes registers the handler's routes
func (h *MetricsHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/metrics", h.HandleGetMetrics)
	router.GET("/health", h.HandleGetHealthCheck)
}
