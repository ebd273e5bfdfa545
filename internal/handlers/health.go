package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/duochat/internal/broker"
)

// ConnectionCounter reports live WebSocket connections.
type ConnectionCounter interface {
	Count() int
}

// BrokerStats reports broker occupancy.
type BrokerStats interface {
	Stats() broker.Stats
}

// HealthChecks runs the service health checks, keyed by service name.
type HealthChecks func() map[string]error

// HealthHandler serves GET /health.
type HealthHandler struct {
	conns  ConnectionCounter
	broker BrokerStats
	checks HealthChecks
}

// NewHealthHandler creates a HealthHandler. checks may be nil.
func NewHealthHandler(conns ConnectionCounter, b BrokerStats, checks HealthChecks) *HealthHandler {
	return &HealthHandler{conns: conns, broker: b, checks: checks}
}

// Get reports 200 when every check passes and 503 otherwise.
func (h *HealthHandler) Get(c echo.Context) error {
	stats := h.broker.Stats()
	resp := HealthResponse{
		Status:        "ok",
		Connections:   h.conns.Count(),
		Topics:        stats.Topics,
		Subscriptions: stats.Subscriptions,
	}

	code := http.StatusOK
	if h.checks != nil {
		for name, err := range h.checks() {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string)
			}
			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	return c.JSON(code, resp)
}
