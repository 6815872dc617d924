package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/cdpgate/internal/domain/browser"
	"github.com/GriffinCanCode/cdpgate/internal/domain/endpoint"
	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/logging"
	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/tracing"
)

// Supervisor is the part of the browser supervisor the handlers use.
type Supervisor interface {
	EnsureRunning(ctx context.Context) (*browser.Handle, error)
	Status(ctx context.Context) browser.Status
}

// RelayCounter reports live relay sessions.
type RelayCounter interface {
	Active() int
}

// Config describes the service to clients.
type Config struct {
	Name    string
	Version string
	Mode    string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	cfg        Config
	supervisor Supervisor
	relay      RelayCounter
	rewriter   endpoint.Rewriter
	metrics    *HandlerMetrics
	logger     *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(
	cfg Config,
	supervisor Supervisor,
	relay RelayCounter,
	rewriter endpoint.Rewriter,
	metrics *HandlerMetrics,
	logger *zap.Logger,
) *Handlers {
	if cfg.Name == "" {
		cfg.Name = "cdpgate"
	}
	return &Handlers{
		cfg:        cfg,
		supervisor: supervisor,
		relay:      relay,
		rewriter:   rewriter,
		metrics:    metrics,
		logger:     logging.OrNop(logger),
	}
}

// Root describes the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    h.cfg.Name,
		"version": h.cfg.Version,
		"status":  "online",
		"mode":    h.cfg.Mode,
		"endpoints": gin.H{
			"health":   "/health",
			"cdp":      "/cdp",
			"metrics":  "/metrics",
			"devtools": "/devtools/*",
		},
	})
}

// Health reports browser and relay state without launching anything
func (h *Handlers) Health(c *gin.Context) {
	st := h.supervisor.Status(c.Request.Context())

	status := "idle"
	if st.Connected {
		status = "ok"
	}

	active := 0
	if h.relay != nil {
		active = h.relay.Active()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        status,
		"connected":     st.Connected,
		"debugPort":     st.DebugPort,
		"openPages":     st.OpenPages,
		"trackedTimers": st.TrackedTimers,
		"pageTimeoutMs": st.PageTimeoutMS,
		"activeRelays":  active,
		"generation":    st.Generation,
	})
}

// CDP ensures a browser is running and returns its externally reachable
// control endpoint
func (h *Handlers) CDP(c *gin.Context) {
	done := h.metrics.TrackEndpoint(h.cfg.Mode)
	ctx := c.Request.Context()
	log := h.logger.With(tracing.Fields(ctx)...)

	handle, err := h.supervisor.EnsureRunning(ctx)
	if err != nil {
		done("launch_error")
		log.Warn("Browser unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	ep, err := h.rewriter.Rewrite(handle.ControlURL)
	if err != nil {
		done("invalid_endpoint")
		log.Error("Control endpoint rewrite failed",
			zap.String("control_url", handle.ControlURL),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	done("ok")
	c.JSON(http.StatusOK, ep)
}
