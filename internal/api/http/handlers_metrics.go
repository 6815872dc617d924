package http

import (
	"time"

	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/monitoring"
)

// HandlerMetrics wraps handlers with metrics tracking
type HandlerMetrics struct {
	metrics *monitoring.Metrics
}

// NewHandlerMetrics creates a metrics wrapper
func NewHandlerMetrics(metrics *monitoring.Metrics) *HandlerMetrics {
	return &HandlerMetrics{metrics: metrics}
}

// TrackEndpoint times one control endpoint request. The returned func
// records the result.
func (hm *HandlerMetrics) TrackEndpoint(mode string) func(result string) {
	start := time.Now()
	return func(result string) {
		if hm == nil {
			return
		}
		hm.metrics.RecordEndpoint(mode, result, time.Since(start))
	}
}
