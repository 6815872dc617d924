package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RelayOpened()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.RelaySessions))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RelaySessions))
}

func TestRecordLaunch(t *testing.T) {
	m := NewMetrics()

	m.RecordLaunch(errors.New("boom"), time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrowserLaunches.WithLabelValues("failure")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BrowserConnected))

	m.RecordLaunch(nil, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrowserLaunches.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrowserConnected))

	m.RecordDisconnect()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Disconnects))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BrowserConnected))
}

func TestRelayMetrics(t *testing.T) {
	m := NewMetrics()

	m.RelayOpened()
	m.RecordFrame("client_to_upstream", "text", 42)
	m.RecordFrame("client_to_upstream", "binary", 8)
	m.RelayClosed("client_closed")
	m.RelayRejected("dial_failed")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.RelaySessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayFrames.WithLabelValues("client_to_upstream", "text")))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.RelayBytes.WithLabelValues("client_to_upstream")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayTotal.WithLabelValues("client_closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayTotal.WithLabelValues("dial_failed")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/", "200", time.Millisecond)
		m.RecordEndpoint("relay", "ok", time.Millisecond)
		m.RecordLaunch(nil, time.Second)
		m.RecordDisconnect()
		m.SetBrowserConnected(true)
		m.SetPagesTracked(3)
		m.IncPagesReaped()
		m.IncPageCloseErrors()
		m.RelayOpened()
		m.RelayClosed("shutdown")
		m.RelayRejected("upgrade_failed")
		m.RecordFrame("upstream_to_client", "text", 1)
		m.RecordDiagEvent("page", "console")
		m.RecordDiagError("watch")
	})
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/devtools/*path", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	for _, p := range []string{"/devtools/page/a", "/devtools/page/b", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", p, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/devtools/*path", "418")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics()
	m.SetPagesTracked(2)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cdpgate_pages_tracked 2")
	assert.Contains(t, w.Body.String(), "cdpgate_uptime_seconds")
}
