package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/cdpgate/internal/domain/browser"
	"github.com/GriffinCanCode/cdpgate/internal/domain/endpoint"
	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/monitoring"
)

type mockSupervisor struct {
	mock.Mock
}

func (m *mockSupervisor) EnsureRunning(ctx context.Context) (*browser.Handle, error) {
	args := m.Called(ctx)
	h, _ := args.Get(0).(*browser.Handle)
	return h, args.Error(1)
}

func (m *mockSupervisor) Status(ctx context.Context) browser.Status {
	return m.Called(ctx).Get(0).(browser.Status)
}

type fixedRelays int

func (f fixedRelays) Active() int { return int(f) }

func setupRouter(sup Supervisor, host string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandlers(
		Config{Version: "1.2.3", Mode: "relay"},
		sup,
		fixedRelays(2),
		endpoint.Rewriter{Host: host, Scheme: "wss"},
		NewHandlerMetrics(monitoring.NewMetrics()),
		zap.NewNop(),
	)
	r := gin.New()
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/cdp", h.CDP)
	return r
}

func get(t *testing.T, r http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestRoot(t *testing.T) {
	r := setupRouter(new(mockSupervisor), "tunnel.example.com")

	w, body := get(t, r, "/")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cdpgate", body["name"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, "online", body["status"])
	assert.Equal(t, "relay", body["mode"])
	assert.Contains(t, body["endpoints"], "cdp")
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		status     browser.Status
		wantStatus string
	}{
		{
			name:       "no browser yet",
			status:     browser.Status{DebugPort: 9222, PageTimeoutMS: 120000},
			wantStatus: "idle",
		},
		{
			name: "connected",
			status: browser.Status{
				Connected:     true,
				DebugPort:     9222,
				Generation:    3,
				OpenPages:     4,
				TrackedTimers: 4,
				PageTimeoutMS: 120000,
			},
			wantStatus: "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sup := new(mockSupervisor)
			sup.On("Status", mock.Anything).Return(tt.status)
			r := setupRouter(sup, "tunnel.example.com")

			w, body := get(t, r, "/health")

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantStatus, body["status"])
			assert.Equal(t, tt.status.Connected, body["connected"])
			assert.EqualValues(t, 9222, body["debugPort"])
			assert.EqualValues(t, tt.status.OpenPages, body["openPages"])
			assert.EqualValues(t, tt.status.TrackedTimers, body["trackedTimers"])
			assert.EqualValues(t, 120000, body["pageTimeoutMs"])
			assert.EqualValues(t, 2, body["activeRelays"])
			assert.EqualValues(t, tt.status.Generation, body["generation"])
			sup.AssertNotCalled(t, "EnsureRunning", mock.Anything)
		})
	}
}

func TestCDP(t *testing.T) {
	sup := new(mockSupervisor)
	sup.On("EnsureRunning", mock.Anything).Return(&browser.Handle{
		ControlURL: "ws://127.0.0.1:9222/devtools/browser/0f3c-11aa",
		DebugPort:  9222,
	}, nil)
	r := setupRouter(sup, "tunnel.example.com")

	w, body := get(t, r, "/cdp")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "wss://tunnel.example.com/devtools/browser/0f3c-11aa", body["wsEndpoint"])
	assert.Equal(t, "/devtools/browser/0f3c-11aa", body["path"])
	sup.AssertExpectations(t)
}

func TestCDP_LaunchFailure(t *testing.T) {
	sup := new(mockSupervisor)
	sup.On("EnsureRunning", mock.Anything).Return(nil, &browser.LaunchError{
		Stage: "launch",
		Err:   fmt.Errorf("executable not found"),
	})
	r := setupRouter(sup, "tunnel.example.com")

	w, body := get(t, r, "/cdp")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, body["error"], "executable not found")
}

func TestCDP_ShuttingDown(t *testing.T) {
	sup := new(mockSupervisor)
	sup.On("EnsureRunning", mock.Anything).Return(nil, browser.ErrClosed)
	r := setupRouter(sup, "tunnel.example.com")

	w, _ := get(t, r, "/cdp")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCDP_InvalidEndpoint(t *testing.T) {
	sup := new(mockSupervisor)
	sup.On("EnsureRunning", mock.Anything).Return(&browser.Handle{
		ControlURL: "not a url",
	}, nil)
	r := setupRouter(sup, "tunnel.example.com")

	w, body := get(t, r, "/cdp")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, body["error"], "invalid endpoint")
}
