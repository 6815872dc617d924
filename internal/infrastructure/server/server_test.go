package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/config"
	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/logging"
	"github.com/GriffinCanCode/cdpgate/tests/helpers/testutil"
)

// startBrowserSocket runs an echoing stand-in for the browser debug socket
// and returns its port.
func startBrowserSocket(t *testing.T) int {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	port, err := strconv.Atoi(srv.URL[strings.LastIndex(srv.URL, ":")+1:])
	require.NoError(t, err)
	return port
}

func testConfig(debugPort int) *config.Config {
	cfg := config.Default()
	cfg.Tunnel.Host = "tunnel.example.com"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.ShutdownTimeout = 3 * time.Second
	cfg.Browser.DebugPort = debugPort
	cfg.Browser.LaunchTimeout = time.Second
	cfg.Relay.CloseGrace = 200 * time.Millisecond
	cfg.Logging.Development = true
	return cfg
}

type harness struct {
	srv      *Server
	launcher *testutil.FakeLauncher
	base     string
	cancel   context.CancelFunc
	done     chan error
}

func startServer(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	launcher := testutil.NewFakeLauncher()
	srv, err := NewServer(cfg, logging.NewNop(),
		WithLauncher(launcher),
		WithProber(testutil.NewMockProber()),
		WithVersion("test"),
	)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		srv:      srv,
		launcher: launcher,
		base:     "http://" + ln.Addr().String(),
		cancel:   cancel,
		done:     make(chan error, 1),
	}
	go func() { h.done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() { h.stop(t) })
	return h
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		h.done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestNewServer_InvalidConfig(t *testing.T) {
	cfg := config.Default()

	_, err := NewServer(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TUNNEL_HOST")
}

func TestServer_HealthBeforeLaunch(t *testing.T) {
	h := startServer(t, testConfig(9222))

	code, body := getJSON(t, h.base+"/health")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["connected"])
	assert.EqualValues(t, 9222, body["debugPort"])
	assert.EqualValues(t, 120000, body["pageTimeoutMs"])
	assert.Equal(t, 0, h.launcher.Calls(), "health must not launch a browser")
}

func TestServer_CDPLaunchesAndRewrites(t *testing.T) {
	h := startServer(t, testConfig(9222))

	code, body := getJSON(t, h.base+"/cdp")

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "wss://tunnel.example.com/devtools/browser/fake-1", body["wsEndpoint"])
	assert.Equal(t, "/devtools/browser/fake-1", body["path"])
	assert.Equal(t, 1, h.launcher.Calls())

	code, body = getJSON(t, h.base+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["connected"])
	assert.EqualValues(t, 1, body["generation"])
}

func TestServer_DirectMode(t *testing.T) {
	cfg := testConfig(9222)
	cfg.Tunnel.Mode = config.ModeDirect
	cfg.Tunnel.BrowserHost = "browser.example.com"
	h := startServer(t, cfg)

	code, body := getJSON(t, h.base+"/cdp")

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "wss://browser.example.com/devtools/browser/fake-1", body["wsEndpoint"])
}

func TestServer_CDPRateLimited(t *testing.T) {
	cfg := testConfig(9222)
	cfg.RateLimit.RequestsPerSecond = 1
	cfg.RateLimit.Burst = 1
	h := startServer(t, cfg)

	code, _ := getJSON(t, h.base+"/cdp")
	assert.Equal(t, http.StatusOK, code)
	code, _ = getJSON(t, h.base+"/cdp")
	assert.Equal(t, http.StatusTooManyRequests, code)

	// Other routes are not limited.
	code, _ = getJSON(t, h.base+"/health")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_Metrics(t *testing.T) {
	h := startServer(t, testConfig(9222))
	getJSON(t, h.base+"/cdp")

	resp, err := http.Get(h.base + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `cdpgate_endpoint_requests_total{mode="relay",result="ok"} 1`)
	assert.Contains(t, string(body), "cdpgate_browser_connected 1")
}

func TestServer_RelayRoundTrip(t *testing.T) {
	h := startServer(t, testConfig(startBrowserSocket(t)))

	_, body := getJSON(t, h.base+"/cdp")
	path, _ := body["path"].(string)
	require.NotEmpty(t, path)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(h.base, "http")+path, nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := []byte(`{"id":7,"method":"Browser.getVersion"}`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	_, health := getJSON(t, h.base+"/health")
	assert.EqualValues(t, 1, health["activeRelays"])
}

func TestServer_UpgradeOutsideDevtoolsDropped(t *testing.T) {
	h := startServer(t, testConfig(9222))

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(h.base, "http")+"/health", nil)
	require.Error(t, err)
	assert.Nil(t, resp)
}

func TestServer_ShutdownClosesRelaysAndBrowser(t *testing.T) {
	h := startServer(t, testConfig(startBrowserSocket(t)))

	_, body := getJSON(t, h.base+"/cdp")
	path, _ := body["path"].(string)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(h.base, "http")+path, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.srv.relay.Active() == 1 }, 3*time.Second, 10*time.Millisecond)

	h.cancel()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseGoingAway, ce.Code)
	assert.Equal(t, "server shutting down", ce.Text)

	select {
	case err := <-h.done:
		h.done <- err
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, 1, h.launcher.Last().CloseCalls())
	assert.Equal(t, 0, h.srv.relay.Active())
}
