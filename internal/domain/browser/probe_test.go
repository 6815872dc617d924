package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDebugServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		_, _ = w.Write([]byte(`{
			"Browser": "HeadlessChrome/120.0.6099.109",
			"Protocol-Version": "1.3",
			"User-Agent": "Mozilla/5.0",
			"V8-Version": "12.0.267.8",
			"WebKit-Version": "537.36",
			"webSocketDebuggerUrl": "ws://127.0.0.1:9222/devtools/browser/abc"
		}`))
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		_, _ = w.Write([]byte(`[
			{"id": "P1", "type": "page", "title": "a", "url": "about:blank", "webSocketDebuggerUrl": "ws://127.0.0.1:9222/devtools/page/P1"},
			{"id": "P2", "type": "page", "title": "b", "url": "https://example.com/"},
			{"id": "W1", "type": "service_worker", "title": "sw", "url": "https://example.com/sw.js"}
		]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPProberVersion(t *testing.T) {
	srv := newDebugServer(t)
	p := NewHTTPProber(srv.URL, time.Second)

	info, err := p.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "HeadlessChrome/120.0.6099.109", info.Browser)
	assert.Equal(t, "1.3", info.ProtocolVersion)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", info.WebSocketDebuggerURL)
}

func TestHTTPProberTargets(t *testing.T) {
	srv := newDebugServer(t)
	p := NewHTTPProber(srv.URL, time.Second)

	entries, err := p.Targets(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "P1", entries[0].ID)
	assert.Equal(t, 2, CountPages(entries))
}

func TestHTTPProberErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProber(srv.URL, time.Second)
	_, err := p.Version(context.Background())
	assert.Error(t, err)
	_, err = p.Targets(context.Background())
	assert.Error(t, err)

	down := NewLoopbackProber(1, 200*time.Millisecond)
	_, err = down.Version(context.Background())
	assert.Error(t, err)
}
