package browser

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
)

// DefaultProbeTimeout bounds each debug HTTP request.
const DefaultProbeTimeout = 2 * time.Second

// VersionInfo is the body of GET /json/version.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	V8Version            string `json:"V8-Version"`
	WebKitVersion        string `json:"WebKit-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// TargetEntry is one element of GET /json/list.
type TargetEntry struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Prober queries the browser's debug HTTP endpoints.
type Prober interface {
	Version(ctx context.Context) (*VersionInfo, error)
	Targets(ctx context.Context) ([]TargetEntry, error)
}

// HTTPProber is a Prober backed by resty.
type HTTPProber struct {
	client *resty.Client
}

// NewHTTPProber creates a prober for the debug server at baseURL.
func NewHTTPProber(baseURL string, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "cdpgate-probe/1.0")
	return &HTTPProber{client: client}
}

// NewLoopbackProber probes the debug server on 127.0.0.1:port.
func NewLoopbackProber(port int, timeout time.Duration) *HTTPProber {
	return NewHTTPProber("http://127.0.0.1:"+strconv.Itoa(port), timeout)
}

// Version fetches /json/version.
func (p *HTTPProber) Version(ctx context.Context) (*VersionInfo, error) {
	var info VersionInfo
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&info).
		Get("/json/version")
	if err != nil {
		return nil, fmt.Errorf("probe version: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("probe version: unexpected status %d", resp.StatusCode())
	}
	return &info, nil
}

// Targets fetches /json/list.
func (p *HTTPProber) Targets(ctx context.Context) ([]TargetEntry, error) {
	var entries []TargetEntry
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&entries).
		Get("/json/list")
	if err != nil {
		return nil, fmt.Errorf("probe targets: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("probe targets: unexpected status %d", resp.StatusCode())
	}
	return entries, nil
}

// CountPages returns the number of page targets in entries.
func CountPages(entries []TargetEntry) int {
	n := 0
	for _, e := range entries {
		if e.Type == TargetTypePage {
			n++
		}
	}
	return n
}
