// Package endpoint maps the browser's loopback control endpoint to the URL a
// remote client reaches through the tunnel.
package endpoint

import (
	"net/url"
	"strings"
)

// Endpoint is a rewritten, externally reachable control endpoint.
type Endpoint struct {
	// URL is the full endpoint including any query string.
	URL string `json:"wsEndpoint"`
	// Path is the browser-assigned path, without query.
	Path string `json:"path"`
}

// Rewrite replaces the scheme and host of local with scheme and host. The
// path and query are copied byte for byte from local.
func Rewrite(local, host, scheme string) (Endpoint, error) {
	switch scheme {
	case "ws", "wss":
	default:
		return Endpoint{}, invalid(local, "unsupported external scheme "+quote(scheme), nil)
	}
	if host == "" || strings.ContainsAny(host, "/?#@ ") {
		return Endpoint{}, invalid(local, "bad external host "+quote(host), nil)
	}

	u, err := url.Parse(local)
	if err != nil {
		return Endpoint{}, invalid(local, "parse", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return Endpoint{}, invalid(local, "unsupported scheme "+quote(u.Scheme), nil)
	}
	if u.Host == "" {
		return Endpoint{}, invalid(local, "missing host", nil)
	}

	// Work on the raw string so escapes and case in the path survive.
	sep := strings.Index(local, "://")
	if sep < 0 {
		return Endpoint{}, invalid(local, "missing authority", nil)
	}
	rest := local[sep+3:]
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[i:]
	} else {
		rest = ""
	}

	path := rest
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return Endpoint{}, invalid(local, "missing path", nil)
	}

	return Endpoint{
		URL:  scheme + "://" + host + rest,
		Path: path,
	}, nil
}

// Rewriter binds Rewrite to a fixed external host and scheme.
type Rewriter struct {
	Host   string
	Scheme string
}

// Rewrite rewrites local for the configured tunnel.
func (r Rewriter) Rewrite(local string) (Endpoint, error) {
	return Rewrite(local, r.Host, r.Scheme)
}

func quote(s string) string {
	return "\"" + s + "\""
}
