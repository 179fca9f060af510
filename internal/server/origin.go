package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
)

// NewCheckOrigin returns the upgrader's CheckOrigin function.
// With no allowed origins configured every origin is accepted, since robot
// and headset clients usually send none. Otherwise empty origins, the listed
// origins and, in development, localhost origins are accepted.
func NewCheckOrigin(allowed []string, isDevelopment bool) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}

	origins := make([]string, 0, len(allowed))
	for _, raw := range allowed {
		if origin := extractOrigin(raw); origin != "" {
			origins = append(origins, origin)
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		if origin == "" {
			return true
		}

		if slices.Contains(origins, origin) {
			return true
		}

		if isDevelopment && isLocalhostOrigin(origin) {
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}
