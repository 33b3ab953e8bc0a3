package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ExtractIP, login limiter'ı için istemci IP'sini döner.
// Reverse proxy arkasında X-Forwarded-For'un ilk değeri gerçek istemcidir.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
