package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"remit/pkg/requestcontext"
)

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context for use by handlers and services.
// This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIPFromRequest(r)
		userAgent := r.Header.Get("User-Agent")

		ctx := requestcontext.WithClientMetadata(r.Context(), ip, userAgent, DescribeClient(userAgent))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DescribeClient renders a short "Browser Version / OS" label for logs.
// Bots and non-browser clients fall back to the product token.
func DescribeClient(userAgent string) string {
	if userAgent == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot: " + name
	}
	name, version := ua.Browser()
	if name == "" {
		return ua.Mozilla()
	}
	if major, _, ok := strings.Cut(version, "."); ok {
		version = major
	}
	label := strings.TrimSpace(name + " " + version)
	if osName := ua.OSInfo().Name; osName != "" {
		label += " / " + osName
	}
	return label
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port", or "[::1]:port" for IPv6
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}

	return "unknown"
}
