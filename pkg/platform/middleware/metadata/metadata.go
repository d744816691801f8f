package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"kiosk/pkg/requestcontext"
)

// HeaderKioskID identifies a self-service kiosk terminal.
const HeaderKioskID = "X-Kiosk-ID"

// ClientMetadata extracts client IP address, User-Agent and a device label from the
// request and adds them to the context for use by handlers and services.
// This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIPFromRequest(r)
		userAgent := r.Header.Get("User-Agent")
		device := DeviceLabel(r.Header.Get(HeaderKioskID), userAgent)

		ctx := requestcontext.WithClientMetadata(r.Context(), ip, userAgent, device)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DeviceLabel names the calling device. Kiosk terminals identify themselves with
// X-Kiosk-ID; other callers are labelled browser/OS from the User-Agent.
func DeviceLabel(kioskID, userAgent string) string {
	if kioskID = strings.TrimSpace(kioskID); kioskID != "" {
		return "kiosk:" + kioskID
	}
	if userAgent == "" {
		return "unknown"
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return "bot"
	}
	browser, _ := ua.Browser()
	os := ua.OSInfo().Name
	switch {
	case browser != "" && os != "":
		return browser + "/" + os
	case browser != "":
		return browser
	default:
		return "unknown"
	}
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

	// RemoteAddr is "ip:port"; IPv6 is "[::1]:port"
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}

	return "unknown"
}
