package observability

import (
	"net"
	"net/http"
	"strings"
)

// Headers carrying client identity.
const (
	HeaderDeviceID  = "X-Device-Id"
	HeaderRequestID = "X-Request-Id"
)

// Identity is what the request headers say about the client.
type Identity struct {
	DeviceID  string
	RequestID string
	IP        string
}

// IdentityFromRequest collects the client identity of r.
func IdentityFromRequest(r *http.Request) Identity {
	return Identity{
		DeviceID:  r.Header.Get(HeaderDeviceID),
		RequestID: r.Header.Get(HeaderRequestID),
		IP:        clientIP(r),
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket peer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
