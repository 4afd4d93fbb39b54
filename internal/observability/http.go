package observability

import (
	"net"
	"net/http"
	"strings"
)

// ClientMeta is what ws and audit events record about the caller.
type ClientMeta struct {
	DeviceID  string
	IP        string
	RequestID string
}

// ClientMetaFromRequest reads the caller's device, address and request id.
// fallbackRequestID is used when the request carries no X-Request-ID, e.g.
// one minted by the request id middleware.
func ClientMetaFromRequest(r *http.Request, fallbackRequestID string) ClientMeta {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = fallbackRequestID
	}
	return ClientMeta{
		DeviceID:  r.Header.Get("X-Device-Id"),
		IP:        IPFromRequest(r),
		RequestID: requestID,
	}
}

// IPFromRequest prefers the first proxy hop, then X-Real-IP, then the peer.
func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
