package logic

import (
	"net"
	"net/http"
	"strings"

	"github.com/avct/uasurfer"

	"github.com/klimakov/adrotator/internal/geoip"
)

// RequestInfo carries the per-request context used for uid derivation and
// raw event enrichment.
type RequestInfo struct {
	IP         string
	UserAgent  string
	Referer    string
	DeviceType string
	Country    string
}

// DeviceTypeFromUA maps a raw User-Agent string to a coarse device class.
func DeviceTypeFromUA(uaString string) string {
	u := uasurfer.Parse(uaString)
	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		return "desktop"
	case uasurfer.DevicePhone:
		return "mobile"
	case uasurfer.DeviceTablet:
		return "tablet"
	default:
		return "other"
	}
}

// ClientIP extracts the originating client address from a request. It
// prefers X-Forwarded-For (first hop), then X-Real-IP, then RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx != -1 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ResolveRequestInfo extracts client address, device type and country from
// an HTTP request. The geo resolver may be nil.
func ResolveRequestInfo(r *http.Request, geo *geoip.Resolver) RequestInfo {
	info := RequestInfo{
		IP:        ClientIP(r),
		UserAgent: r.Header.Get("User-Agent"),
		Referer:   r.Header.Get("Referer"),
	}
	info.DeviceType = DeviceTypeFromUA(info.UserAgent)
	if ip := net.ParseIP(info.IP); ip != nil {
		info.Country = geo.Country(ip)
	}
	return info
}
