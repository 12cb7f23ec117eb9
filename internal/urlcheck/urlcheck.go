// Package urlcheck validates outbound URLs before the server redirects to
// them or POSTs webhook payloads at them. It rejects non-HTTP schemes and
// hosts that resolve into private or loopback address space.
package urlcheck

import (
	"net/url"
	"strconv"
	"strings"
)

// IsRedirectURLAllowed reports whether url is safe to use as a click
// redirect target. Only http and https URLs pointing at public hosts pass.
func IsRedirectURLAllowed(raw string) bool {
	return isPublicHTTPURL(raw)
}

// IsWebhookURLSafe reports whether url is safe to use as a webhook
// destination. The policy matches redirect validation: http or https only,
// no private or local hosts.
func IsWebhookURLSafe(raw string) bool {
	return isPublicHTTPURL(raw)
}

func isPublicHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if host == "" {
		return false
	}
	return !isPrivateOrLocalHost(host)
}

func isPrivateOrLocalHost(hostname string) bool {
	host := strings.ToLower(hostname)
	if host == "localhost" || host == "127.0.0.1" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if strings.HasPrefix(host, "0.") || host == "0.0.0.0" {
		return true
	}
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return false
	}
	octets := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return false
		}
		octets[i] = n
	}
	switch {
	case octets[0] == 10:
		return true
	case octets[0] == 172 && octets[1] >= 16 && octets[1] <= 31:
		return true
	case octets[0] == 192 && octets[1] == 168:
		return true
	case octets[0] == 169 && octets[1] == 254:
		return true
	}
	return false
}
