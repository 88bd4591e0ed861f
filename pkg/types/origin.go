package types

import (
	"net"
	"net/url"
	"strings"
)

// StripHostPort removes the port from a host string, handling IPv6 brackets.
func StripHostPort(host string) string {
	if host == "" {
		return host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	}
	return host
}

// OriginHost extracts the hostname from an origin URL string.
func OriginHost(origin string) string {
	parsed, err := url.Parse(origin)
	if err == nil && parsed.Host != "" {
		return StripHostPort(parsed.Host)
	}
	return StripHostPort(origin)
}

// AllowedOrigin reports whether origin matches one of the allowed patterns.
// Patterns may be "*", a full origin, a bare host, or "*.suffix". An empty
// allow list means same-origin only.
func AllowedOrigin(origin, host string, allowed []string) bool {
	if origin == "" {
		return true
	}
	if len(allowed) == 0 {
		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(StripHostPort(parsed.Host), StripHostPort(host))
	}

	originHost := OriginHost(origin)
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
		if strings.HasPrefix(a, "*.") {
			suffix := strings.TrimPrefix(a, "*.")
			if originHost != "" && (originHost == suffix || strings.HasSuffix(originHost, "."+suffix)) {
				return true
			}
		}
		if h := OriginHost(a); h != "" && originHost != "" && strings.EqualFold(h, originHost) {
			return true
		}
	}
	return false
}
