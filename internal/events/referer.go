package events

import (
	"net/netip"
	"net/url"
	"strings"
)

// NormalizeReferer reduces a referer to "scheme://host". It returns nil when the
// referer cannot be parsed, points at a loopback, private or local host, or is
// the request's own host (internal navigation).
func NormalizeReferer(raw, requestHost string) *string {
	origin, hostname := parseOrigin(raw)
	if origin == "" {
		return nil
	}
	if isLocalHost(hostname) {
		return nil
	}
	if IsSelfReferral(hostname, hostnameOf(requestHost)) {
		return nil
	}
	return &origin
}

// RefererOrigin returns "scheme://host" for any parsable referer, "" otherwise.
func RefererOrigin(raw string) string {
	origin, _ := parseOrigin(raw)
	return origin
}

// IsSelfReferral checks if a referer hostname matches the host serving the request.
// Only exact matches count.
func IsSelfReferral(hostname, requestHostname string) bool {
	if hostname == "" || requestHostname == "" {
		return false
	}
	return strings.EqualFold(hostname, requestHostname)
}

func parseOrigin(raw string) (origin, hostname string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", ""
	}

	hostname = strings.ToLower(u.Hostname())
	if hostname == "" {
		return "", ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), hostname
}

func hostnameOf(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if strings.Contains(host, "://") {
		_, hostname := parseOrigin(host)
		return hostname
	}
	if u, err := url.Parse("http://" + host); err == nil {
		return strings.ToLower(u.Hostname())
	}
	return strings.ToLower(host)
}

func isLocalHost(hostname string) bool {
	if hostname == "localhost" ||
		strings.HasSuffix(hostname, ".localhost") ||
		strings.HasSuffix(hostname, ".local") {
		return true
	}

	addr, err := netip.ParseAddr(hostname)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified()
}
