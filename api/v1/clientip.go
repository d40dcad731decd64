package v1

import (
	"net"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// proxyHeaders are consulted after X-Forwarded-For, in order.
var proxyHeaders = []string{
	"X-Real-IP",
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Client-IP",
}

// clientIP returns the first public address found in proxy headers, then the
// peer address. When no public address is known it returns the peer address
// as is, which keeps local development traffic attributable.
func clientIP(c *fiber.Ctx) string {
	if ip := selectPreferredIP(strings.Split(c.Get(fiber.HeaderXForwardedFor), ",")); ip != "" {
		return ip
	}

	for _, header := range proxyHeaders {
		if ip := selectPreferredIP([]string{c.Get(header)}); ip != "" {
			return ip
		}
	}

	if forwarded := c.Get("Forwarded"); forwarded != "" {
		if ip := selectPreferredIP(parseForwardedHeader(forwarded)); ip != "" {
			return ip
		}
	}

	for _, raw := range []string{c.Context().RemoteAddr().String(), c.IP()} {
		if addr, ok := normalizeIP(raw); ok && !addr.IsUnspecified() {
			return addr.String()
		}
	}
	return ""
}

func isPublic(addr netip.Addr) bool {
	return addr.IsValid() &&
		!addr.IsPrivate() &&
		!addr.IsLoopback() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsUnspecified()
}

// selectPreferredIP returns the first public IPv4 address in values, else the
// first public IPv6 address.
func selectPreferredIP(values []string) string {
	var ipv6Fallback string

	for _, raw := range values {
		addr, ok := normalizeIP(raw)
		if !ok || !isPublic(addr) {
			continue
		}
		if addr.Is4() {
			return addr.String()
		}
		if ipv6Fallback == "" {
			ipv6Fallback = addr.String()
		}
	}

	return ipv6Fallback
}

// normalizeIP accepts bare, quoted, bracketed, zoned and host:port forms.
func normalizeIP(raw string) (netip.Addr, bool) {
	clean := strings.Trim(strings.TrimSpace(raw), `"`)
	if clean == "" {
		return netip.Addr{}, false
	}

	if addrPort, err := netip.ParseAddrPort(clean); err == nil {
		return addrPort.Addr().WithZone("").Unmap(), true
	}

	clean = strings.TrimSuffix(strings.TrimPrefix(clean, "["), "]")
	if addr, err := netip.ParseAddr(clean); err == nil {
		return addr.WithZone("").Unmap(), true
	}

	if host, _, err := net.SplitHostPort(clean); err == nil && host != clean {
		return normalizeIP(host)
	}
	return netip.Addr{}, false
}

// parseForwardedHeader extracts the for= values of an RFC 7239 Forwarded header.
func parseForwardedHeader(header string) []string {
	var candidates []string
	for _, entry := range strings.Split(header, ",") {
		for _, part := range strings.Split(entry, ";") {
			part = strings.TrimSpace(part)
			if len(part) > 4 && strings.EqualFold(part[:4], "for=") {
				candidates = append(candidates, part[4:])
			}
		}
	}
	return candidates
}
