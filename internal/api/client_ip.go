package api

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIPResolver determines the client address recorded on sessions and
// refresh tokens. Forwarding headers are honored only when the immediate peer
// sits inside a trusted proxy range, otherwise a client could spoof the
// address that ends up in the audit trail.
type ClientIPResolver struct {
	trustedProxies []netip.Prefix
}

func NewClientIPResolver(trustedProxyCIDRs []string) (*ClientIPResolver, error) {
	resolver := &ClientIPResolver{}

	for _, raw := range trustedProxyCIDRs {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}

		if addr, err := netip.ParseAddr(value); err == nil {
			resolver.trustedProxies = append(resolver.trustedProxies, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}

		prefix, err := netip.ParsePrefix(value)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy CIDR %q: %w", value, err)
		}
		resolver.trustedProxies = append(resolver.trustedProxies, prefix)
	}

	return resolver, nil
}

func (r *ClientIPResolver) Resolve(req *http.Request) string {
	peer, ok := parseAddrFromRemoteAddr(req.RemoteAddr)
	if !ok {
		return "unknown"
	}

	if r.isTrustedProxy(peer) {
		if forwarded, ok := firstForwardedAddr(req.Header.Get("X-Forwarded-For")); ok {
			return forwarded.String()
		}
		if realIP, ok := parseAddr(req.Header.Get("X-Real-IP")); ok {
			return realIP.String()
		}
	}

	return peer.String()
}

func (r *ClientIPResolver) isTrustedProxy(addr netip.Addr) bool {
	for _, prefix := range r.trustedProxies {
		if prefix.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}

func firstForwardedAddr(header string) (netip.Addr, bool) {
	for _, part := range strings.Split(header, ",") {
		if addr, ok := parseAddr(part); ok {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

func parseAddrFromRemoteAddr(remoteAddr string) (netip.Addr, bool) {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return parseAddr(host)
	}
	return parseAddr(remoteAddr)
}

func parseAddr(value string) (netip.Addr, bool) {
	value = strings.TrimSpace(value)
	value = strings.Trim(value, `"`)
	value = strings.Trim(value, "[]")
	if value == "" {
		return netip.Addr{}, false
	}

	addr, err := netip.ParseAddr(value)
	if err != nil {
		if host, _, splitErr := net.SplitHostPort(value); splitErr == nil {
			return parseAddr(host)
		}
		return netip.Addr{}, false
	}
	return addr, true
}
