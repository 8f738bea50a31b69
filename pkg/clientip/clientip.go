// Package clientip derives the client address used for rate limiting and logs.
package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/pkg/errors"
)

// RealClientIP returns the client IP of r. It reads r.RemoteAddr only; proxy
// headers are honoured upstream by RealIP, for trusted proxies only.
func RealClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return addr
	}
	return ip.Unmap().String()
}

// LimitKey groups addresses that belong to one client: the IPv4 address
// itself, or the /64 network of an IPv6 address.
func LimitKey(r *http.Request) string {
	raw := RealClientIP(r)
	ip, err := netip.ParseAddr(raw)
	if err != nil || ip.Is4() {
		return raw
	}
	prefix, err := ip.Prefix(64)
	if err != nil {
		return raw
	}
	return prefix.String()
}

// ParseTrusted parses proxy addresses and CIDR prefixes. Blank entries are skipped.
func ParseTrusted(list []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range list {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, errors.Wrapf(err, "trusted proxy %q", raw)
			}
			out = append(out, p.Masked())
			continue
		}
		ip, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "trusted proxy %q", raw)
		}
		ip = ip.Unmap()
		out = append(out, netip.PrefixFrom(ip, ip.BitLen()))
	}
	return out, nil
}

func isTrusted(trusted []netip.Prefix, addr string) bool {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	for _, p := range trusted {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// RealIP rewrites r.RemoteAddr from X-Forwarded-For, but only when the socket
// peer is one of the trusted proxies. The client is the rightmost hop that is
// not itself trusted. Requests from anyone else keep their socket address.
func RealIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(trusted) > 0 && isTrusted(trusted, RealClientIP(r)) {
				if client := forwardedClient(trusted, r.Header.Values("X-Forwarded-For")); client != "" {
					r.RemoteAddr = net.JoinHostPort(client, "0")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forwardedClient(trusted []netip.Prefix, headers []string) string {
	var hops []string
	for _, h := range headers {
		for _, hop := range strings.Split(h, ",") {
			hops = append(hops, strings.TrimSpace(hop))
		}
	}
	for i := len(hops) - 1; i >= 0; i-- {
		ip, err := netip.ParseAddr(hops[i])
		if err != nil {
			return ""
		}
		if !isTrusted(trusted, ip.String()) {
			return ip.Unmap().String()
		}
	}
	return ""
}
