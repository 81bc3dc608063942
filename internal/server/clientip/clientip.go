// Package clientip resolves the address of the end client. Forwarding
// headers are honoured only when the TCP peer is a configured proxy.
package clientip

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// Resolver holds the trusted proxy ranges. A nil or empty Resolver trusts
// nobody and always answers with the peer address.
type Resolver struct {
	trusted []netip.Prefix
}

// NewResolver parses proxies given as CIDR ranges or single addresses.
func NewResolver(proxies []string) (*Resolver, error) {
	r := &Resolver{}
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "/") {
			addr, err := netip.ParseAddr(p)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", p, err)
			}
			r.trusted = append(r.trusted, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(p)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", p, err)
		}
		r.trusted = append(r.trusted, prefix.Masked())
	}
	return r, nil
}

func (r *Resolver) trusts(addr netip.Addr) bool {
	if r == nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range r.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolve returns the client address for a connection from peer carrying
// the given X-Forwarded-For and X-Real-IP values. X-Forwarded-For is walked
// from the right, skipping trusted hops; the first untrusted hop is the
// client.
func (r *Resolver) Resolve(peer, forwardedFor, realIP string) string {
	host := HostOnly(peer)
	addr, err := netip.ParseAddr(host)
	if err != nil || !r.trusts(addr) {
		return host
	}

	if forwardedFor != "" {
		hops := strings.Split(forwardedFor, ",")
		client := ""
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			client = hop.Unmap().String()
			if !r.trusts(hop) {
				return client
			}
		}
		if client != "" {
			return client
		}
	}

	if ip, err := netip.ParseAddr(strings.TrimSpace(realIP)); err == nil {
		return ip.Unmap().String()
	}
	return host
}

// HostOnly strips the port from addr when it has one.
func HostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
