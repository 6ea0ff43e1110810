// Package ssrfguard validates outbound health-check URLs against an
// allowlist of host patterns/CIDRs before the HTTP fetcher is ever allowed
// to dial them. It generalizes the teacher's internal/validation's
// SSRFValidator (which only supported CIDR-based private-network
// allowances) with literal-hostname and wildcard-suffix allowlist entries,
// plus an injectable DNS resolver so tests never touch the real network.
package ssrfguard

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Resolver looks up the IP addresses for host. The zero value of Guard
// uses net.DefaultResolver.LookupIPAddr.
type Resolver func(ctx context.Context, host string) ([]net.IPAddr, error)

// Guard approves or rejects outbound URLs per the allowlist rules.
type Guard struct {
	resolver  Resolver
	allowlist []allowEntry
}

type allowEntryKind int

const (
	allowLiteral allowEntryKind = iota
	allowWildcard
	allowCIDR
)

type allowEntry struct {
	kind   allowEntryKind
	host   string // lower-cased, for literal/wildcard
	suffix string // for wildcard, the ".suffix" to match
	cidr   *net.IPNet
}

// New builds a Guard from a comma-free list of allowlist patterns: literal
// hostnames, "*.suffix" wildcards, or CIDR blocks. A nil resolver defaults
// to the system resolver.
func New(allowlist []string, resolver Resolver) *Guard {
	g := &Guard{resolver: resolver}
	if g.resolver == nil {
		g.resolver = defaultResolver
	}
	for _, raw := range allowlist {
		pattern := strings.TrimSpace(raw)
		if pattern == "" {
			continue
		}
		if _, ipnet, err := net.ParseCIDR(pattern); err == nil {
			g.allowlist = append(g.allowlist, allowEntry{kind: allowCIDR, cidr: ipnet})
			continue
		}
		lower := strings.ToLower(pattern)
		if strings.HasPrefix(lower, "*.") {
			g.allowlist = append(g.allowlist, allowEntry{kind: allowWildcard, suffix: lower[1:]})
			continue
		}
		g.allowlist = append(g.allowlist, allowEntry{kind: allowLiteral, host: lower})
	}
	return g
}

func defaultResolver(ctx context.Context, host string) ([]net.IPAddr, error) {
	return net.DefaultResolver.LookupIPAddr(ctx, host)
}

// Result is the outcome of a single Check call.
type Result struct {
	Approved bool
	Reason   string
}

func approved() Result    { return Result{Approved: true} }
func rejected(reason string, args ...any) Result {
	return Result{Approved: false, Reason: fmt.Sprintf(reason, args...)}
}

// Check validates rawURL against the rules in order: scheme, resolution,
// allowlist.
func (g *Guard) Check(ctx context.Context, rawURL string) Result {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rejected("invalid URL: %v", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return rejected("scheme %q is not http or https", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return rejected("URL has no host")
	}

	var addrs []net.IP
	if literal := net.ParseIP(host); literal != nil {
		addrs = []net.IP{literal}
	} else {
		resolve := g.resolver
		if resolve == nil {
			resolve = defaultResolver
		}
		resolved, err := resolve(ctx, host)
		if err != nil {
			return rejected("host %q did not resolve: %v", host, err)
		}
		if len(resolved) == 0 {
			return rejected("host %q did not resolve to any address", host)
		}
		for _, a := range resolved {
			addrs = append(addrs, a.IP)
		}
	}

	for _, ip := range addrs {
		if isBlockedAddress(ip) && !g.cidrAllows(ip) {
			return rejected("address %s for host %q is in a blocked range", ip, host)
		}
	}

	// An empty allowlist approves any address that survived the blocklist
	// check above (rule 4). A non-empty allowlist becomes an explicit
	// safelist: every request must match one of its entries.
	if len(g.allowlist) == 0 {
		return approved()
	}
	if g.hostOrAddrAllowed(host, addrs) {
		return approved()
	}
	return rejected("host %q matches no allowlist entry", host)
}

func (g *Guard) cidrAllows(ip net.IP) bool {
	for _, e := range g.allowlist {
		if e.kind == allowCIDR && e.cidr.Contains(ip) {
			return true
		}
	}
	return false
}

func (g *Guard) hostOrAddrAllowed(host string, addrs []net.IP) bool {
	lowerHost := strings.ToLower(host)
	for _, e := range g.allowlist {
		switch e.kind {
		case allowLiteral:
			if e.host == lowerHost {
				return true
			}
		case allowWildcard:
			if strings.HasSuffix(lowerHost, e.suffix) {
				return true
			}
		case allowCIDR:
			for _, ip := range addrs {
				if e.cidr.Contains(ip) {
					return true
				}
			}
		}
	}
	return false
}

// isBlockedAddress reports whether ip falls in a private/loopback/
// link-local/multicast/unspecified/IPv4-mapped range that SSRF guards must
// reject absent an explicit allowlist match.
func isBlockedAddress(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		for _, cidr := range blockedIPv4 {
			if cidr.Contains(ip4) {
				return true
			}
		}
		return false
	}

	for _, cidr := range blockedIPv6 {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

var blockedIPv4 = mustParseCIDRs(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"169.254.169.254/32",
	"100.100.100.200/32",
	"192.0.0.0/24",
	"0.0.0.0/8",
)

var blockedIPv6 = mustParseCIDRs(
	"::1/128",
	"::/128",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
	"::ffff:0:0/96",
	"64:ff9b::/96",
	"2001:db8::/32",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}
