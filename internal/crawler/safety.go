package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// ErrBlocked marks a URL rejected by the safety checks. Callers treat it as a
// security failure: the migration fails hard and is never retried.
var ErrBlocked = errors.New("url blocked by safety policy")

// blockedPrefixes are address ranges the crawler must never reach: loopback,
// RFC1918 private, link-local (which covers the cloud metadata address
// 169.254.169.254), carrier-grade NAT, and their IPv6 counterparts.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("::/128"),
}

// hostResolver abstracts DNS resolution so tests can stub it.
type hostResolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

var defaultResolver hostResolver = net.DefaultResolver

// ValidateURL checks a candidate URL before any network request is issued.
// Every fetch, including each redirect hop, goes through this check.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rawURL: candidate URL.
//   - baseHost: original domain; non-empty restricts the host to that domain
//     or a subdomain of it.
// Returns:
//   - *url.URL: parsed URL if it passes all checks.
//   - error: ErrBlocked-wrapped error describing the rejection.
func ValidateURL(ctx context.Context, rawURL, baseHost string) (*url.URL, error) {
	return validateURL(ctx, defaultResolver, rawURL, baseHost)
}

func validateURL(ctx context.Context, resolver hostResolver, rawURL, baseHost string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable url %q", ErrBlocked, rawURL)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q not allowed", ErrBlocked, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrBlocked)
	}

	if baseHost != "" && !sameOrSubdomain(host, baseHost) {
		return nil, fmt.Errorf("%w: host %q outside origin %q", ErrBlocked, host, baseHost)
	}

	if _, err := resolveAllowed(ctx, resolver, host); err != nil {
		return nil, err
	}

	return u, nil
}

// resolveAllowed resolves a host and range-checks every returned address. A
// single blocked address rejects the host outright. A literal IP skips DNS
// but still goes through the range checks.
func resolveAllowed(ctx context.Context, resolver hostResolver, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		if err := checkAddr(addr); err != nil {
			return nil, err
		}
		return []netip.Addr{addr.Unmap()}, nil
	}

	addrs, err := resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot resolve %q: %v", ErrBlocked, host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %q resolves to no addresses", ErrBlocked, host)
	}
	for _, addr := range addrs {
		if err := checkAddr(addr); err != nil {
			return nil, err
		}
	}
	return addrs, nil
}

// safeDialContext returns a dial function that resolves and range-checks the
// target at connection time, then dials the checked address directly. DNS
// answers that change between URL validation and the actual request cannot
// steer the connection into a blocked range.
func safeDialContext(resolver hostResolver) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed dial address %q", ErrBlocked, addr)
		}
		addrs, err := resolveAllowed(ctx, resolver, host)
		if err != nil {
			return nil, err
		}
		var lastErr error
		for _, ip := range addrs {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}

// checkAddr rejects an address in any blocked range. IPv4-mapped IPv6 forms
// are unmapped first so ::ffff:127.0.0.1 cannot slip through.
func checkAddr(addr netip.Addr) error {
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsPrivate() || addr.IsMulticast() {
		return fmt.Errorf("%w: address %s in restricted range", ErrBlocked, addr)
	}
	for _, prefix := range blockedPrefixes {
		if prefix.Contains(addr) {
			return fmt.Errorf("%w: address %s in restricted range %s", ErrBlocked, addr, prefix)
		}
	}
	return nil
}

// sameOrSubdomain reports whether host equals base or is a subdomain of it.
func sameOrSubdomain(host, base string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	base = strings.ToLower(strings.TrimSuffix(base, "."))
	return host == base || strings.HasSuffix(host, "."+base)
}
