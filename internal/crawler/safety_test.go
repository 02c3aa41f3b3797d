package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"testing"
)

// stubResolver maps hostnames to fixed addresses.
type stubResolver struct {
	hosts map[string][]string
}

func (s *stubResolver) LookupNetIP(_ context.Context, _ string, host string) ([]netip.Addr, error) {
	raw, ok := s.hosts[host]
	if !ok {
		return nil, fmt.Errorf("no such host %q", host)
	}
	addrs := make([]netip.Addr, 0, len(raw))
	for _, r := range raw {
		addrs = append(addrs, netip.MustParseAddr(r))
	}
	return addrs, nil
}

func TestValidateURL(t *testing.T) {
	resolver := &stubResolver{hosts: map[string][]string{
		"example.com":          {"93.184.216.34"},
		"blog.example.com":     {"93.184.216.35"},
		"internal.example.com": {"10.0.0.5"},
		"mixed.example.com":    {"93.184.216.34", "192.168.1.10"},
		"metadata.example.com": {"169.254.169.254"},
		"six.example.com":      {"2606:2800:220:1:248:1893:25c8:1946"},
		"ula.example.com":      {"fd12:3456:789a::1"},
		"mapped.example.com":   {"::ffff:127.0.0.1"},
	}}

	tests := []struct {
		name     string
		url      string
		baseHost string
		blocked  bool
	}{
		{
			name:     "public host allowed",
			url:      "https://example.com/about",
			baseHost: "example.com",
			blocked:  false,
		},
		{
			name:     "subdomain allowed",
			url:      "https://blog.example.com/post",
			baseHost: "example.com",
			blocked:  false,
		},
		{
			name:     "public ipv6 allowed",
			url:      "https://six.example.com/",
			baseHost: "example.com",
			blocked:  false,
		},
		{
			name:     "off-origin host blocked",
			url:      "https://evil.com/",
			baseHost: "example.com",
			blocked:  true,
		},
		{
			name:     "lookalike domain blocked",
			url:      "https://notexample.com/",
			baseHost: "example.com",
			blocked:  true,
		},
		{
			name:    "loopback literal blocked",
			url:     "http://127.0.0.1:8080/admin",
			blocked: true,
		},
		{
			name:    "private literal blocked",
			url:     "http://192.168.1.1/",
			blocked: true,
		},
		{
			name:    "metadata literal blocked",
			url:     "http://169.254.169.254/latest/meta-data/",
			blocked: true,
		},
		{
			name:    "cgnat literal blocked",
			url:     "http://100.64.0.1/",
			blocked: true,
		},
		{
			name:    "ipv6 loopback literal blocked",
			url:     "http://[::1]/",
			blocked: true,
		},
		{
			name:    "v4-mapped loopback literal blocked",
			url:     "http://[::ffff:127.0.0.1]/",
			blocked: true,
		},
		{
			name:     "host resolving private blocked",
			url:      "https://internal.example.com/",
			baseHost: "example.com",
			blocked:  true,
		},
		{
			name:     "host resolving to mixed addresses blocked",
			url:      "https://mixed.example.com/",
			baseHost: "example.com",
			blocked:  true,
		},
		{
			name:     "host resolving to metadata blocked",
			url:      "https://metadata.example.com/",
			baseHost: "example.com",
			blocked:  true,
		},
		{
			name:     "host resolving to unique-local ipv6 blocked",
			url:      "https://ula.example.com/",
			baseHost: "example.com",
			blocked:  true,
		},
		{
			name:     "host resolving to v4-mapped loopback blocked",
			url:      "https://mapped.example.com/",
			baseHost: "example.com",
			blocked:  true,
		},
		{
			name:    "file scheme blocked",
			url:     "file:///etc/passwd",
			blocked: true,
		},
		{
			name:    "gopher scheme blocked",
			url:     "gopher://example.com/",
			blocked: true,
		},
		{
			name:    "unresolvable host blocked",
			url:     "https://nonexistent.invalid/",
			blocked: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := validateURL(context.Background(), resolver, tt.url, tt.baseHost)

			if tt.blocked {
				if err == nil {
					t.Fatalf("expected %q to be blocked", tt.url)
				}
				if !errors.Is(err, ErrBlocked) {
					t.Errorf("expected ErrBlocked, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("expected %q to be allowed, got %v", tt.url, err)
			}
			if u == nil {
				t.Fatal("expected parsed URL")
			}
		})
	}
}

func TestCheckAddr(t *testing.T) {
	tests := []struct {
		addr    string
		blocked bool
	}{
		{"93.184.216.34", false},
		{"8.8.8.8", false},
		{"2606:4700::1111", false},
		{"127.0.0.1", true},
		{"127.255.255.255", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"192.168.0.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"::", true},
		{"fe80::1", true},
		{"fd00::1", true},
		{"::ffff:10.0.0.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := checkAddr(netip.MustParseAddr(tt.addr))
			if tt.blocked && err == nil {
				t.Errorf("expected %s to be blocked", tt.addr)
			}
			if !tt.blocked && err != nil {
				t.Errorf("expected %s to be allowed, got %v", tt.addr, err)
			}
		})
	}
}

func TestSameOrSubdomain(t *testing.T) {
	tests := []struct {
		host     string
		base     string
		expected bool
	}{
		{"example.com", "example.com", true},
		{"EXAMPLE.COM", "example.com", true},
		{"blog.example.com", "example.com", true},
		{"a.b.example.com", "example.com", true},
		{"example.com.", "example.com", true},
		{"notexample.com", "example.com", false},
		{"example.com.evil.com", "example.com", false},
		{"evil.com", "example.com", false},
	}

	for _, tt := range tests {
		if got := sameOrSubdomain(tt.host, tt.base); got != tt.expected {
			t.Errorf("sameOrSubdomain(%q, %q) = %v, want %v", tt.host, tt.base, got, tt.expected)
		}
	}
}
