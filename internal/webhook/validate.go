package webhook

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned when a webhook destination is malformed or
// points at internal infrastructure.
var ErrInvalidURL = errors.New("invalid webhook URL")

var (
	broadcast4    = netip.MustParseAddr("255.255.255.255")
	documentation = []netip.Prefix{
		netip.MustParsePrefix("192.0.2.0/24"),
		netip.MustParsePrefix("198.51.100.0/24"),
		netip.MustParsePrefix("203.0.113.0/24"),
		netip.MustParsePrefix("2001:db8::/32"),
	}
)

// ValidateURL rejects destinations that are not plain http(s) or that name
// a private, loopback, link-local, broadcast, documentation or unspecified
// address. Host names are only checked against internal-only suffixes; no
// DNS lookup happens here.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q is not allowed, use http or https", ErrInvalidURL, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if blockedAddr(addr) {
			return fmt.Errorf("%w: %s is a private or reserved address", ErrInvalidURL, host)
		}
		return nil
	}

	name := strings.TrimSuffix(strings.ToLower(host), ".")
	if name == "localhost" || strings.HasSuffix(name, ".localhost") ||
		strings.HasSuffix(name, ".local") || strings.HasSuffix(name, ".internal") {
		return fmt.Errorf("%w: host %q is internal", ErrInvalidURL, host)
	}
	return nil
}

func blockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap().WithZone("")
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr == broadcast4 {
		return true
	}
	for _, p := range documentation {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
