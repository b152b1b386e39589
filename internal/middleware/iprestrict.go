package middleware

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/borui/borui/internal/logutil"
)

// ParseAllowList parses a comma-separated list of IPs and CIDR ranges.
// Single IPs become /32 or /128 networks. Empty input returns nil, which
// allows everyone.
func ParseAllowList(list string) ([]*net.IPNet, error) {
	var networks []*net.IPNet
	for _, part := range strings.Split(list, ",") {
		entry := strings.TrimSpace(part)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
			}
			networks = append(networks, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address %q", entry)
		}
		bits := 128
		if ip.To4() != nil {
			bits = 32
		}
		mask := net.CIDRMask(bits, bits)
		networks = append(networks, &net.IPNet{IP: ip.Mask(mask), Mask: mask})
	}
	return networks, nil
}

// AllowIPs rejects requests whose source address is outside networks with
// 403. It must run after chi's RealIP so proxied addresses are honoured.
// A nil list passes everything through.
func AllowIPs(networks []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(networks) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ipAllowed(remoteIP(r), networks) {
				log.Printf("[api] blocked request from %s", logutil.SanitizeForLog(r.RemoteAddr))
				writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Source address not allowed"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteIP(r *http.Request) net.IP {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.ParseIP(strings.TrimSpace(host))
}

func ipAllowed(ip net.IP, networks []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, n := range networks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
