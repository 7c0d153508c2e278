package fingerprint

import (
	"net"
	"net/url"
	"strings"
)

// Host extracts the lowercase host of a URL without a leading "www.".
// Bare hosts (no scheme) are accepted. Returns "" when nothing usable is found.
func Host(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return NormalizeDomain(u.Hostname())
}

// NormalizeDomain lowercases a domain and strips a trailing dot and "www." prefix.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimSuffix(d, ".")
	return strings.TrimPrefix(d, "www.")
}

// TLD returns the last label of a host ("com" for "blog.example.com").
// IP addresses and single-label hosts have no TLD.
func TLD(host string) string {
	h := NormalizeDomain(host)
	if h == "" || net.ParseIP(h) != nil {
		return ""
	}
	i := strings.LastIndex(h, ".")
	if i < 0 || i == len(h)-1 {
		return ""
	}
	return h[i+1:]
}
