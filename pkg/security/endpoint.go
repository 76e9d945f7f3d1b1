// Package security checks the service endpoints the assistant is configured
// to call before any credentials are sent to them.
package security

import (
	"fmt"
	"net/netip"
	"net/url"
	"sort"
	"strings"
)

// EndpointPolicy relaxes the default https-only, public-network rule.
type EndpointPolicy struct {
	AllowHTTP          bool
	AllowLocalNetworks bool
}

// EndpointError names the configuration key whose URL was rejected.
type EndpointError struct {
	Key    string
	URL    string
	Reason string
}

func (e *EndpointError) Error() string {
	return "endpoint " + e.Key + " (" + e.URL + "): " + e.Reason
}

// ValidateEndpoint checks rawURL against p. IP literals are checked without
// DNS lookups; hostnames only against the localhost suffixes.
func ValidateEndpoint(key, rawURL string, p EndpointPolicy) error {
	reject := func(format string, args ...interface{}) error {
		return &EndpointError{Key: key, URL: rawURL, Reason: fmt.Sprintf(format, args...)}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return reject("not a URL: %v", err)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !p.AllowHTTP {
			return reject("plain http is not allowed")
		}
	default:
		return reject("unsupported scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return reject("missing host")
	}
	local := host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local")
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.Zone() != "" && !p.AllowLocalNetworks {
			return reject("zoned address %q", host)
		}
		addr = addr.Unmap()
		if addr.IsUnspecified() || addr.IsMulticast() {
			return reject("reserved address %q", host)
		}
		local = addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()
	}
	if local && !p.AllowLocalNetworks {
		return reject("local network target %q", host)
	}
	return nil
}

// ValidateEndpoints checks every key/URL pair and returns the first failure.
// Empty URLs are skipped: they fall back to the built-in defaults.
func ValidateEndpoints(endpoints map[string]string, p EndpointPolicy) error {
	keys := make([]string, 0, len(endpoints))
	for k := range endpoints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if endpoints[k] == "" {
			continue
		}
		if err := ValidateEndpoint(k, endpoints[k], p); err != nil {
			return err
		}
	}
	return nil
}
