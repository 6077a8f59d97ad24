package ssrf

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// alwaysBlockedHostnames can never be reached through a gateway baseUrl, even
// when an operator has allowlisted it: these are cloud metadata endpoints
// that hand out instance credentials to whatever can reach them.
var alwaysBlockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
	"metadata.internal":        true,
}

// alwaysBlockedIPs mirrors alwaysBlockedHostnames for the handful of
// well-known metadata IPs cloud providers assign regardless of hostname.
var alwaysBlockedIPs = map[string]bool{
	"169.254.169.254": true, // AWS/GCP/Azure instance metadata
	"100.100.100.200": true, // Alibaba Cloud instance metadata
}

// dangerousSuffixes contains hostname suffixes that indicate internal/local resources.
var dangerousSuffixes = []string{
	".localhost",
	".local",
	".internal",
}

// IsBlockedHostname reports whether hostname is on the unconditional
// metadata/loopback blocklist, independent of any operator allowlist.
func IsBlockedHostname(hostname string) bool {
	normalized := normalizeHostname(hostname)
	if normalized == "" {
		return false
	}

	if alwaysBlockedHostnames[normalized] {
		return true
	}

	for _, suffix := range dangerousSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			return true
		}
	}

	return false
}

// ValidatePublicHostname validates that a hostname is safe for external
// requests: not on the metadata/loopback blocklist, and does not resolve to
// a private IP address. Used for runtime adapters with no legitimate reason
// to ever target the host's own network.
func ValidatePublicHostname(hostname string) error {
	return validateHostname(hostname, nil)
}

// ValidateGatewayHostname validates a gateway-runtime hook's baseUrl
// hostname. Unlike ValidatePublicHostname, it permits hostnames the operator
// has explicitly named in allowedPrivateHosts (e.g. a sidecar container's
// DNS name on the same compose network) to resolve to a private address,
// since gateway hooks legitimately proxy to services living next to
// forgehostd. Cloud metadata endpoints and loopback are never allowlistable.
func ValidateGatewayHostname(hostname string, allowedPrivateHosts []string) error {
	normalized := normalizeHostname(hostname)
	if normalized == "" {
		return errors.New("invalid hostname: empty after normalization")
	}

	if IsBlockedHostname(normalized) {
		return NewSSRFBlockedErrorFor(fmt.Sprintf("blocked hostname: %s", hostname), hostname)
	}
	if alwaysBlockedIPs[normalized] {
		return NewSSRFBlockedErrorFor("blocked: cloud metadata address", hostname)
	}

	if isAllowedPrivateHost(normalized, allowedPrivateHosts) {
		return nil
	}

	return validateHostname(hostname, allowedPrivateHosts)
}

// isAllowedPrivateHost reports whether normalized exactly matches one of the
// operator-configured allowlist entries (also normalized for comparison).
func isAllowedPrivateHost(normalized string, allowedPrivateHosts []string) bool {
	for _, allowed := range allowedPrivateHosts {
		if normalizeHostname(allowed) == normalized {
			return true
		}
	}
	return false
}

// validateHostname is the shared resolve-and-check path for both
// ValidatePublicHostname and ValidateGatewayHostname's non-allowlisted
// hostnames: the hostname itself and every IP it resolves to must be public.
func validateHostname(hostname string, allowedPrivateHosts []string) error {
	normalized := normalizeHostname(hostname)
	if normalized == "" {
		return errors.New("invalid hostname: empty after normalization")
	}

	if IsBlockedHostname(normalized) {
		return NewSSRFBlockedErrorFor(fmt.Sprintf("blocked hostname: %s", hostname), hostname)
	}

	if IsPrivateIPAddress(normalized) {
		return NewSSRFBlockedErrorFor("blocked: private/internal IP address", hostname)
	}

	ips, err := net.LookupIP(normalized)
	if err != nil {
		return fmt.Errorf("unable to resolve hostname: %s: %w", hostname, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("unable to resolve hostname: %s", hostname)
	}

	for _, ip := range ips {
		if alwaysBlockedIPs[ip.String()] {
			return NewSSRFBlockedErrorFor("blocked: resolves to cloud metadata address", hostname)
		}
		if IsPrivateIPAddress(ip.String()) && !isAllowedPrivateHost(normalized, allowedPrivateHosts) {
			return NewSSRFBlockedErrorFor("blocked: resolves to private/internal IP address", hostname)
		}
	}

	return nil
}
