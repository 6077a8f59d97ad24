// Package ssrf validates a gateway-runtime hook's operator-supplied baseUrl
// before forgehostd ever proxies a request to it (internal/runtime/gateway),
// so installing a hook can't be used to make the host issue requests to its
// own cloud-metadata endpoint or an unintended container-network neighbor.
package ssrf

import "fmt"

// SSRFBlockedError is returned when a hostname or IP address is blocked by
// gateway baseUrl validation. Hostname carries the value that tripped the
// rule so internal/runtime/gateway can report it back on install failure.
type SSRFBlockedError struct {
	Message  string
	Hostname string
}

// Error implements the error interface.
func (e *SSRFBlockedError) Error() string {
	if e.Hostname == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (hostname=%s)", e.Message, e.Hostname)
}

// NewSSRFBlockedError creates a new SSRFBlockedError with the given message.
func NewSSRFBlockedError(message string) *SSRFBlockedError {
	return &SSRFBlockedError{Message: message}
}

// NewSSRFBlockedErrorFor creates a new SSRFBlockedError tagged with the
// offending hostname.
func NewSSRFBlockedErrorFor(message, hostname string) *SSRFBlockedError {
	return &SSRFBlockedError{Message: message, Hostname: hostname}
}
