// Package pollerr defines the closed error-kind taxonomy shared across the
// polling pipeline, so callers can switch on Kind instead of matching
// strings.
package pollerr

import (
	"errors"
	"fmt"
)

// Kind categorizes a pipeline error for severity mapping, retry policy, and
// UI surfaces.
type Kind int

const (
	KindSSRFBlocked Kind = iota
	KindTimeout
	KindDNSFailed
	KindConnectRefused
	KindTLSFailed
	KindHTTPStatus
	KindBodyRead
	KindParseWarning
	KindDBWriteFailed
	KindChannelSendFailed
	KindRateLimited
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindSSRFBlocked:
		return "ssrf_blocked"
	case KindTimeout:
		return "timeout"
	case KindDNSFailed:
		return "dns_failed"
	case KindConnectRefused:
		return "connect_refused"
	case KindTLSFailed:
		return "tls_failed"
	case KindHTTPStatus:
		return "http_status"
	case KindBodyRead:
		return "body_read"
	case KindParseWarning:
		return "parse_warning"
	case KindDBWriteFailed:
		return "db_write_failed"
	case KindChannelSendFailed:
		return "channel_send_failed"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is a typed pipeline error carrying a closed Kind plus an optional
// wrapped cause, following the same Kind/Message/Cause/Unwrap shape used
// throughout this codebase.
type Error struct {
	Kind    Kind
	Service string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, serviceID, message string) *Error {
	return &Error{Kind: kind, Service: serviceID, Message: message}
}

func Wrap(kind Kind, serviceID, message string, cause error) *Error {
	return &Error{Kind: kind, Service: serviceID, Message: message, Cause: cause}
}

// As extracts a *Error from err, returning nil if err carries none.
func As(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}

// Is reports whether err is a pollerr.Error of the given Kind.
func Is(err error, kind Kind) bool {
	pe := As(err)
	return pe != nil && pe.Kind == kind
}
