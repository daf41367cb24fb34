package transport

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

var (
	// ErrTimeout is matched by every error caused by a request or receive
	// running out of time.
	ErrTimeout = errors.New("timed out")

	// ErrUnreachable is returned when none of a target's transport
	// addresses answered.
	ErrUnreachable = errors.New("target unreachable")
)

// ErrorKind represents the category of a transport failure
type ErrorKind int

const (
	// KindNetwork is a generic network failure
	KindNetwork ErrorKind = iota
	// KindTimeout is a request that did not complete in time
	KindTimeout
	// KindConnectionRefused means the device refused the connection
	KindConnectionRefused
	// KindDNS is a host name resolution failure
	KindDNS
	// KindHostUnreachable covers EHOSTUNREACH and ENETUNREACH
	KindHostUnreachable
	// KindHTTP is a non-2xx status without a SOAP body
	KindHTTP
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "Network Error"
	case KindTimeout:
		return "Timeout"
	case KindConnectionRefused:
		return "Connection Refused"
	case KindDNS:
		return "DNS Error"
	case KindHostUnreachable:
		return "Host Unreachable"
	case KindHTTP:
		return "HTTP Error"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// Error describes a failed exchange with a device
type Error struct {
	Kind       ErrorKind
	Message    string
	Addr       string // Transport address the request was sent to
	StatusCode int    // HTTP status code (KindHTTP only)
	Err        error
	Retryable  bool
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Addr != "" {
		msg += " (" + e.Addr + ")"
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTimeout) match classified timeouts.
func (e *Error) Is(target error) bool {
	return target == ErrTimeout && e.Kind == KindTimeout
}

// Classify analyzes err and wraps it into an *Error. Only timeouts are
// marked retryable; a hard connection failure is reported immediately.
func Classify(err error, addr string) *Error {
	if err == nil {
		return nil
	}

	var te *Error
	if errors.As(err, &te) {
		return te
	}

	if isNetTimeout(err) || errors.Is(err, ErrTimeout) {
		return &Error{Kind: KindTimeout, Message: "request timed out", Addr: addr, Err: err, Retryable: true}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: KindDNS, Message: fmt.Sprintf("cannot resolve %s", dnsErr.Name), Addr: addr, Err: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &Error{Kind: KindConnectionRefused, Message: "connection refused", Addr: addr, Err: err}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &Error{Kind: KindHostUnreachable, Message: "host unreachable", Addr: addr, Err: err}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &Error{Kind: KindHostUnreachable, Message: "network unreachable", Addr: addr, Err: err}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return Classify(urlErr.Err, addr)
	}

	return &Error{Kind: KindNetwork, Message: "network error", Addr: addr, Err: err}
}

// NewHTTPError creates an error for a status code without a usable body
func NewHTTPError(addr string, statusCode int) *Error {
	return &Error{
		Kind:       KindHTTP,
		Message:    fmt.Sprintf("unexpected status %d", statusCode),
		Addr:       addr,
		StatusCode: statusCode,
	}
}

// IsTimeout reports whether err is, or wraps, a timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || isNetTimeout(err)
}

// IsRetryable reports whether err should be retried
func IsRetryable(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

func isNetTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
