package eventing

import (
	"fmt"
	"strings"
	"time"

	"github.com/wsdtool/wsdtool/internal/soap"
)

// Expiration is a requested or granted subscription lifetime: either an
// absolute time or a duration. The zero value means no expiration; a zero
// duration is a real, already elapsed lifetime.
type Expiration struct {
	kind  expirationKind
	at    time.Time
	after time.Duration
}

type expirationKind uint8

const (
	expiresNever expirationKind = iota
	expiresAtTime
	expiresAfterDuration
)

// ExpiresAt returns an expiration at t
func ExpiresAt(t time.Time) Expiration {
	return Expiration{kind: expiresAtTime, at: t}
}

// ExpiresAfter returns an expiration d from now, as the device counts it
func ExpiresAfter(d time.Duration) Expiration {
	return Expiration{kind: expiresAfterDuration, after: d}
}

// IsZero reports whether no expiration is set
func (e Expiration) IsZero() bool {
	return e.kind == expiresNever
}

// Time returns the absolute expiration, if that is the form it has
func (e Expiration) Time() (time.Time, bool) {
	return e.at, e.kind == expiresAtTime
}

// Duration returns the relative expiration, if that is the form it has
func (e Expiration) Duration() (time.Duration, bool) {
	return e.after, e.kind == expiresAfterDuration
}

// Wire returns the xsd:dateTime or xsd:duration form, or an empty string
// for the zero value.
func (e Expiration) Wire() string {
	switch e.kind {
	case expiresAtTime:
		return soap.FormatDateTime(e.at)
	case expiresAfterDuration:
		return soap.FormatDuration(e.after)
	}
	return ""
}

func (e Expiration) String() string {
	if e.IsZero() {
		return "never"
	}
	return e.Wire()
}

// ParseExpiration reads a wse:Expires value, which devices send either as
// a duration or as a dateTime.
func ParseExpiration(s string) (Expiration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Expiration{}, nil
	}
	if strings.HasPrefix(s, "P") {
		d, err := soap.ParseDuration(s)
		if err != nil {
			return Expiration{}, fmt.Errorf("expires %q: %w", s, err)
		}
		return ExpiresAfter(d), nil
	}
	t, err := soap.ParseDateTime(s, true)
	if err != nil {
		return Expiration{}, fmt.Errorf("expires %q: %w", s, err)
	}
	return ExpiresAt(t), nil
}
