package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrMarketNotFound   = errors.New("market not found")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrNoTickConvention = errors.New("tick convention unavailable")
	ErrTickOutOfRange   = errors.New("tick out of range")
	ErrUnavailable      = errors.New("unavailable")
	ErrPairMismatch     = errors.New("venue pair mismatch")
	ErrLockHeld         = errors.New("lock already held")
)

// StartupConfigError is the only fatal error class: invalid target address,
// unresolvable market, or an unreachable data source at boot.
type StartupConfigError struct {
	Reason string
	Err    error
}

func (e *StartupConfigError) Error() string {
	if e.Err == nil {
		return "startup: " + e.Reason
	}
	return fmt.Sprintf("startup: %s: %v", e.Reason, e.Err)
}

func (e *StartupConfigError) Unwrap() error { return e.Err }

// StateFetchError marks a failed ladder read. The cycle degrades, the process
// keeps running.
type StateFetchError struct {
	Ladder string
	Err    error
}

func (e *StateFetchError) Error() string {
	return fmt.Sprintf("state fetch %s: %v", e.Ladder, e.Err)
}

func (e *StateFetchError) Unwrap() error { return e.Err }

// PriceConversionError is attached to a single offer whose price could not be
// derived from its tick.
type PriceConversionError struct {
	Side Side
	Tick int64
	Err  error
}

func (e *PriceConversionError) Error() string {
	return fmt.Sprintf("price conversion %s tick %d: %v", e.Side, e.Tick, e.Err)
}

func (e *PriceConversionError) Unwrap() error { return e.Err }

// VenueQueryError wraps a single failed venue call.
type VenueQueryError struct {
	Venue string
	Call  string
	Err   error
}

func (e *VenueQueryError) Error() string {
	return fmt.Sprintf("venue %s %s: %v", e.Venue, e.Call, e.Err)
}

func (e *VenueQueryError) Unwrap() error { return e.Err }

// AlertDeliveryError wraps a failed alert. It is logged and never retried.
type AlertDeliveryError struct {
	Event string
	Err   error
}

func (e *AlertDeliveryError) Error() string {
	return fmt.Sprintf("alert %s: %v", e.Event, e.Err)
}

func (e *AlertDeliveryError) Unwrap() error { return e.Err }

// IsFatal reports whether err should terminate the process.
func IsFatal(err error) bool {
	var sce *StartupConfigError
	return errors.As(err, &sce)
}
