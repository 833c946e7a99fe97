// Package expiry turns the expiration token chosen on the creation form into
// an absolute deadline.
package expiry

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Unit is the granularity of an Expiration.
type Unit int

const (
	Never Unit = iota
	Minutes
	Hours
	Days
)

func (u Unit) String() string {
	switch u {
	case Minutes:
		return "minutes"
	case Hours:
		return "hours"
	case Days:
		return "days"
	default:
		return "never"
	}
}

// Expiration is a relative lifetime. The zero value never expires.
type Expiration struct {
	Unit Unit
	N    int64
}

// Parse interprets tokens such as "30m", "2h" or "7d". The last byte selects the
// unit and the rest is read as a non-negative integer. Empty input, "never",
// one-byte input and unknown units yield Never; an unreadable number yields a
// magnitude of 0 rather than an error.
func Parse(token string) Expiration {
	if token == "" || token == "never" || len(token) < 2 {
		return Expiration{}
	}
	prefix, suffix := token[:len(token)-1], token[len(token)-1]

	var unit Unit
	switch suffix {
	case 'm':
		unit = Minutes
	case 'h':
		unit = Hours
	case 'd':
		unit = Days
	default:
		return Expiration{}
	}

	n, err := strconv.ParseUint(prefix, 10, 63)
	if err != nil {
		n = 0
	}
	return Expiration{Unit: unit, N: int64(n)}
}

// IsNever reports whether the expiration is unbounded.
func (e Expiration) IsNever() bool {
	return e.Unit == Never
}

// Latest is the furthest deadline At hands out. Every backend can store it,
// including the bolt index keys which hold Unix nanoseconds.
var Latest = time.Date(2200, time.January, 1, 0, 0, 0, 0, time.UTC)

const maxDuration = time.Duration(math.MaxInt64)

func (u Unit) step() time.Duration {
	switch u {
	case Minutes:
		return time.Minute
	case Hours:
		return time.Hour
	case Days:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Duration returns the relative lifetime, or 0 for Never. Lifetimes too long
// for a time.Duration saturate instead of wrapping.
func (e Expiration) Duration() time.Duration {
	step := e.Unit.step()
	if step == 0 {
		return 0
	}
	if e.N > int64(maxDuration/step) {
		return maxDuration
	}
	return time.Duration(e.N) * step
}

// At resolves the expiration against now, clamped to Latest. The boolean is
// false for Never.
func (e Expiration) At(now time.Time) (time.Time, bool) {
	if e.IsNever() {
		return time.Time{}, false
	}
	at := now.Add(e.Duration())
	if at.After(Latest) && !now.After(Latest) {
		at = Latest
	}
	return at, true
}

func (e Expiration) String() string {
	if e.IsNever() {
		return "never"
	}
	return fmt.Sprintf("%d %s", e.N, e.Unit)
}
