package expiry

import (
	"fmt"
	"time"
)

// Option is a selectable expiration on the creation form.
type Option struct {
	Value string
	Label string
}

// DefaultOption is preselected on the creation form.
const DefaultOption = "never"

var options = []Option{
	{Value: "10m", Label: "10 minutes"},
	{Value: "1h", Label: "1 hour"},
	{Value: "1d", Label: "1 day"},
	{Value: "7d", Label: "7 days"},
	{Value: "30d", Label: "30 days"},
	{Value: "never", Label: "Never"},
}

// Options lists the choices offered on the creation form.
func Options() []Option {
	out := make([]Option, len(options))
	copy(out, options)
	return out
}

// Remaining renders the time left before expiresAt in the coarsest whole unit.
func Remaining(expiresAt, now time.Time) string {
	if expiresAt.IsZero() {
		return "Never"
	}
	left := expiresAt.Sub(now)
	if left <= 0 {
		return "Expired"
	}
	switch {
	case left >= 24*time.Hour:
		return plural(int(left/(24*time.Hour)), "day")
	case left >= time.Hour:
		return plural(int(left/time.Hour), "hour")
	default:
		return plural(int(left/time.Minute), "minute")
	}
}

func plural(count int, singular string) string {
	if count == 1 {
		return fmt.Sprintf("1 %s", singular)
	}
	return fmt.Sprintf("%d %ss", count, singular)
}
