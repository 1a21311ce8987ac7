// Package sla parses human-readable time spans and derives deadlines,
// warning times and remaining-time displays from them.
//
// Durations are written as <number><unit> with unit one of ms, s, m, h, d, w.
// Units are case-sensitive and no whitespace is allowed. The numeric part may
// be fractional ("1.5h"); the resulting millisecond count is rounded to the
// nearest integer.
package sla

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDuration is returned for strings that are not <number><unit>.
var ErrInvalidDuration = errors.New("invalid duration")

// Unit multipliers in milliseconds.
const (
	Millisecond int64 = 1
	Second            = 1000 * Millisecond
	Minute            = 60 * Second
	Hour              = 60 * Minute
	Day               = 24 * Hour
	Week              = 7 * Day
)

var unitMillis = map[string]int64{
	"ms": Millisecond,
	"s":  Second,
	"m":  Minute,
	"h":  Hour,
	"d":  Day,
	"w":  Week,
}

// "ms" is listed before "m" so the alternation never splits it.
var durationPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)(ms|s|m|h|d|w)$`)

// maxMillis is the first millisecond count a time.Duration cannot hold.
const maxMillis = float64(math.MaxInt64/int64(time.Millisecond)) + 1

// ParseMillis parses a duration string into milliseconds.
func ParseMillis(s string) (int64, error) {
	match := durationPattern.FindStringSubmatch(s)
	if match == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidDuration, s, err)
	}

	// The result must also fit a time.Duration in nanoseconds.
	ms := math.Round(value * float64(unitMillis[match[2]]))
	if ms >= maxMillis {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidDuration, s)
	}
	return int64(ms), nil
}

// Parse parses a duration string into a time.Duration.
func Parse(s string) (time.Duration, error) {
	ms, err := ParseMillis(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// IsValid reports whether s parses as a duration.
func IsValid(s string) bool {
	_, err := ParseMillis(s)
	return err == nil
}

// Deadline returns createdAt + duration.
func Deadline(createdAt time.Time, duration string) (time.Time, error) {
	d, err := Parse(duration)
	if err != nil {
		return time.Time{}, err
	}
	return createdAt.Add(d), nil
}

// WarnAt returns deadline - warnBefore.
func WarnAt(deadline time.Time, warnBefore string) (time.Time, error) {
	d, err := Parse(warnBefore)
	if err != nil {
		return time.Time{}, err
	}
	return deadline.Add(-d), nil
}

// IsBreached reports whether now is at or past the deadline.
func IsBreached(deadline, now time.Time) bool {
	return !now.Before(deadline)
}

// RemainingMillis returns the signed milliseconds until the deadline.
// The value is negative once the deadline has passed.
func RemainingMillis(deadline, now time.Time) int64 {
	return deadline.Sub(now).Milliseconds()
}

// FormatRemaining renders a millisecond span using its largest applicable
// unit plus the next smaller one when non-zero ("2d 3h", "45m", "500ms").
// Negative spans get an " overdue" suffix.
func FormatRemaining(ms int64) string {
	overdue := ms < 0
	if overdue {
		ms = -ms
	}

	var out string
	switch {
	case ms >= Day:
		out = pair(ms, Day, "d", Hour, "h")
	case ms >= Hour:
		out = pair(ms, Hour, "h", Minute, "m")
	case ms >= Minute:
		out = pair(ms, Minute, "m", Second, "s")
	case ms >= Second:
		out = strconv.FormatInt(ms/Second, 10) + "s"
	default:
		out = strconv.FormatInt(ms, 10) + "ms"
	}

	if overdue {
		return out + " overdue"
	}
	return out
}

func pair(ms, major int64, majorUnit string, minor int64, minorUnit string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(ms/major, 10))
	b.WriteString(majorUnit)
	if rest := (ms % major) / minor; rest > 0 {
		b.WriteString(" ")
		b.WriteString(strconv.FormatInt(rest, 10))
		b.WriteString(minorUnit)
	}
	return b.String()
}

// FormatUntil renders the time remaining until the deadline.
func FormatUntil(deadline, now time.Time) string {
	return FormatRemaining(RemainingMillis(deadline, now))
}

// MinutesRemaining returns whole minutes left until the deadline, floored,
// and never negative.
func MinutesRemaining(deadline, now time.Time) int {
	ms := RemainingMillis(deadline, now)
	if ms <= 0 {
		return 0
	}
	return int(ms / Minute)
}
