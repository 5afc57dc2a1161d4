package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"cron-rs/internal/cronerr"
)

// IntervalSchedule fires every Period, anchored to a start time rather than
// to wall-clock ticks. Advancement is drift-free: the next fire is always
// lastFire+Period, never "now" rounded, so a slow tick loop never shifts
// the cadence forward. A tick that observes more than one elapsed period
// (the process was suspended, or a tick was skipped) is coalesced into a
// single firing instead of firing once per missed period.
type IntervalSchedule struct {
	Period time.Duration

	mu       sync.Mutex
	lastFire time.Time
}

// SetAnchor establishes the reference point advancement proceeds from. Call
// once, at task registration time.
func (is *IntervalSchedule) SetAnchor(start time.Time) {
	is.mu.Lock()
	defer is.mu.Unlock()
	is.lastFire = start
}

// Due reports whether the interval has elapsed as of now, and advances
// lastFire by whole periods if so. coalesced is true when more than one
// period had elapsed since the previous firing — the caller should still
// treat this as exactly one run, not one per missed period.
func (is *IntervalSchedule) Due(now time.Time) (due bool, coalesced bool) {
	is.mu.Lock()
	defer is.mu.Unlock()

	if is.Period <= 0 {
		return false, false
	}

	elapsed := now.Sub(is.lastFire)
	if elapsed < is.Period {
		return false, false
	}

	missed := int64(elapsed / is.Period)
	is.lastFire = is.lastFire.Add(time.Duration(missed) * is.Period)
	return true, missed > 1
}

var unitShorthand = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

var unitWords = map[string]time.Duration{
	"second": time.Second, "seconds": time.Second,
	"minute": time.Minute, "minutes": time.Minute,
	"hour": time.Hour, "hours": time.Hour,
	"day": 24 * time.Hour, "days": 24 * time.Hour,
}

// ParseInterval parses an interval-schedule duration string. Two forms are
// accepted: a Go-style compact duration with a single-letter unit ("5s",
// "10m", "2h", "3d"), and a spaced "<count> <unit>" form ("5 minutes",
// "1 hour", "2 days"). The result must be strictly positive.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, cronerr.New(cronerr.KindInvalidPattern, "empty interval")
	}

	if fields := strings.Fields(s); len(fields) == 2 {
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return 0, cronerr.New(cronerr.KindInvalidPattern, fmt.Sprintf("invalid interval count %q", fields[0]))
		}
		unit, ok := unitWords[strings.ToLower(fields[1])]
		if !ok {
			return 0, cronerr.New(cronerr.KindInvalidPattern, fmt.Sprintf("unknown interval unit %q", fields[1]))
		}
		d := time.Duration(n) * unit
		if d <= 0 {
			return 0, cronerr.New(cronerr.KindInvalidPattern, "interval must be positive")
		}
		return d, nil
	}

	// Compact form: digits followed by a single-letter unit.
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9') {
		i++
	}
	if i == 0 || i == len(s) {
		return 0, cronerr.New(cronerr.KindInvalidPattern, fmt.Sprintf("malformed interval %q", s))
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, cronerr.New(cronerr.KindInvalidPattern, fmt.Sprintf("invalid interval count in %q", s))
	}
	unit, ok := unitShorthand[strings.ToLower(s[i:])]
	if !ok {
		return 0, cronerr.New(cronerr.KindInvalidPattern, fmt.Sprintf("unknown interval unit in %q", s))
	}
	d := time.Duration(n) * unit
	if d <= 0 {
		return 0, cronerr.New(cronerr.KindInvalidPattern, "interval must be positive")
	}
	return d, nil
}
