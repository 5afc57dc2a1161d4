// Package schedule composes seven axis.Patterns (plus an optional
// timezone) into a predicate over a wall-clock instant, and parses both
// the detailed (structured) and compact (single-string) surface forms.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"cron-rs/internal/axis"
	"cron-rs/internal/cronerr"
)

// Schedule is the parsed, validated form of a task's "when" — seven axis
// patterns plus an optional IANA timezone name. Any Schedule value that
// exists has already had each axis checked against its domain.
type Schedule struct {
	DayOfWeek axis.Pattern
	Year      axis.Pattern
	Month     axis.Pattern
	Day       axis.Pattern
	Hour      axis.Pattern
	Minute    axis.Pattern
	Second    axis.Pattern
	Timezone  string
}

// anyPattern is the default for every axis the surface form leaves unset.
var anyPattern = axis.Pattern{Kind: axis.KindAny}

// weekdayIndexFromMonZero converts a time.Weekday (Sunday=0) into the
// Mon=0..Sun=6 indexing the day_of_week axis uses.
func weekdayIndexFromMonZero(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// Matches evaluates the schedule against instant, first converting it into
// loc — the caller resolves loc from the three-level precedence (task
// override, then Schedule.Timezone, then system default) before calling
// this.
func (s Schedule) Matches(instant time.Time, loc *time.Location) bool {
	t := instant.In(loc)
	return s.DayOfWeek.Match(weekdayIndexFromMonZero(t.Weekday())) &&
		s.Year.Match(t.Year()) &&
		s.Month.Match(int(t.Month())) &&
		s.Day.Match(t.Day()) &&
		s.Hour.Match(t.Hour()) &&
		s.Minute.Match(t.Minute()) &&
		s.Second.Match(t.Second())
}

// Location resolves the effective timezone for this schedule given a
// task-level override (may be empty) and the process-wide default.
func Location(taskTimezone, scheduleTimezone string, systemDefault *time.Location) (*time.Location, error) {
	name := taskTimezone
	if name == "" {
		name = scheduleTimezone
	}
	if name == "" {
		return systemDefault, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, cronerr.Wrap(cronerr.KindUnknownTimezone, "unknown timezone "+name, err)
	}
	return loc, nil
}

// Compact renders the schedule back to its single-string compact form.
// Round-trip is semantic (produces an equivalent predicate), not
// necessarily byte-identical to whatever string was originally parsed.
func (s Schedule) Compact() string {
	return fmt.Sprintf("%s %s-%s-%s %s:%s:%s",
		axis.DayOfWeek.Render(s.DayOfWeek),
		axis.Year.Render(s.Year), axis.Month.Render(s.Month), axis.Day.Render(s.Day),
		axis.Hour.Render(s.Hour), axis.Minute.Render(s.Minute), axis.Second.Render(s.Second),
	)
}

// ParseCompact parses the single-string compact form:
//
//	DOW YEAR-MONTH-DAY HOUR:MINUTE:SECOND
//
// whitespace between the three groups (a run of several spaces or tabs is
// accepted as one separator), hyphens inside the date group, colons inside
// the time group. An unbracketed single token is
// valid for DOW; a list requires brackets.
func ParseCompact(s string) (Schedule, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return Schedule{}, cronerr.New(cronerr.KindInvalidPattern,
			fmt.Sprintf("compact schedule must have 3 whitespace-separated groups, got %d in %q", len(fields), s))
	}

	dateParts := strings.Split(fields[1], "-")
	if len(dateParts) != 3 {
		return Schedule{}, cronerr.New(cronerr.KindInvalidPattern,
			fmt.Sprintf("date group must be YEAR-MONTH-DAY, got %q", fields[1]))
	}
	timeParts := strings.Split(fields[2], ":")
	if len(timeParts) != 3 {
		return Schedule{}, cronerr.New(cronerr.KindInvalidPattern,
			fmt.Sprintf("time group must be HOUR:MINUTE:SECOND, got %q", fields[2]))
	}

	var sch Schedule
	var err error

	if sch.DayOfWeek, err = axis.Parse(axis.DayOfWeek, fields[0]); err != nil {
		return Schedule{}, err
	}
	if sch.Year, err = axis.Parse(axis.Year, dateParts[0]); err != nil {
		return Schedule{}, err
	}
	if sch.Month, err = axis.Parse(axis.Month, dateParts[1]); err != nil {
		return Schedule{}, err
	}
	if sch.Day, err = axis.Parse(axis.Day, dateParts[2]); err != nil {
		return Schedule{}, err
	}
	if sch.Hour, err = axis.Parse(axis.Hour, timeParts[0]); err != nil {
		return Schedule{}, err
	}
	if sch.Minute, err = axis.Parse(axis.Minute, timeParts[1]); err != nil {
		return Schedule{}, err
	}
	if sch.Second, err = axis.Parse(axis.Second, timeParts[2]); err != nil {
		return Schedule{}, err
	}

	return sch, nil
}

// Detailed mirrors the YAML/structured surface form of a schedule: a
// mapping with keys {day_of_week, year, month, day, hour, minute, second,
// timezone}. Missing keys default to Any. DayOfWeek additionally accepts a
// raw list of weekday names (not the bracketed compact-form token) via
// DayOfWeekList, handled at the unmarshalling boundary in internal/config.
type Detailed struct {
	DayOfWeek     string
	DayOfWeekList []string
	Year          string
	Month         string
	Day           string
	Hour          string
	Minute        string
	Second        string
	Timezone      string
}

// Build validates and assembles a Detailed form into a Schedule.
func (d Detailed) Build() (Schedule, error) {
	var sch Schedule
	var err error

	switch {
	case len(d.DayOfWeekList) > 0 && d.DayOfWeek != "":
		return Schedule{}, cronerr.New(cronerr.KindInvalidPattern,
			"day_of_week cannot be both a token and a list")
	case len(d.DayOfWeekList) > 0:
		if sch.DayOfWeek, err = axis.NewList(axis.DayOfWeek, d.DayOfWeekList); err != nil {
			return Schedule{}, err
		}
	case d.DayOfWeek != "":
		if sch.DayOfWeek, err = axis.Parse(axis.DayOfWeek, d.DayOfWeek); err != nil {
			return Schedule{}, err
		}
	default:
		sch.DayOfWeek = anyPattern
	}

	sch.Year, err = parseOrAny(axis.Year, d.Year)
	if err != nil {
		return Schedule{}, err
	}
	sch.Month, err = parseOrAny(axis.Month, d.Month)
	if err != nil {
		return Schedule{}, err
	}
	sch.Day, err = parseOrAny(axis.Day, d.Day)
	if err != nil {
		return Schedule{}, err
	}
	sch.Hour, err = parseOrAny(axis.Hour, d.Hour)
	if err != nil {
		return Schedule{}, err
	}
	sch.Minute, err = parseOrAny(axis.Minute, d.Minute)
	if err != nil {
		return Schedule{}, err
	}
	sch.Second, err = parseOrAny(axis.Second, d.Second)
	if err != nil {
		return Schedule{}, err
	}

	sch.Timezone = d.Timezone
	return sch, nil
}

func parseOrAny(d axis.Domain, token string) (axis.Pattern, error) {
	if token == "" {
		return anyPattern, nil
	}
	return axis.Parse(d, token)
}
