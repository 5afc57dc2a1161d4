// Package task holds the Task type: a named, immutable unit of work bound
// to either a Schedule or an IntervalSchedule, plus the small amount of
// mutable runtime state (the in-flight run set) needed to enforce
// overlap prevention.
package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cron-rs/internal/schedule"
)

// RunToken identifies one in-flight invocation of a task.
type RunToken struct {
	ID uuid.UUID
}

func newRunToken() RunToken {
	return RunToken{ID: uuid.New()}
}

func (t RunToken) String() string { return t.ID.String() }

// RunAs describes a user[:group] process-identity switch for a run.
type RunAs struct {
	User  string
	Group string
}

// Task is the immutable configuration of one scheduled command, plus the
// small mutable in-flight bookkeeping required to enforce
// avoid_overlapping. Constructed once at daemon start; afterwards only the
// runtime state changes, through IsDue (the last fired second) and
// TryBegin/OnRunComplete (the in-flight set).
type Task struct {
	Name         string
	Command      string
	Schedule     *schedule.Schedule
	Interval     *schedule.IntervalSchedule
	Timezone     string // task-level override, highest precedence
	WorkDir      string
	Env          map[string]string
	RunAs        *RunAs
	Shell        string
	StdoutLog    string
	StderrLog    string
	TimeLimit    time.Duration // zero means unlimited
	AvoidOverlap bool

	mu           sync.Mutex
	inFlight     map[RunToken]struct{}
	lastFireTick time.Time // whole-second tick last evaluated as due, prevents double-fire
}

// New constructs a Task, filling in the name-scoped default stdio paths and
// shell when left unset. Exactly one of sch or interval must be non-nil;
// New panics if both or neither are given since that invariant must be
// enforced by the config loader before a Task is ever constructed.
func New(name, command string, sch *schedule.Schedule, interval *schedule.IntervalSchedule) *Task {
	if (sch == nil) == (interval == nil) {
		panic("task: exactly one of Schedule or IntervalSchedule required for " + name)
	}
	t := &Task{
		Name:      name,
		Command:   command,
		Schedule:  sch,
		Interval:  interval,
		Shell:     "/bin/sh",
		StdoutLog: fmt.Sprintf(".tmp/%s_stdout.log", name),
		StderrLog: fmt.Sprintf(".tmp/%s_stderr.log", name),
		inFlight:  make(map[RunToken]struct{}),
	}
	return t
}

// IsDue evaluates the task's schedule against now in its effective
// timezone, guarding against double-firing within the same whole second.
// A tick at or before the last fired second (the clock moved backward) is
// likewise not due. coalesced is true only for interval schedules that skipped one or more
// periods; the scheduler logs a warning when it is set.
func (t *Task) IsDue(now time.Time, systemDefault *time.Location) (due bool, coalesced bool, err error) {
	tickSecond := now.Truncate(time.Second)

	t.mu.Lock()
	alreadyFired := !tickSecond.After(t.lastFireTick)
	t.mu.Unlock()
	if alreadyFired {
		return false, false, nil
	}

	if t.Interval != nil {
		due, coalesced = t.Interval.Due(now)
	} else {
		scheduleTZ := ""
		if t.Schedule != nil {
			scheduleTZ = t.Schedule.Timezone
		}
		loc, locErr := schedule.Location(t.Timezone, scheduleTZ, systemDefault)
		if locErr != nil {
			return false, false, locErr
		}
		due = t.Schedule.Matches(now, loc)
	}

	if due {
		t.mu.Lock()
		t.lastFireTick = tickSecond
		t.mu.Unlock()
	}
	return due, coalesced, nil
}

// TryBegin enforces the overlap policy: when AvoidOverlap is set and a run
// is already in flight, it returns ok=false and logs nothing itself (the
// caller logs, since it has the logger). Otherwise it registers a fresh
// RunToken and returns it.
func (t *Task) TryBegin() (token RunToken, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.AvoidOverlap && len(t.inFlight) > 0 {
		return RunToken{}, false
	}
	token = newRunToken()
	t.inFlight[token] = struct{}{}
	return token, true
}

// OnRunComplete removes token from the in-flight set. Completion
// bookkeeping only needs the token; the RunContext parameter keeps the
// call site symmetric with TryBegin for callers that thread both.
func (t *Task) OnRunComplete(token RunToken, _ *RunContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, token)
}

// InFlightCount reports the current number of live runs, for reporting and
// tests.
func (t *Task) InFlightCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inFlight)
}

// RunContext is the record of one execution, from spawn to termination.
// Created by the Runner, consumed by the Alert Pipeline, then discarded.
type RunContext struct {
	TaskName     string
	Command      string
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	ExitCode     int
	ErrorMessage string
	StdoutTail   string
	StderrTail   string
	DebugInfo    string
}

// Succeeded reports whether the run counts as a success: exit code 0 and
// no recorded error (a timeout sets both ExitCode 124 and ErrorMessage,
// so it fails this check twice over).
func (rc *RunContext) Succeeded() bool {
	return rc.ExitCode == 0 && rc.ErrorMessage == ""
}
