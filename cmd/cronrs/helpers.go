package main

import "time"

// systemLocation is the scheduler's system-default timezone, lowest
// precedence behind any task- or schedule-level override.
func systemLocation() *time.Location {
	return time.Local
}
