package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cron-rs/internal/schedule"
	"cron-rs/internal/task"
)

// taskWithInterval builds a minimal task backed by an IntervalSchedule —
// Runner tests don't care about scheduling, only execution, so any
// non-nil schedule kind satisfies task.New's invariant.
func taskWithInterval(t *testing.T, name, cmd, dir string) *task.Task {
	t.Helper()
	tk := task.New(name, cmd, nil, &schedule.IntervalSchedule{Period: time.Minute})
	tk.WorkDir = dir
	tk.StdoutLog = filepath.Join(dir, name+"_stdout.log")
	tk.StderrLog = filepath.Join(dir, name+"_stderr.log")
	return tk
}

func mustToken(t *testing.T, tk *task.Task) task.RunToken {
	t.Helper()
	tok, ok := tk.TryBegin()
	require.True(t, ok)
	return tok
}

func TestRunnerSuccessExitCode(t *testing.T) {
	logger := zerolog.Nop()
	r := New(logger)

	dir := t.TempDir()
	tk := taskWithInterval(t, "ok", "exit 0", dir)

	rc := r.Run(context.Background(), tk, mustToken(t, tk))
	assert.Equal(t, 0, rc.ExitCode)
	assert.True(t, rc.Succeeded())
	assert.False(t, rc.EndTime.Before(rc.StartTime))
}

func TestRunnerCapturesNonzeroExit(t *testing.T) {
	logger := zerolog.Nop()
	r := New(logger)

	dir := t.TempDir()
	tk := taskWithInterval(t, "fail", "exit 7", dir)

	rc := r.Run(context.Background(), tk, mustToken(t, tk))
	assert.Equal(t, 7, rc.ExitCode)
	assert.False(t, rc.Succeeded())
}

// A task whose command outlives its time limit terminates within a few
// seconds with exit code 124 and an error message mentioning the time
// limit.
func TestRunnerTimeLimit(t *testing.T) {
	logger := zerolog.Nop()
	r := New(logger)

	dir := t.TempDir()
	tk := taskWithInterval(t, "slow", "sleep 10", dir)
	tk.TimeLimit = time.Second

	start := time.Now()
	rc := r.Run(context.Background(), tk, mustToken(t, tk))
	elapsed := time.Since(start)

	assert.Equal(t, 124, rc.ExitCode)
	assert.Contains(t, rc.ErrorMessage, "time limit")
	assert.Less(t, elapsed, 3*time.Second)
}

func TestRunnerWritesStdoutAndStderr(t *testing.T) {
	logger := zerolog.Nop()
	r := New(logger)

	dir := t.TempDir()
	tk := taskWithInterval(t, "echoer", "echo out-line; echo err-line 1>&2", dir)

	r.Run(context.Background(), tk, mustToken(t, tk))

	out, err := os.ReadFile(tk.StdoutLog)
	require.NoError(t, err)
	assert.Contains(t, string(out), "out-line")

	errOut, err := os.ReadFile(tk.StderrLog)
	require.NoError(t, err)
	assert.Contains(t, string(errOut), "err-line")
}

func TestRunnerAppendsAcrossFirings(t *testing.T) {
	logger := zerolog.Nop()
	r := New(logger)

	dir := t.TempDir()
	tk := taskWithInterval(t, "twice", "echo hit", dir)

	r.Run(context.Background(), tk, mustToken(t, tk))
	r.Run(context.Background(), tk, mustToken(t, tk))

	out, err := os.ReadFile(tk.StdoutLog)
	require.NoError(t, err)
	assert.Equal(t, 2, countOccurrences(string(out), "hit"))
}

func TestRunnerMissingStdioDirectoryIsCreated(t *testing.T) {
	logger := zerolog.Nop()
	r := New(logger)

	dir := t.TempDir()
	tk := taskWithInterval(t, "nested", "exit 0", dir)
	tk.StdoutLog = filepath.Join(dir, "nested", "deep", "out.log")
	tk.StderrLog = filepath.Join(dir, "nested", "deep", "err.log")

	rc := r.Run(context.Background(), tk, mustToken(t, tk))
	assert.Equal(t, 0, rc.ExitCode)
	_, err := os.Stat(tk.StdoutLog)
	assert.NoError(t, err)
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
			i += len(needle) - 1
		}
	}
	return count
}
