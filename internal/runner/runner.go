// Package runner executes one task invocation end to end: opens stdio
// files, builds the child process spec, optionally switches user/group,
// spawns, supervises against a time limit, and finalizes a RunContext.
//
// Modeled as a plain blocking worker (no goroutine-per-step pipeline) so
// deadline arithmetic stays simple and testable: one call to Run blocks
// the calling worker goroutine until the child has fully terminated.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"cron-rs/internal/task"
)

// tailSize bounds how much of each stdio file is captured into the
// RunContext for alert templating.
const tailSize = 4 * 1024

// gracePeriod is how long a SIGTERM'd child is given before SIGKILL.
const gracePeriod = 2 * time.Second

// timeoutExitCode is the conventional exit code recorded when a time
// limit kills the child.
const timeoutExitCode = 124

// Runner executes Tasks. It is stateless beyond its logger and safe for
// concurrent use by the worker pool.
type Runner struct {
	log zerolog.Logger
}

// New builds a Runner that logs through log.
func New(log zerolog.Logger) *Runner {
	return &Runner{log: log}
}

// Run executes one invocation of t and returns a fully populated
// RunContext. It never returns an error itself — all failures are
// recorded on the RunContext, so the alert pipeline always has one. When
// ctx is cancelled while the child is running (daemon shutdown), Run
// applies the same SIGTERM-then-grace-then-SIGKILL sequence as a time
// limit expiry.
func (r *Runner) Run(ctx context.Context, t *task.Task, token task.RunToken) *task.RunContext {
	rc := &task.RunContext{
		TaskName: t.Name,
		Command:  t.Command,
	}

	stdout, stderr, err := r.openStdio(t)
	if err != nil {
		rc.ErrorMessage = err.Error()
		rc.ExitCode = -1
		r.log.Warn().Str("task", t.Name).Str("token", token.String()).Err(err).Msg("failed to open stdio files")
		return rc
	}
	defer stdout.Close()
	defer stderr.Close()

	cmd := r.buildCommand(t, stdout, stderr)

	var credErr error
	if t.RunAs != nil {
		credErr = applyRunAs(cmd, t.RunAs)
	}
	if credErr != nil {
		rc.ErrorMessage = credErr.Error()
		rc.ExitCode = -1
		r.log.Warn().Str("task", t.Name).Err(credErr).Msg("failed to resolve run_as identity")
		return rc
	}

	rc.StartTime = time.Now()
	if err := cmd.Start(); err != nil {
		rc.ErrorMessage = fmt.Sprintf("spawn failed: %v", err)
		rc.ExitCode = -1
		rc.EndTime = time.Now()
		rc.Duration = rc.EndTime.Sub(rc.StartTime)
		r.log.Warn().Str("task", t.Name).Err(err).Msg("spawn failed")
		return rc
	}

	r.supervise(ctx, cmd, t, rc)

	rc.EndTime = time.Now()
	rc.Duration = rc.EndTime.Sub(rc.StartTime)
	rc.DebugInfo = buildDebugInfo(cmd, t, rc)
	rc.StdoutTail = tailFile(t.StdoutLog)
	rc.StderrTail = tailFile(t.StderrLog)

	r.logOutcome(t, rc)
	return rc
}

// openStdio creates parent directories and opens both stdio targets in
// append-create mode.
func (r *Runner) openStdio(t *task.Task) (stdout, stderr *os.File, err error) {
	open := func(path string) (*os.File, error) {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create stdio directory %s: %w", dir, err)
			}
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return f, nil
	}

	stdout, err = open(t.StdoutLog)
	if err != nil {
		return nil, nil, err
	}
	stderr, err = open(t.StderrLog)
	if err != nil {
		stdout.Close()
		return nil, nil, err
	}
	return stdout, stderr, nil
}

// buildCommand assembles the argument vector, working directory, and
// overlaid environment for the child: argv is [shell, "-c", cmd]; env is
// the parent environment with task.Env overlaid (task values win on
// collision).
func (r *Runner) buildCommand(t *task.Task, stdout, stderr io.Writer) *exec.Cmd {
	shell := t.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	cmd := exec.Command(shell, "-c", t.Command)
	cmd.Dir = t.WorkDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = mergeEnv(os.Environ(), t.Env)
	return cmd
}

func mergeEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}
	merged := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := overlay[key]; overridden {
			continue
		}
		merged = append(merged, kv)
	}
	for k, v := range overlay {
		merged = append(merged, k+"="+v)
	}
	return merged
}

// applyRunAs resolves a "user" or "user:group" descriptor to numeric ids
// and attaches a syscall.Credential so the child drops privileges before
// exec. Supplementary groups are dropped (only the resolved primary gid
// is kept).
func applyRunAs(cmd *exec.Cmd, ra *task.RunAs) error {
	u, err := user.Lookup(ra.User)
	if err != nil {
		return fmt.Errorf("resolve user %q: %w", ra.User, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("non-numeric uid for user %q: %w", ra.User, err)
	}

	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("non-numeric gid for user %q: %w", ra.User, err)
	}
	if ra.Group != "" {
		g, err := user.LookupGroup(ra.Group)
		if err != nil {
			return fmt.Errorf("resolve group %q: %w", ra.Group, err)
		}
		gid, err = strconv.Atoi(g.Gid)
		if err != nil {
			return fmt.Errorf("non-numeric gid for group %q: %w", ra.Group, err)
		}
	}

	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Credential = &syscall.Credential{
		Uid: uint32(uid),
		Gid: uint32(gid),
	}
	return nil
}

// supervise waits for the child, enforcing t.TimeLimit when set and
// reacting to ctx cancellation (daemon shutdown) the same way. It records
// ExitCode and ErrorMessage (on timeout) directly on rc.
func (r *Runner) supervise(ctx context.Context, cmd *exec.Cmd, t *task.Task, rc *task.RunContext) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var deadlineC <-chan time.Time
	if t.TimeLimit > 0 {
		deadline := time.NewTimer(t.TimeLimit)
		defer deadline.Stop()
		deadlineC = deadline.C
	}

	select {
	case waitErr := <-done:
		rc.ExitCode = exitCodeFromError(waitErr)
	case <-deadlineC:
		r.killWithGrace(cmd, done)
		rc.ErrorMessage = "time limit exceeded"
		rc.ExitCode = timeoutExitCode
	case <-ctx.Done():
		r.killWithGrace(cmd, done)
		rc.ErrorMessage = "shutdown requested"
		rc.ExitCode = timeoutExitCode
	}
}

// killWithGrace sends SIGTERM, waits up to gracePeriod for the process to
// exit on its own, then SIGKILLs any survivor.
func (r *Runner) killWithGrace(cmd *exec.Cmd, done <-chan error) {
	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-done:
		return
	case <-time.After(gracePeriod):
	}

	_ = cmd.Process.Kill()
	<-done
}

func exitCodeFromError(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// buildDebugInfo renders the multi-line diagnostic block attached to
// every RunContext: pid, signal status, effective user, cwd, environment
// summary.
func buildDebugInfo(cmd *exec.Cmd, t *task.Task, rc *task.RunContext) string {
	var b strings.Builder
	pid := -1
	if cmd.Process != nil {
		pid = cmd.Process.Pid
	}
	fmt.Fprintf(&b, "pid: %d\n", pid)
	fmt.Fprintf(&b, "signal: %s\n", signalSummary(rc))
	if t.RunAs != nil {
		fmt.Fprintf(&b, "user: %s:%s\n", t.RunAs.User, t.RunAs.Group)
	} else {
		fmt.Fprintf(&b, "user: %s\n", currentUserDescription())
	}
	fmt.Fprintf(&b, "cwd: %s\n", cwdDescription(t))
	fmt.Fprintf(&b, "env overlay: %d var(s)\n", len(t.Env))
	return b.String()
}

func signalSummary(rc *task.RunContext) string {
	if rc.ExitCode == timeoutExitCode {
		return "SIGTERM (then SIGKILL if still running after the grace period)"
	}
	return "none"
}

func currentUserDescription() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Username
}

func cwdDescription(t *task.Task) string {
	if t.WorkDir != "" {
		return t.WorkDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "unknown"
	}
	return wd
}

// tailFile returns up to the last tailSize bytes of path, or an empty
// string if it cannot be read — a missing or unreadable stdio file is not
// treated as fatal, and the failure is not recorded in debug_info.
func tailFile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ""
	}

	var buf bytes.Buffer
	if info.Size() > tailSize {
		if _, err := f.Seek(-tailSize, io.SeekEnd); err != nil {
			return ""
		}
	}
	io.Copy(&buf, f)
	return buf.String()
}

func (r *Runner) logOutcome(t *task.Task, rc *task.RunContext) {
	ev := r.log.Info()
	if !rc.Succeeded() {
		ev = r.log.Warn()
	}
	ev.Str("task", t.Name).
		Int("exit_code", rc.ExitCode).
		Dur("duration", rc.Duration).
		Str("error", rc.ErrorMessage).
		Msg("task run finished")
}
