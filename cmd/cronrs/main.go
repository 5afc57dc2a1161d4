// Command cronrs is a user-space task scheduler: a tick-driven daemon
// that fires commands against a custom seven-axis schedule language and
// routes their outcomes through a pluggable alert pipeline.
package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"cron-rs/internal/alert"
	"cron-rs/internal/config"
	"cron-rs/internal/crontab"
	"cron-rs/internal/logging"
	"cron-rs/internal/runner"
	"cron-rs/internal/schedule"
	"cron-rs/internal/scheduler"
	"cron-rs/internal/task"
)

// version is set at build time with: -ldflags "-X main.version=1.0.0"
var version = "dev"

// CLI is the root command set. Exit codes: 0 success, 1 configuration
// error, 2 runtime fatal error.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" name:"config"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run                 RunCmd                 `cmd:"" default:"1" help:"Start the scheduler daemon (default command)"`
	Validate            ValidateCmd            `cmd:"" help:"Validate a configuration file without starting the scheduler"`
	GenerateConfig      GenerateConfigCmd      `cmd:"" name:"generate-config" help:"Write an example configuration file"`
	GenerateFromCrontab GenerateFromCrontabCmd `cmd:"" name:"generate-from-crontab" help:"Convert a classic crontab file into a cron-rs config"`
}

// RunCmd starts the scheduler loop. It never returns on success until a
// shutdown signal is received.
type RunCmd struct{}

func (r *RunCmd) Run(cli *CLI) error {
	path, err := config.Discover(cli.Config)
	if err != nil {
		return exitError{code: 1, err: err}
	}

	resolved, err := config.Load(path)
	if err != nil {
		return exitError{code: 1, err: err}
	}

	paths, err := config.ResolvePaths(path)
	if err != nil {
		return exitError{code: 2, err: err}
	}
	if err := config.EnsureDirs(paths); err != nil {
		return exitError{code: 2, err: err}
	}

	logCfg := logging.DefaultConfig(paths.LogsDir)
	logCfg.Output = resolved.Logging.Output
	if resolved.Logging.Path != "" {
		logCfg.LogsDir = resolved.Logging.Path
	}
	if lvl, lvlErr := logging.ParseLevel(resolved.Logging.Level); lvlErr == nil {
		logCfg.Level = lvl
	}
	logger, err := logging.Setup(logCfg)
	if err != nil {
		return exitError{code: 2, err: err}
	}

	pipeline := alert.New(logger, resolved.OnSuccess, resolved.OnFailure)
	r2 := runner.New(logger)
	sched := scheduler.New(resolved.Tasks, r2, pipeline, logger, systemLocation())

	logger.Info().Int("tasks", len(resolved.Tasks)).Msg("starting scheduler")
	if err := sched.Run(); err != nil {
		return exitError{code: 2, err: err}
	}
	return nil
}

// ValidateCmd parses a config file and reports success/failure without
// starting the scheduler, so a broken schedule is caught before the
// daemon would ever tick.
type ValidateCmd struct {
	Path string `arg:"" help:"Path to the configuration file to validate"`
}

func (v *ValidateCmd) Run(_ *CLI) error {
	resolved, err := config.Load(v.Path)
	if err != nil {
		return exitError{code: 1, err: err}
	}
	fmt.Printf("ok: %d task(s), %d on_success sink(s), %d on_failure sink(s)\n",
		len(resolved.Tasks), len(resolved.OnSuccess), len(resolved.OnFailure))

	for _, t := range resolved.Tasks {
		kind := "interval"
		if t.Schedule != nil {
			kind = "schedule"
		}
		fmt.Printf("  %s (%s)\n", t.Name, kind)
		for _, fire := range upcomingFireTimes(t, time.Now(), systemLocation(), 3) {
			fmt.Printf("    next: %s\n", fire.Format(time.RFC3339))
		}
	}
	return nil
}

// upcomingFireTimes is a brute-force diagnostic, not a scheduling
// guarantee: it steps second-by-second over the next 24h looking for up
// to max matches. IntervalSchedule tasks report multiples of their
// period from now instead, since stepping would just rediscover the
// same cadence.
func upcomingFireTimes(t *task.Task, from time.Time, systemDefault *time.Location, max int) []time.Time {
	var out []time.Time
	if t.Interval != nil {
		for i := 1; i <= max; i++ {
			out = append(out, from.Add(time.Duration(i)*t.Interval.Period))
		}
		return out
	}

	scheduleTZ := ""
	if t.Schedule != nil {
		scheduleTZ = t.Schedule.Timezone
	}
	loc, err := schedule.Location(t.Timezone, scheduleTZ, systemDefault)
	if err != nil {
		return nil
	}

	cursor := from.Truncate(time.Second).Add(time.Second)
	horizon := from.Add(24 * time.Hour)
	for cursor.Before(horizon) && len(out) < max {
		if t.Schedule.Matches(cursor, loc) {
			out = append(out, cursor)
		}
		cursor = cursor.Add(time.Second)
	}
	return out
}

// GenerateConfigCmd writes an example config file for an operator to
// adapt.
type GenerateConfigCmd struct {
	Output string `short:"o" help:"Destination path for the generated config" default:"config.yml"`
	Force  bool   `help:"Overwrite an existing file"`
}

func (g *GenerateConfigCmd) Run(_ *CLI) error {
	if err := config.Generate(g.Output, g.Force); err != nil {
		return exitError{code: 1, err: err}
	}
	fmt.Printf("wrote %s\n", g.Output)
	return nil
}

// GenerateFromCrontabCmd converts a classic crontab file into a cron-rs
// YAML config fragment, printed to stdout for the operator to merge.
type GenerateFromCrontabCmd struct {
	Path string `arg:"" help:"Path to a classic crontab file"`
}

func (g *GenerateFromCrontabCmd) Run(_ *CLI) error {
	f, err := os.Open(g.Path)
	if err != nil {
		return exitError{code: 1, err: err}
	}
	defer f.Close()

	conv, err := crontab.NewConverter()
	if err != nil {
		return exitError{code: 2, err: err}
	}
	entries, err := conv.ParseFile(bufio.NewScanner(f))
	if err != nil {
		return exitError{code: 1, err: err}
	}

	fmt.Println("tasks:")
	for i, e := range entries {
		fmt.Printf("  - name: imported-%d\n", i)
		fmt.Printf("    command: %q\n", e.Command)
		fmt.Println("    when:")
		fmt.Printf("      day_of_week: %q\n", e.When.DayOfWeek)
		fmt.Printf("      month: %q\n", e.When.Month)
		fmt.Printf("      day: %q\n", e.When.Day)
		fmt.Printf("      hour: %q\n", e.When.Hour)
		fmt.Printf("      minute: %q\n", e.When.Minute)
		fmt.Printf("      second: %q\n", e.When.Second)
	}
	return nil
}

// exitError carries the intended process exit code alongside the
// underlying error.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }

func main() {
	cli := &CLI{}
	parser := kong.Parse(cli,
		kong.Description("cron-rs: a user-space task scheduler with a seven-axis schedule language."),
		kong.Vars{"version": version},
	)

	err := parser.Run(cli)
	if err == nil {
		os.Exit(0)
	}

	code := 2
	if ee, ok := err.(exitError); ok {
		code = ee.code
	}
	fmt.Fprintln(os.Stderr, "cron-rs:", err)
	os.Exit(code)
}
