// Package config loads the YAML configuration file into the core types
// (schedule.Schedule, schedule.IntervalSchedule, task.Task, alert.Sink)
// the rest of the program consumes, including path discovery and the
// legacy field aliases older config files still use.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cron-rs/internal/alert"
	"cron-rs/internal/cronerr"
	"cron-rs/internal/schedule"
	"cron-rs/internal/task"
)

// AppName names the per-user config/log directory.
const AppName = "cron-rs"

// Logging describes where and how verbosely the daemon logs.
type Logging struct {
	Output string `yaml:"output"` // stdout, file, syslog
	Level  string `yaml:"level"`  // error, warn, info, debug, trace
	Path   string `yaml:"path,omitempty"`
}

// sinkYAML is the on-disk shape of one alert sink, covering every field
// any sink type might use. Only the fields relevant to Type are read.
type sinkYAML struct {
	Type string `yaml:"type"`

	// cmd
	Shell string `yaml:"shell,omitempty"`
	Cmd   string `yaml:"cmd,omitempty"`

	// webhook
	Method  string            `yaml:"method,omitempty"`
	URL     string            `yaml:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty"`

	// email
	SMTPServer   string   `yaml:"smtp_server,omitempty"`
	SMTPPort     int      `yaml:"smtp_port,omitempty"`
	SMTPUsername string   `yaml:"smtp_username,omitempty"`
	SMTPPassword string   `yaml:"smtp_password,omitempty"`
	To           []string `yaml:"to,omitempty"`
	Subject      string   `yaml:"subject,omitempty"`

	// nats (subject shares the YAML key "subject" with email — harmless,
	// since a sink only ever reads the fields for its own Type)
}

func (s sinkYAML) build() (alert.Sink, error) {
	switch s.Type {
	case "cmd":
		if s.Cmd == "" {
			return nil, cronerr.New(cronerr.KindInvalidPattern, "cmd sink requires cmd")
		}
		return &alert.CmdSink{Shell: s.Shell, Cmd: s.Cmd}, nil
	case "webhook":
		if s.URL == "" {
			return nil, cronerr.New(cronerr.KindInvalidPattern, "webhook sink requires url")
		}
		return &alert.WebhookSink{Method: s.Method, URL: s.URL, Headers: s.Headers, Body: s.Body}, nil
	case "email":
		if s.SMTPServer == "" || len(s.To) == 0 {
			return nil, cronerr.New(cronerr.KindInvalidPattern, "email sink requires smtp_server and to")
		}
		return &alert.EmailSink{
			SMTPServer:   s.SMTPServer,
			SMTPPort:     s.SMTPPort,
			SMTPUsername: s.SMTPUsername,
			SMTPPassword: s.SMTPPassword,
			To:           s.To,
			Subject:      s.Subject,
			Body:         s.Body,
		}, nil
	case "nats":
		if s.URL == "" {
			return nil, cronerr.New(cronerr.KindInvalidPattern, "nats sink requires url")
		}
		return &alert.NatsSink{URL: s.URL, Subject: s.Subject, Body: s.Body}, nil
	default:
		return nil, cronerr.New(cronerr.KindInvalidPattern, fmt.Sprintf("unknown sink type %q", s.Type))
	}
}

// Alerts holds the ordered sink lists for each outcome channel.
type Alerts struct {
	OnFailure []sinkYAML `yaml:"on_failure"`
	OnSuccess []sinkYAML `yaml:"on_success"`
}

func (a Alerts) build() (onSuccess, onFailure []alert.Sink, err error) {
	for _, s := range a.OnSuccess {
		sink, buildErr := s.build()
		if buildErr != nil {
			return nil, nil, buildErr
		}
		onSuccess = append(onSuccess, sink)
	}
	for _, s := range a.OnFailure {
		sink, buildErr := s.build()
		if buildErr != nil {
			return nil, nil, buildErr
		}
		onFailure = append(onFailure, sink)
	}
	return onSuccess, onFailure, nil
}

// detailedYAML mirrors schedule.Detailed but lets day_of_week be either a
// scalar compact token or a raw sequence of weekday names.
type detailedYAML struct {
	DayOfWeek yaml.Node `yaml:"day_of_week"`
	Year      string    `yaml:"year"`
	Month     string    `yaml:"month"`
	Day       string    `yaml:"day"`
	Hour      string    `yaml:"hour"`
	Minute    string    `yaml:"minute"`
	Second    string    `yaml:"second"`
	Timezone  string    `yaml:"timezone"`
}

func (d detailedYAML) toDetailed() (schedule.Detailed, error) {
	sd := schedule.Detailed{
		Year: d.Year, Month: d.Month, Day: d.Day,
		Hour: d.Hour, Minute: d.Minute, Second: d.Second,
		Timezone: d.Timezone,
	}
	switch d.DayOfWeek.Kind {
	case 0:
		// unset
	case yaml.ScalarNode:
		sd.DayOfWeek = d.DayOfWeek.Value
	case yaml.SequenceNode:
		if err := d.DayOfWeek.Decode(&sd.DayOfWeekList); err != nil {
			return schedule.Detailed{}, cronerr.Wrap(cronerr.KindInvalidPattern, "day_of_week list", err)
		}
	default:
		return schedule.Detailed{}, cronerr.New(cronerr.KindInvalidPattern, "day_of_week must be a token or a list")
	}
	return sd, nil
}

// whenField accepts either a compact-form schedule string or a detailed
// mapping for the "when" task key.
type whenField struct {
	node yaml.Node
}

func (w *whenField) UnmarshalYAML(node *yaml.Node) error {
	w.node = *node
	return nil
}

func (w *whenField) empty() bool { return w.node.Kind == 0 }

func (w *whenField) build() (schedule.Schedule, error) {
	switch w.node.Kind {
	case yaml.ScalarNode:
		return schedule.ParseCompact(w.node.Value)
	case yaml.MappingNode:
		var dy detailedYAML
		if err := w.node.Decode(&dy); err != nil {
			return schedule.Schedule{}, cronerr.Wrap(cronerr.KindInvalidPattern, "when", err)
		}
		detailed, err := dy.toDetailed()
		if err != nil {
			return schedule.Schedule{}, err
		}
		return detailed.Build()
	default:
		return schedule.Schedule{}, cronerr.New(cronerr.KindInvalidPattern, "when must be a string or a mapping")
	}
}

// TaskYAML is the on-disk shape of one task entry.
type TaskYAML struct {
	Name    string     `yaml:"name"`
	Command string     `yaml:"command"`
	When    *whenField `yaml:"when,omitempty"`
	Every   string     `yaml:"every,omitempty"`

	Timezone string `yaml:"timezone,omitempty"`

	// WorkingDirectory is the canonical field name; RuntimeDir is accepted
	// as a legacy alias.
	WorkingDirectory string `yaml:"working_directory,omitempty"`
	RuntimeDir       string `yaml:"runtime_dir,omitempty"`

	Env   map[string]string `yaml:"env,omitempty"`
	RunAs string            `yaml:"run_as,omitempty"`
	Shell string            `yaml:"shell,omitempty"`

	// Stdout/Stderr are the canonical field names; StdoutLog/StderrLog are
	// accepted as legacy aliases.
	Stdout    string `yaml:"stdout,omitempty"`
	Stderr    string `yaml:"stderr,omitempty"`
	StdoutLog string `yaml:"stdout_log,omitempty"`
	StderrLog string `yaml:"stderr_log,omitempty"`

	TimeLimit        string `yaml:"time_limit,omitempty"`
	AvoidOverlapping bool   `yaml:"avoid_overlapping,omitempty"`
}

func parseRunAs(s string) (*task.RunAs, error) {
	if s == "" {
		return nil, nil
	}
	user, group, _ := strings.Cut(s, ":")
	return &task.RunAs{User: user, Group: group}, nil
}

func (ty TaskYAML) build() (*task.Task, error) {
	if ty.Name == "" {
		return nil, cronerr.New(cronerr.KindInvalidPattern, "task name is required")
	}
	hasWhen := ty.When != nil && !ty.When.empty()
	hasEvery := ty.Every != ""
	if hasWhen == hasEvery {
		return nil, cronerr.New(cronerr.KindInvalidPattern,
			fmt.Sprintf("task %q must set exactly one of when or every", ty.Name))
	}

	var (
		sch      *schedule.Schedule
		interval *schedule.IntervalSchedule
	)
	if hasWhen {
		s, err := ty.When.build()
		if err != nil {
			return nil, err
		}
		sch = &s
	} else {
		d, err := schedule.ParseInterval(ty.Every)
		if err != nil {
			return nil, err
		}
		interval = &schedule.IntervalSchedule{Period: d}
	}

	t := task.New(ty.Name, ty.Command, sch, interval)
	t.Timezone = ty.Timezone

	workDir := ty.WorkingDirectory
	if workDir == "" {
		workDir = ty.RuntimeDir
	}
	t.WorkDir = workDir

	t.Env = ty.Env
	runAs, err := parseRunAs(ty.RunAs)
	if err != nil {
		return nil, err
	}
	t.RunAs = runAs

	if ty.Shell != "" {
		t.Shell = ty.Shell
	}
	stdout := ty.Stdout
	if stdout == "" {
		stdout = ty.StdoutLog
	}
	if stdout != "" {
		t.StdoutLog = stdout
	}
	stderr := ty.Stderr
	if stderr == "" {
		stderr = ty.StderrLog
	}
	if stderr != "" {
		t.StderrLog = stderr
	}
	if ty.TimeLimit != "" {
		limit, err := schedule.ParseInterval(ty.TimeLimit)
		if err != nil {
			return nil, err
		}
		t.TimeLimit = limit
	}
	t.AvoidOverlap = ty.AvoidOverlapping

	return t, nil
}

// File is the parsed YAML configuration file shape, before tasks and
// sinks are resolved into their runtime types.
type File struct {
	Logging Logging    `yaml:"logging"`
	Alerts  Alerts     `yaml:"alerts"`
	Tasks   []TaskYAML `yaml:"tasks"`
}

// Resolved is the fully built runtime configuration.
type Resolved struct {
	Logging   Logging
	OnSuccess []alert.Sink
	OnFailure []alert.Sink
	Tasks     []*task.Task
}

// Parse unmarshals raw YAML bytes (after env-var expansion) into a
// Resolved configuration, validating cross-field invariants the YAML
// structs alone cannot express (exactly-one-of when/every, unique task
// names).
func Parse(data []byte) (*Resolved, error) {
	expanded := os.ExpandEnv(string(data))

	var f File
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, cronerr.Wrap(cronerr.KindInvalidPattern, "parse config YAML", err)
	}

	applyLoggingDefaults(&f.Logging)

	onSuccess, onFailure, err := f.Alerts.build()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(f.Tasks))
	tasks := make([]*task.Task, 0, len(f.Tasks))
	for _, ty := range f.Tasks {
		t, err := ty.build()
		if err != nil {
			return nil, err
		}
		if seen[t.Name] {
			return nil, cronerr.New(cronerr.KindInvalidPattern, "duplicate task name "+t.Name)
		}
		seen[t.Name] = true
		tasks = append(tasks, t)
	}

	return &Resolved{
		Logging:   f.Logging,
		OnSuccess: onSuccess,
		OnFailure: onFailure,
		Tasks:     tasks,
	}, nil
}

func applyLoggingDefaults(l *Logging) {
	if l.Output == "" {
		l.Output = "stdout"
	}
	if l.Level == "" {
		l.Level = "info"
	}
}

// Load reads, env-expands, and parses the config file at path.
func Load(path string) (*Resolved, error) {
	// A .env/.env.local next to the working directory is loaded first so
	// ${VAR} expansion below can see operator-supplied secrets (SMTP
	// passwords, webhook tokens) without putting them in the YAML file.
	// Each file is optional and loaded on its own.
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cronerr.Wrap(cronerr.KindIO, "read config file "+path, err)
	}
	return Parse(data)
}

// Discover resolves the config file path: an explicit override, then
// ./config.yml, then the XDG config dir, then /etc/cron-rs.yml.
func Discover(override string) (string, error) {
	if override != "" {
		return override, nil
	}

	candidates := []string{"./config.yml"}
	if xdgPath, err := xdg.ConfigFile(filepath.Join(AppName, "config.yml")); err == nil {
		candidates = append(candidates, xdgPath)
	}
	candidates = append(candidates, "/etc/cron-rs.yml")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", cronerr.New(cronerr.KindIO, "no configuration file found in "+strings.Join(candidates, ", "))
}

// Generate writes a commented example configuration to path, refusing to
// overwrite an existing file unless force is set.
func Generate(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return cronerr.New(cronerr.KindIO, path+" already exists (use --force to overwrite)")
		} else if !errors.Is(err, fs.ErrNotExist) {
			return cronerr.Wrap(cronerr.KindIO, "stat "+path, err)
		}
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return cronerr.Wrap(cronerr.KindIO, "create config directory", err)
		}
	}
	if err := os.WriteFile(path, []byte(exampleConfigYAML), 0o644); err != nil {
		return cronerr.Wrap(cronerr.KindIO, "write "+path, err)
	}
	return nil
}

const exampleConfigYAML = `# cron-rs example configuration.
logging:
  output: stdout # stdout, file, syslog
  level: info

alerts:
  on_failure:
    - type: cmd
      cmd: "echo {{task_name}} failed with {{exit_code}} >&2"
  on_success: []

tasks:
  - name: nightly-backup
    command: "/usr/local/bin/backup.sh"
    when: "* *-*-* 2:0:0"
    working_directory: /var/backups
    time_limit: 30m
    avoid_overlapping: true

  - name: heartbeat
    command: "curl -fsS https://example.com/health"
    every: "5 minutes"
`
