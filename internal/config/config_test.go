package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompactWhenTask(t *testing.T) {
	yamlSrc := []byte(`
tasks:
  - name: tick
    command: date
    when: "* *-*-* *:*:*/10"
`)
	resolved, err := Parse(yamlSrc)
	require.NoError(t, err)
	require.Len(t, resolved.Tasks, 1)

	tk := resolved.Tasks[0]
	instant := time.Date(2026, time.March, 2, 9, 0, 10, 0, time.UTC)
	due, _, err := tk.IsDue(instant, time.UTC)
	require.NoError(t, err)
	assert.True(t, due)
}

func TestDetailedWeekdayListWhenTask(t *testing.T) {
	yamlSrc := []byte(`
tasks:
  - name: weekday-job
    command: date
    when:
      day_of_week: [Mon, Thu]
      hour: "12"
      minute: "0"
      second: "0"
`)
	resolved, err := Parse(yamlSrc)
	require.NoError(t, err)
	require.Len(t, resolved.Tasks, 1)

	monday := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	due, _, err := resolved.Tasks[0].IsDue(monday, time.UTC)
	require.NoError(t, err)
	assert.True(t, due)

	due, _, err = resolved.Tasks[0].IsDue(tuesday, time.UTC)
	require.NoError(t, err)
	assert.False(t, due)
}

func TestEveryIntervalTask(t *testing.T) {
	yamlSrc := []byte(`
tasks:
  - name: heartbeat
    command: "curl -f http://localhost/health"
    every: "5 minutes"
`)
	resolved, err := Parse(yamlSrc)
	require.NoError(t, err)
	require.Len(t, resolved.Tasks, 1)
	assert.NotNil(t, resolved.Tasks[0].Interval)
}

func TestExactlyOneOfWhenOrEveryRequired(t *testing.T) {
	_, err := Parse([]byte(`
tasks:
  - name: bad
    command: date
`))
	assert.Error(t, err)

	_, err = Parse([]byte(`
tasks:
  - name: bad
    command: date
    when: "* *-*-* *:*:*"
    every: "5 minutes"
`))
	assert.Error(t, err)
}

func TestDuplicateTaskNamesRejected(t *testing.T) {
	_, err := Parse([]byte(`
tasks:
  - name: dup
    command: date
    every: "1m"
  - name: dup
    command: date
    every: "2m"
`))
	assert.Error(t, err)
}

// A malformed axis token is rejected at load time, before the loop would
// ever start.
func TestMalformedScheduleFailsValidation(t *testing.T) {
	_, err := Parse([]byte(`
tasks:
  - name: broken
    command: date
    when: "*/0 *-*-* *:*:*"
`))
	assert.Error(t, err)
}

func TestWorkingDirectoryLegacyAlias(t *testing.T) {
	resolved, err := Parse([]byte(`
tasks:
  - name: legacy
    command: date
    every: "1m"
    runtime_dir: /var/legacy
`))
	require.NoError(t, err)
	assert.Equal(t, "/var/legacy", resolved.Tasks[0].WorkDir)
}

func TestWorkingDirectoryPreferredOverLegacyAlias(t *testing.T) {
	resolved, err := Parse([]byte(`
tasks:
  - name: preferred
    command: date
    every: "1m"
    working_directory: /var/new
    runtime_dir: /var/legacy
`))
	require.NoError(t, err)
	assert.Equal(t, "/var/new", resolved.Tasks[0].WorkDir)
}

func TestStdioLegacyAliases(t *testing.T) {
	resolved, err := Parse([]byte(`
tasks:
  - name: legacy-stdio
    command: date
    every: "1m"
    stdout_log: /var/log/legacy_out.log
    stderr_log: /var/log/legacy_err.log
`))
	require.NoError(t, err)
	assert.Equal(t, "/var/log/legacy_out.log", resolved.Tasks[0].StdoutLog)
	assert.Equal(t, "/var/log/legacy_err.log", resolved.Tasks[0].StderrLog)
}

func TestStdioPreferredOverLegacyAliases(t *testing.T) {
	resolved, err := Parse([]byte(`
tasks:
  - name: preferred-stdio
    command: date
    every: "1m"
    stdout: /var/log/new_out.log
    stdout_log: /var/log/legacy_out.log
    stderr: /var/log/new_err.log
    stderr_log: /var/log/legacy_err.log
`))
	require.NoError(t, err)
	assert.Equal(t, "/var/log/new_out.log", resolved.Tasks[0].StdoutLog)
	assert.Equal(t, "/var/log/new_err.log", resolved.Tasks[0].StderrLog)
}

func TestTimeLimitParsed(t *testing.T) {
	resolved, err := Parse([]byte(`
tasks:
  - name: limited
    command: "sleep 10"
    every: "1m"
    time_limit: 1s
`))
	require.NoError(t, err)
	assert.Equal(t, time.Second, resolved.Tasks[0].TimeLimit)
}

func TestAlertSinksBuilt(t *testing.T) {
	resolved, err := Parse([]byte(`
alerts:
  on_failure:
    - type: cmd
      cmd: "echo fail"
  on_success:
    - type: webhook
      url: "https://example.com/hook"
tasks:
  - name: t
    command: date
    every: "1m"
`))
	require.NoError(t, err)
	require.Len(t, resolved.OnFailure, 1)
	require.Len(t, resolved.OnSuccess, 1)
	assert.Equal(t, "cmd", resolved.OnFailure[0].Name())
	assert.Equal(t, "webhook", resolved.OnSuccess[0].Name())
}

func TestLoggingDefaults(t *testing.T) {
	resolved, err := Parse([]byte(`tasks: []`))
	require.NoError(t, err)
	assert.Equal(t, "stdout", resolved.Logging.Output)
	assert.Equal(t, "info", resolved.Logging.Level)
}

func TestEnvVarExpansion(t *testing.T) {
	t.Setenv("CRON_RS_TEST_CMD", "echo hi")
	resolved, err := Parse([]byte(`
tasks:
  - name: t
    command: "${CRON_RS_TEST_CMD}"
    every: "1m"
`))
	require.NoError(t, err)
	assert.Equal(t, "echo hi", resolved.Tasks[0].Command)
}
