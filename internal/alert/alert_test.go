package alert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cron-rs/internal/task"
)

func sampleFailureContext() *task.RunContext {
	return &task.RunContext{
		TaskName:     "backup",
		Command:      "false",
		StartTime:    time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
		EndTime:      time.Date(2026, time.March, 2, 9, 0, 1, 0, time.UTC),
		Duration:     time.Second,
		ExitCode:     1,
		ErrorMessage: "",
	}
}

// A cmd sink appends exactly one line per firing containing the task
// name and exit code.
func TestCmdSinkAppendsOneLinePerFiring(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "x")

	sink := &CmdSink{Cmd: "echo {{task_name}} {{exit_code}} >> " + logFile}
	rc := sampleFailureContext()

	require.NoError(t, sink.Send(context.Background(), rc))
	require.NoError(t, sink.Send(context.Background(), rc))

	out, err := os.ReadFile(logFile)
	require.NoError(t, err)
	lines := splitNonEmptyLines(string(out))
	assert.Len(t, lines, 2)
	for _, line := range lines {
		assert.Equal(t, "backup 1", line)
	}
}

func TestCmdSinkReportsNonzeroExit(t *testing.T) {
	sink := &CmdSink{Cmd: "exit 3"}
	err := sink.Send(context.Background(), sampleFailureContext())
	assert.Error(t, err)
}

func TestWebhookSinkSuccess(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := &WebhookSink{URL: srv.URL, Body: "task={{task_name}}"}
	err := sink.Send(context.Background(), sampleFailureContext())
	require.NoError(t, err)
	assert.Contains(t, gotBody, "task=backup")
}

func TestWebhookSinkNonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := &WebhookSink{URL: srv.URL}
	err := sink.Send(context.Background(), sampleFailureContext())
	assert.Error(t, err)
}

func TestPipelineDispatchesToFailureChannelOnly(t *testing.T) {
	dir := t.TempDir()
	failFile := filepath.Join(dir, "fail")
	successFile := filepath.Join(dir, "success")

	pipeline := New(zerolog.Nop(),
		[]Sink{&CmdSink{Cmd: "echo ok >> " + successFile}},
		[]Sink{&CmdSink{Cmd: "echo bad >> " + failFile}},
	)

	pipeline.Dispatch(context.Background(), sampleFailureContext())

	_, err := os.Stat(failFile)
	assert.NoError(t, err)
	_, err = os.Stat(successFile)
	assert.True(t, os.IsNotExist(err))
}

func TestPipelineSwallowsSinkFailure(t *testing.T) {
	pipeline := New(zerolog.Nop(), nil, []Sink{&CmdSink{Cmd: "exit 1"}})
	assert.NotPanics(t, func() {
		pipeline.Dispatch(context.Background(), sampleFailureContext())
	})
}

func splitNonEmptyLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
