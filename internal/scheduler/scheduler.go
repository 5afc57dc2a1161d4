// Package scheduler drives the single 1 Hz ticker loop: each whole
// second, every task is evaluated in declaration order and due firings
// are handed to a bounded worker pool. One shared tick rather than a
// ticker per task — the dispatcher must see all tasks at the same
// instant to keep their relative ordering deterministic.
package scheduler

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"cron-rs/internal/alert"
	"cron-rs/internal/runner"
	"cron-rs/internal/task"
)

// shutdownGrace bounds how long the loop waits for in-flight runs to exit
// after a shutdown signal before the process exits regardless.
const shutdownGrace = 10 * time.Second

// Scheduler owns the tick loop, the worker pool, and the tasks it drives.
type Scheduler struct {
	tasks    []*task.Task
	runner   *runner.Runner
	pipeline *alert.Pipeline
	log      zerolog.Logger
	systemTZ *time.Location
	poolSize int
}

// New builds a Scheduler over tasks, in declaration order. poolSize is
// max(4, len(tasks)) so every task can have a run in flight at once.
func New(tasks []*task.Task, r *runner.Runner, pipeline *alert.Pipeline, log zerolog.Logger, systemTZ *time.Location) *Scheduler {
	poolSize := len(tasks)
	if poolSize < 4 {
		poolSize = 4
	}
	return &Scheduler{
		tasks:    tasks,
		runner:   r,
		pipeline: pipeline,
		log:      log,
		systemTZ: systemTZ,
		poolSize: poolSize,
	}
}

// Run blocks until SIGTERM/SIGINT is received and in-flight work has
// drained or shutdownGrace has elapsed, whichever comes first.
func (s *Scheduler) Run() error {
	// The anchor is back-dated by one period so the first tick already sees
	// a full elapsed interval; advancement then proceeds in whole periods
	// from the true start time.
	anchor := time.Now()
	for _, t := range s.tasks {
		if t.Interval != nil {
			t.Interval.SetAnchor(anchor.Add(-t.Interval.Period))
		}
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	signal.Ignore(syscall.SIGHUP)
	defer signal.Stop(sigCh)

	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	sem := make(chan struct{}, s.poolSize)
	var wg sync.WaitGroup

	shuttingDown := make(chan struct{})
	go func() {
		<-sigCh
		s.log.Info().Msg("shutdown signal received")
		close(shuttingDown)
	}()

	alignToNextSecond()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-shuttingDown:
			return s.shutdown(cancelRuns, &wg)
		case now := <-ticker.C:
			s.tick(now, sem, &wg, runCtx, shuttingDown)
		}
	}
}

// alignToNextSecond sleeps until the next whole-second boundary so the
// ticker's first tick lands on a clean second.
func alignToNextSecond() {
	now := time.Now()
	next := now.Truncate(time.Second).Add(time.Second)
	time.Sleep(time.Until(next))
}

// tick evaluates every task in declaration order and dispatches due
// firings onto the worker pool without blocking the ticker.
func (s *Scheduler) tick(now time.Time, sem chan struct{}, wg *sync.WaitGroup, runCtx context.Context, shuttingDown <-chan struct{}) {
	select {
	case <-shuttingDown:
		return
	default:
	}

	for _, t := range s.tasks {
		due, coalesced, err := t.IsDue(now, s.systemTZ)
		if err != nil {
			s.log.Warn().Str("task", t.Name).Err(err).Msg("schedule evaluation failed")
			continue
		}
		if coalesced {
			s.log.Warn().Str("task", t.Name).Msg("interval schedule coalesced missed firings into one")
		}
		if !due {
			continue
		}

		token, ok := t.TryBegin()
		if !ok {
			s.log.Warn().Str("task", t.Name).Msg("skipped firing: previous run still in flight")
			continue
		}

		wg.Add(1)
		go s.dispatch(runCtx, t, token, sem, wg)
	}
}

// dispatch runs one firing on a worker slot: it blocks on the Runner
// (which itself blocks on waitpid), then routes the result through the
// alert pipeline. The slot is acquired here, not in tick, so a saturated
// pool delays the run rather than stalling the ticker.
func (s *Scheduler) dispatch(ctx context.Context, t *task.Task, token task.RunToken, sem chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	sem <- struct{}{}
	defer func() { <-sem }()

	rc := s.runner.Run(ctx, t, token)
	t.OnRunComplete(token, rc)
	s.pipeline.Dispatch(ctx, rc)
}

// shutdown stops accepting new runs, signals in-flight children via
// context cancellation, and waits up to shutdownGrace for them to finish.
func (s *Scheduler) shutdown(cancelRuns context.CancelFunc, wg *sync.WaitGroup) error {
	cancelRuns()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("all in-flight runs drained")
	case <-time.After(shutdownGrace):
		s.log.Warn().Msg("shutdown grace period elapsed with runs still in flight")
	}
	return nil
}
