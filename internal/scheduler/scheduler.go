// Package scheduler runs sync passes on a cron schedule and on demand,
// never more than one at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/falcorrus/bao-tg-importer/internal/pipeline"
)

// ErrBusy is returned when a run is requested while another is in flight.
var ErrBusy = errors.New("sync already running")

// RunFunc performs one sync pass.
type RunFunc func(ctx context.Context) (pipeline.Summary, error)

// Status is a snapshot of the scheduler.
type Status struct {
	Running   bool              `json:"running"`
	Schedule  string            `json:"schedule,omitempty"`
	Next      time.Time         `json:"next_run,omitempty"`
	Last      *pipeline.Summary `json:"last_run,omitempty"`
	LastError string            `json:"last_error,omitempty"`
}

type Scheduler struct {
	schedule string
	run      RunFunc
	cron     *cron.Cron
	sem      *semaphore.Weighted
	logger   *slog.Logger

	ctx context.Context
	wg  sync.WaitGroup

	mu      sync.Mutex
	running bool
	last    *pipeline.Summary
	lastErr error
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field, plus descriptors like
// "@every 15m".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New validates schedule and returns a stopped Scheduler. An empty schedule
// disables timed runs; Trigger still works.
func New(schedule string, run RunFunc, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		schedule: schedule,
		run:      run,
		cron:     cron.New(cron.WithParser(cronParser)),
		sem:      semaphore.NewWeighted(1),
		logger:   logger,
		ctx:      context.Background(),
	}
	if schedule != "" {
		if _, err := s.cron.AddFunc(schedule, s.fire); err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
		}
	}
	return s, nil
}

// Start begins firing on schedule. Runs use ctx and stop when it is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	if s.schedule != "" {
		s.logger.Info("scheduled sync", "schedule", s.schedule)
	}
}

// Stop halts the schedule and waits for the run in flight, if any.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// Trigger starts a run in the background, or returns ErrBusy.
func (s *Scheduler) Trigger() error {
	if !s.sem.TryAcquire(1) {
		return ErrBusy
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		s.execute(s.ctx)
	}()
	return nil
}

// RunNow performs a run in the caller's goroutine, or returns ErrBusy.
func (s *Scheduler) RunNow(ctx context.Context) (pipeline.Summary, error) {
	if !s.sem.TryAcquire(1) {
		return pipeline.Summary{}, ErrBusy
	}
	defer s.sem.Release(1)
	return s.execute(ctx)
}

func (s *Scheduler) Status() Status {
	st := Status{Schedule: s.schedule}
	if entries := s.cron.Entries(); len(entries) > 0 {
		st.Next = entries[0].Next
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st.Running = s.running
	if s.last != nil {
		last := *s.last
		st.Last = &last
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Scheduler) fire() {
	if _, err := s.RunNow(s.ctx); errors.Is(err, ErrBusy) {
		s.logger.Warn("previous sync still running, skipping scheduled run")
	}
}

func (s *Scheduler) execute(ctx context.Context) (pipeline.Summary, error) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	sum, err := s.run(ctx)
	if err != nil {
		s.logger.Error("sync run failed", "error", err)
	}

	s.mu.Lock()
	s.running = false
	s.last = &sum
	s.lastErr = err
	s.mu.Unlock()
	return sum, err
}
