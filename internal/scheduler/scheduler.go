// Package scheduler runs named jobs on fixed intervals and on demand.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RunFunc is one execution of a job.
type RunFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	run      RunFunc
	kick     chan struct{}
}

// Scheduler runs each job in its own goroutine, so runs of the same job
// never overlap. Kicks that arrive while a run is pending are coalesced.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	log     *slog.Logger
	wg      sync.WaitGroup
	started bool
}

func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{jobs: make(map[string]*job), log: log}
}

// Add registers a job. It must be called before Start.
func (s *Scheduler) Add(name string, interval time.Duration, run RunFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler: add %q after start", name)
	}
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("scheduler: duplicate job %q", name)
	}
	if interval <= 0 {
		return fmt.Errorf("scheduler: job %q has non-positive interval", name)
	}
	s.jobs[name] = &job{name: name, interval: interval, run: run, kick: make(chan struct{}, 1)}
	s.order = append(s.order, name)
	return nil
}

// Kick asks name to run as soon as it is idle. It never blocks and reports
// whether the job exists.
func (s *Scheduler) Kick(name string) bool {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case j.kick <- struct{}{}:
	default:
	}
	return true
}

// Start launches every job. Each job runs once immediately and then on its
// interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	for _, name := range s.order {
		j := s.jobs[name]
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, j)
		}()
	}
}

// Wait blocks until every job loop has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	s.log.Info("job started", "job", j.name, "interval", j.interval)
	s.runOnce(ctx, j, "start")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("job stopped", "job", j.name)
			return
		case <-ticker.C:
			s.runOnce(ctx, j, "interval")
		case <-j.kick:
			s.runOnce(ctx, j, "kick")
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j *job, trigger string) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return j.run(ctx)
	}()
	if err != nil {
		s.log.Error("job failed", "job", j.name, "trigger", trigger, "error", err)
		return
	}
	s.log.Debug("job finished", "job", j.name, "trigger", trigger, "duration", time.Since(start))
}
