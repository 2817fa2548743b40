package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

var (
	ErrAlreadyRunning  = errors.New("scheduler already running")
	ErrUnknownJob      = errors.New("unknown job")
	ErrUnknownFunction = errors.New("unknown job function")
)

// Options tune the dispatch loop. Observer receives a job snapshot after
// every state transition.
type Options struct {
	Tick          time.Duration
	MaxConcurrent int
	JobTimeout    time.Duration
	RetryDelay    time.Duration
	Location      *time.Location
	Store         ports.JobStore
	Logger        *slog.Logger
	Now           func() time.Time
	Observer      func(domain.ScheduledJob)
}

// Metrics counts jobs per state.
type Metrics struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Paused    int `json:"paused"`
	Cancelled int `json:"cancelled"`
}

type entry struct {
	job      domain.ScheduledJob
	schedule cron.Schedule
}

// Scheduler runs registered functions on cron schedules with retries and a
// per-execution timeout.
type Scheduler struct {
	opts  Options
	log   *slog.Logger
	funcs map[string]func(context.Context) error

	mu      sync.Mutex
	jobs    map[string]*entry
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
}

var _ ports.Scheduler = (*Scheduler)(nil)

// New builds a stopped scheduler.
func New(opts Options) *Scheduler {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 5 * time.Minute
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Scheduler{
		opts:  opts,
		log:   log,
		funcs: make(map[string]func(context.Context) error),
		jobs:  make(map[string]*entry),
	}
}

// RegisterFunc makes fn available to jobs under name.
func (s *Scheduler) RegisterFunc(name string, fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs[name] = fn
}

// AddJob adds or replaces a job definition. A zero NextRunAt is computed
// from the schedule.
func (s *Scheduler) AddJob(job domain.ScheduledJob) error {
	if job.ID == "" {
		return fmt.Errorf("job id is empty")
	}
	schedule, err := cron.ParseStandard(job.Schedule)
	if err != nil {
		return fmt.Errorf("parse schedule %q for job %s: %w", job.Schedule, job.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.funcs[job.FunctionName]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFunction, job.FunctionName)
	}
	if job.MaxRetries < 0 {
		job.MaxRetries = 0
	}
	if !job.Enabled {
		job.Status = domain.JobPaused
	} else if job.Status == "" {
		job.Status = domain.JobPending
	}
	now := s.now()
	if job.NextRunAt.IsZero() {
		job.NextRunAt = schedule.Next(now)
	}
	job.UpdatedAt = now

	s.jobs[job.ID] = &entry{job: job, schedule: schedule}
	return nil
}

// Start restores persisted job state and begins the dispatch loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	if err := s.restore(ctx); err != nil {
		s.log.Warn("restore job state failed", "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.loop(runCtx, done)
	s.log.Info("scheduler started", "jobs", len(s.Jobs()), "tick", s.opts.Tick)
	return nil
}

// Stop cancels the loop and waits for in-flight executions or ctx expiry.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	finished := make(chan struct{})
	go func() {
		<-done
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// Running reports whether the dispatch loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	s.dispatchDue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// dispatchDue starts every due job up to the concurrency cap. Jobs over the
// cap wait for a later tick.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	now := s.now()
	inFlight := 0
	var due []*entry
	for _, e := range s.jobs {
		if e.job.Status == domain.JobRunning {
			inFlight++
			continue
		}
		if isDue(e.job, now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].job.NextRunAt.Equal(due[j].job.NextRunAt) {
			return due[i].job.NextRunAt.Before(due[j].job.NextRunAt)
		}
		return due[i].job.ID < due[j].job.ID
	})

	type dispatch struct {
		job domain.ScheduledJob
		fn  func(context.Context) error
	}
	var started []dispatch
	for _, e := range due {
		if inFlight >= s.opts.MaxConcurrent {
			break
		}
		e.job.Status = domain.JobRunning
		e.job.LastRunAt = now
		e.job.UpdatedAt = now
		inFlight++
		started = append(started, dispatch{job: e.job, fn: s.funcs[e.job.FunctionName]})
		s.wg.Add(1)
	}
	s.mu.Unlock()

	for _, d := range started {
		s.log.Debug("job dispatched", "job_id", d.job.ID, "status", d.job.Status)
		s.publish(ctx, d.job)
		go s.execute(ctx, d.job.ID, d.fn)
	}
}

func isDue(job domain.ScheduledJob, now time.Time) bool {
	if !job.Enabled {
		return false
	}
	switch job.Status {
	case domain.JobPending, domain.JobCompleted:
		return !job.NextRunAt.After(now)
	default:
		return false
	}
}

func (s *Scheduler) execute(ctx context.Context, id string, fn func(context.Context) error) {
	defer s.wg.Done()

	jobCtx, cancel := context.WithTimeout(ctx, s.opts.JobTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("job panicked: %v", r)
			}
		}()
		result <- fn(jobCtx)
	}()

	var err error
	select {
	case err = <-result:
	case <-jobCtx.Done():
		err = fmt.Errorf("job timed out after %s: %w", s.opts.JobTimeout, jobCtx.Err())
	}
	s.finish(ctx, id, err)
}

func (s *Scheduler) finish(ctx context.Context, id string, runErr error) {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	now := s.now()
	job := &e.job
	job.RunCount++
	job.UpdatedAt = now

	switch {
	case runErr == nil:
		job.RetryCount = 0
		job.LastError = ""
		job.Status = domain.JobCompleted
		job.NextRunAt = e.schedule.Next(now.In(s.opts.Location))
	case ctx.Err() != nil:
		job.LastError = runErr.Error()
		job.Status = domain.JobCancelled
	default:
		job.RetryCount++
		job.LastError = runErr.Error()
		if job.RetryCount < job.MaxRetries {
			job.Status = domain.JobPending
			job.NextRunAt = now.Add(s.opts.RetryDelay)
		} else {
			job.Status = domain.JobFailed
		}
	}
	if !job.Enabled {
		job.Status = domain.JobPaused
	}
	snapshot := *job
	s.mu.Unlock()

	if runErr != nil {
		s.log.Warn("job run failed", "job_id", id, "status", snapshot.Status,
			"retry_count", snapshot.RetryCount, "error", runErr)
	} else {
		s.log.Debug("job run completed", "job_id", id, "next_run_at", snapshot.NextRunAt)
	}
	s.publish(ctx, snapshot)
}

// Enable resumes a paused or failed job.
func (s *Scheduler) Enable(ctx context.Context, id string) error {
	return s.mutate(ctx, id, func(e *entry, now time.Time) {
		e.job.Enabled = true
		if e.job.Status == domain.JobRunning {
			return
		}
		if e.job.Status == domain.JobFailed {
			e.job.RetryCount = 0
		}
		e.job.Status = domain.JobPending
		e.job.NextRunAt = e.schedule.Next(now.In(s.opts.Location))
	})
}

// Disable pauses a job. A running execution finishes and the job stays paused.
func (s *Scheduler) Disable(ctx context.Context, id string) error {
	return s.mutate(ctx, id, func(e *entry, _ time.Time) {
		e.job.Enabled = false
		if e.job.Status != domain.JobRunning {
			e.job.Status = domain.JobPaused
		}
	})
}

// Trigger makes an enabled job due immediately.
func (s *Scheduler) Trigger(ctx context.Context, id string) error {
	return s.mutate(ctx, id, func(e *entry, now time.Time) {
		if !e.job.Enabled || e.job.Status == domain.JobRunning {
			return
		}
		if e.job.Status == domain.JobFailed {
			e.job.RetryCount = 0
		}
		e.job.Status = domain.JobPending
		e.job.NextRunAt = now
	})
}

func (s *Scheduler) mutate(ctx context.Context, id string, fn func(*entry, time.Time)) error {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	now := s.now()
	fn(e, now)
	e.job.UpdatedAt = now
	snapshot := e.job
	s.mu.Unlock()

	s.publish(ctx, snapshot)
	return nil
}

// Job returns one job snapshot.
func (s *Scheduler) Job(id string) (domain.ScheduledJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return domain.ScheduledJob{}, false
	}
	return e.job, true
}

// Jobs returns all job snapshots sorted by id.
func (s *Scheduler) Jobs() []domain.ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ScheduledJob, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Metrics counts jobs per status.
func (s *Scheduler) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := Metrics{Total: len(s.jobs)}
	for _, e := range s.jobs {
		switch e.job.Status {
		case domain.JobPending:
			m.Pending++
		case domain.JobRunning:
			m.Running++
		case domain.JobCompleted:
			m.Completed++
		case domain.JobFailed:
			m.Failed++
		case domain.JobPaused:
			m.Paused++
		case domain.JobCancelled:
			m.Cancelled++
		}
	}
	return m
}

// restore overlays persisted runtime state on the configured jobs. Jobs
// interrupted mid-run come back as pending.
func (s *Scheduler) restore(ctx context.Context) error {
	if s.opts.Store == nil {
		return nil
	}
	stored, err := s.opts.Store.LoadJobs(ctx)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, saved := range stored {
		e, ok := s.jobs[saved.ID]
		if !ok {
			continue
		}
		e.job.Status = saved.Status
		e.job.Enabled = saved.Enabled
		e.job.RunCount = saved.RunCount
		e.job.RetryCount = saved.RetryCount
		e.job.LastRunAt = saved.LastRunAt
		e.job.LastError = saved.LastError
		if !saved.NextRunAt.IsZero() {
			e.job.NextRunAt = saved.NextRunAt
		}
		switch {
		case !e.job.Enabled:
			e.job.Status = domain.JobPaused
		case e.job.Status == domain.JobRunning, e.job.Status == domain.JobCancelled, e.job.Status == domain.JobPaused:
			e.job.Status = domain.JobPending
		}
	}
	return nil
}

func (s *Scheduler) publish(ctx context.Context, job domain.ScheduledJob) {
	if s.opts.Observer != nil {
		s.opts.Observer(job)
	}
	if s.opts.Store == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.opts.Store.SaveJob(saveCtx, job); err != nil {
		s.log.Warn("persist job state failed", "job_id", job.ID, "error", err)
	}
}

func (s *Scheduler) now() time.Time {
	return s.opts.Now().In(s.opts.Location)
}
