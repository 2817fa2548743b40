package usecase

import (
	"context"
	"fmt"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

// Job function names.
const (
	JobCollect   = "collect-offers"
	JobEnrich    = "enrich-prices"
	JobPublish   = "publish-queue"
	JobAggregate = "price-aggregate"
	JobHealth    = "health-check"
	JobCleanup   = "cleanup-old-data"
)

const defaultMaxRetries = 3

// JobOverride adjusts one default job. Empty fields keep the default.
type JobOverride struct {
	ID         string
	Function   string
	Schedule   string
	MaxRetries int
	Enabled    *bool
}

// DefaultJobs returns the standard job set and cadence.
func DefaultJobs() []domain.ScheduledJob {
	defs := []struct{ id, schedule string }{
		{JobCollect, "@every 90s"},
		{JobEnrich, "@every 15m"},
		{JobPublish, "@every 45s"},
		{JobAggregate, "@every 30m"},
		{JobHealth, "@every 5m"},
		{JobCleanup, "0 3 * * *"},
	}
	jobs := make([]domain.ScheduledJob, 0, len(defs))
	for _, d := range defs {
		jobs = append(jobs, domain.ScheduledJob{
			ID:           d.id,
			FunctionName: d.id,
			Schedule:     d.schedule,
			Status:       domain.JobPending,
			Enabled:      true,
			MaxRetries:   defaultMaxRetries,
		})
	}
	return jobs
}

// MergeJobs applies overrides to the defaults. An override with an unknown
// ID adds a new job.
func MergeJobs(defaults []domain.ScheduledJob, overrides []JobOverride) []domain.ScheduledJob {
	jobs := append([]domain.ScheduledJob(nil), defaults...)
	index := make(map[string]int, len(jobs))
	for i, j := range jobs {
		index[j.ID] = i
	}

	for _, o := range overrides {
		if o.ID == "" {
			continue
		}
		i, ok := index[o.ID]
		if !ok {
			jobs = append(jobs, domain.ScheduledJob{
				ID:           o.ID,
				FunctionName: o.ID,
				Status:       domain.JobPending,
				Enabled:      true,
				MaxRetries:   defaultMaxRetries,
			})
			i = len(jobs) - 1
			index[o.ID] = i
		}
		job := &jobs[i]
		if o.Function != "" {
			job.FunctionName = o.Function
		}
		if o.Schedule != "" {
			job.Schedule = o.Schedule
		}
		if o.MaxRetries > 0 {
			job.MaxRetries = o.MaxRetries
		}
		if o.Enabled != nil {
			job.Enabled = *o.Enabled
		}
	}
	return jobs
}

// Scheduler wires the job driver with the pipeline use cases.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline}
}

// Start registers the pipeline functions and jobs, then starts the driver.
func (s *Scheduler) Start(ctx context.Context, jobs []domain.ScheduledJob) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	s.register()
	for _, job := range jobs {
		if err := s.driver.AddJob(job); err != nil {
			return fmt.Errorf("add job %s: %w", job.ID, err)
		}
	}
	return s.driver.Start(ctx)
}

func (s *Scheduler) register() {
	p := s.pipeline
	s.driver.RegisterFunc(JobCollect, func(ctx context.Context) error {
		_, err := p.RunCollect(ctx)
		return err
	})
	s.driver.RegisterFunc(JobEnrich, func(ctx context.Context) error {
		_, err := p.RunEnrich(ctx)
		return err
	})
	s.driver.RegisterFunc(JobPublish, func(ctx context.Context) error {
		_, err := p.RunPublishQueue(ctx)
		return err
	})
	s.driver.RegisterFunc(JobAggregate, func(ctx context.Context) error {
		_, err := p.RunAggregate(ctx)
		return err
	})
	s.driver.RegisterFunc(JobHealth, func(ctx context.Context) error {
		_, err := p.RunHealthCheck(ctx)
		return err
	})
	s.driver.RegisterFunc(JobCleanup, func(ctx context.Context) error {
		_, err := p.RunCleanup(ctx)
		return err
	})
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
