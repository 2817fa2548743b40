// Package control is the operator surface over the source registry and the
// job scheduler. It holds no business logic of its own.
package control

import (
	"context"
	"errors"
	"time"

	"DealScanner/internal/domain"
	"DealScanner/internal/infrastructure/scheduler"
	"DealScanner/internal/scanner"
	"DealScanner/internal/usecase"
	"DealScanner/internal/validation"
)

// ErrEnvironmentLocked is returned when an operator tries to turn scraping on
// in a test or deterministic environment.
var ErrEnvironmentLocked = errors.New("scraping is locked off for this environment")

// SourceStatus is the status view of one source.
type SourceStatus struct {
	Name                string    `json:"name"`
	Domain              string    `json:"domain"`
	Enabled             bool      `json:"enabled"`
	Priority            int       `json:"priority"`
	LastError           string    `json:"last_error,omitempty"`
	LastSuccessAt       time.Time `json:"last_success_at,omitzero"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// JobStatus is the status view of one scheduled job.
type JobStatus struct {
	ID         string    `json:"id"`
	Function   string    `json:"function"`
	Schedule   string    `json:"schedule"`
	Status     string    `json:"status"`
	Enabled    bool      `json:"enabled"`
	RunCount   int       `json:"run_count"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`
	NextRunAt  time.Time `json:"next_run_at,omitzero"`
	LastRunAt  time.Time `json:"last_run_at,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
}

// Status answers whether the system runs, which sources are healthy and why
// offers were blocked.
type Status struct {
	Running           bool              `json:"running"`
	ScrapingAllowed   bool              `json:"scraping_allowed"`
	EnvironmentLocked bool              `json:"environment_locked"`
	Sources           []SourceStatus    `json:"sources"`
	Jobs              []JobStatus       `json:"jobs"`
	JobMetrics        scheduler.Metrics `json:"job_metrics"`
	Validation        ValidationStatus  `json:"validation"`
}

// ValidationStatus summarizes gate outcomes since start.
type ValidationStatus struct {
	Total    int            `json:"total"`
	Valid    int            `json:"valid"`
	Blocked  int            `json:"blocked"`
	ByReason map[string]int `json:"by_reason"`
}

// SourceFailure is one failed source of a forced collection.
type SourceFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// CollectResult reports a forced collection cycle.
type CollectResult struct {
	Skipped       bool            `json:"skipped"`
	Sources       int             `json:"sources"`
	Collected     int             `json:"collected"`
	Duplicates    int             `json:"duplicates"`
	AlreadyStored int             `json:"already_stored"`
	Queued        int             `json:"queued"`
	Failures      []SourceFailure `json:"failures"`
	DurationMS    int64           `json:"duration_ms"`
}

// Health is the liveness view.
type Health struct {
	StoreOK        bool     `json:"store_ok"`
	SourcesEnabled int      `json:"sources_enabled"`
	SourcesFailing []string `json:"sources_failing"`
	Error          string   `json:"error,omitempty"`
}

// Deps wires the controller.
type Deps struct {
	Registry  *scanner.Registry
	Scheduler *scheduler.Scheduler
	Pipeline  *usecase.Pipeline
	Gate      *validation.Gate
}

// Controller implements the operator calls.
type Controller struct {
	registry  *scanner.Registry
	scheduler *scheduler.Scheduler
	pipeline  *usecase.Pipeline
	gate      *validation.Gate
}

// New builds a controller.
func New(deps Deps) *Controller {
	return &Controller{
		registry:  deps.Registry,
		scheduler: deps.Scheduler,
		pipeline:  deps.Pipeline,
		gate:      deps.Gate,
	}
}

// SetScraping flips the global scraping switch.
func (c *Controller) SetScraping(on bool) error {
	if on && c.registry.EnvironmentLocked() {
		return ErrEnvironmentLocked
	}
	c.registry.SetScraping(on)
	return nil
}

// SetSourceEnabled toggles one source.
func (c *Controller) SetSourceEnabled(name string, on bool) error {
	return c.registry.SetEnabled(name, on)
}

// CollectNow runs one collection cycle immediately.
func (c *Controller) CollectNow(ctx context.Context) (CollectResult, error) {
	summary, err := c.pipeline.RunCollect(ctx)
	result := CollectResult{
		Skipped:       summary.Report.Skipped,
		Sources:       summary.Report.Sources,
		Collected:     summary.Dedup.Total,
		Duplicates:    summary.Dedup.Duplicates,
		AlreadyStored: summary.AlreadyStored,
		Queued:        summary.Queued,
		Failures:      make([]SourceFailure, 0, len(summary.Report.Failures)),
		DurationMS:    summary.Report.Duration.Milliseconds(),
	}
	for _, f := range summary.Report.Failures {
		result.Failures = append(result.Failures, SourceFailure{Source: f.Source, Error: f.Err.Error()})
	}
	return result, err
}

// EnableJob resumes a paused or failed job.
func (c *Controller) EnableJob(ctx context.Context, id string) error {
	return c.scheduler.Enable(ctx, id)
}

// DisableJob pauses a job.
func (c *Controller) DisableJob(ctx context.Context, id string) error {
	return c.scheduler.Disable(ctx, id)
}

// TriggerJob makes a job due on the next tick.
func (c *Controller) TriggerJob(ctx context.Context, id string) error {
	return c.scheduler.Trigger(ctx, id)
}

// Health pings the store and reports failing sources.
func (c *Controller) Health(ctx context.Context) (Health, error) {
	report, err := c.pipeline.RunHealthCheck(ctx)
	h := Health{
		StoreOK:        report.StoreOK,
		SourcesEnabled: report.SourcesEnabled,
		SourcesFailing: report.SourcesFailing,
	}
	if h.SourcesFailing == nil {
		h.SourcesFailing = []string{}
	}
	if err != nil {
		h.Error = err.Error()
	}
	return h, err
}

// Status collects the current registry, scheduler and gate state.
func (c *Controller) Status() Status {
	st := Status{
		Running:           c.scheduler.Running(),
		ScrapingAllowed:   c.registry.ScrapingAllowed(),
		EnvironmentLocked: c.registry.EnvironmentLocked(),
		JobMetrics:        c.scheduler.Metrics(),
	}

	for _, d := range c.registry.Descriptors() {
		st.Sources = append(st.Sources, sourceStatus(d))
	}
	for _, j := range c.scheduler.Jobs() {
		st.Jobs = append(st.Jobs, jobStatus(j))
	}

	st.Validation.ByReason = map[string]int{}
	if c.gate != nil {
		gs := c.gate.Stats()
		st.Validation.Total = gs.Total
		st.Validation.Valid = gs.Valid
		st.Validation.Blocked = gs.Blocked
		for reason, n := range gs.ByReason {
			st.Validation.ByReason[string(reason)] = n
		}
	}
	return st
}

func sourceStatus(d domain.SourceDescriptor) SourceStatus {
	return SourceStatus{
		Name:                d.Name,
		Domain:              d.Domain,
		Enabled:             d.Enabled,
		Priority:            d.Priority,
		LastError:           d.LastError,
		LastSuccessAt:       d.LastSuccessAt,
		ConsecutiveFailures: d.ConsecutiveFailures,
	}
}

func jobStatus(j domain.ScheduledJob) JobStatus {
	return JobStatus{
		ID:         j.ID,
		Function:   j.FunctionName,
		Schedule:   j.Schedule,
		Status:     string(j.Status),
		Enabled:    j.Enabled,
		RunCount:   j.RunCount,
		RetryCount: j.RetryCount,
		MaxRetries: j.MaxRetries,
		NextRunAt:  j.NextRunAt,
		LastRunAt:  j.LastRunAt,
		LastError:  j.LastError,
	}
}
