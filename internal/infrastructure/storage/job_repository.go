package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

// JobRepository persists scheduler state.
type JobRepository struct {
	db      *sql.DB
	dialect Dialect
}

var _ ports.JobStore = (*JobRepository)(nil)

// NewJobRepository wires a sql.DB implementation.
func NewJobRepository(db *sql.DB, dialect Dialect) *JobRepository {
	return &JobRepository{db: db, dialect: dialect}
}

// LoadJobs returns every stored job.
func (r *JobRepository) LoadJobs(ctx context.Context) ([]domain.ScheduledJob, error) {
	if r.db == nil {
		return nil, nil
	}

	query, args, err := r.dialect.builder().
		Select("id", "function_name", "schedule", "status", "enabled", "run_count",
			"retry_count", "max_retries", "next_run_at", "last_run_at", "last_error", "updated_at").
		From("scheduled_jobs").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build load jobs: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ScheduledJob
	for rows.Next() {
		var (
			job       domain.ScheduledJob
			status    string
			nextRunAt sql.NullTime
			lastRunAt sql.NullTime
		)
		err := rows.Scan(&job.ID, &job.FunctionName, &job.Schedule, &status, &job.Enabled, &job.RunCount,
			&job.RetryCount, &job.MaxRetries, &nextRunAt, &lastRunAt, &job.LastError, &job.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job.Status = domain.JobStatus(status)
		job.NextRunAt = nextRunAt.Time
		job.LastRunAt = lastRunAt.Time
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return jobs, nil
}

// SaveJob upserts the job snapshot.
func (r *JobRepository) SaveJob(ctx context.Context, job domain.ScheduledJob) error {
	if r.db == nil {
		return nil
	}
	updated := job.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	query, args, err := r.dialect.builder().
		Insert("scheduled_jobs").
		Columns("id", "function_name", "schedule", "status", "enabled", "run_count",
			"retry_count", "max_retries", "next_run_at", "last_run_at", "last_error", "updated_at").
		Values(job.ID, job.FunctionName, job.Schedule, string(job.Status), job.Enabled, job.RunCount,
			job.RetryCount, job.MaxRetries, nullTime(job.NextRunAt), nullTime(job.LastRunAt), job.LastError, updated.UTC()).
		Suffix("ON CONFLICT (id) DO UPDATE SET " +
			"function_name = excluded.function_name, schedule = excluded.schedule, " +
			"status = excluded.status, enabled = excluded.enabled, run_count = excluded.run_count, " +
			"retry_count = excluded.retry_count, max_retries = excluded.max_retries, " +
			"next_run_at = excluded.next_run_at, last_run_at = excluded.last_run_at, " +
			"last_error = excluded.last_error, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build save job: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert job %s: %w", job.ID, err)
	}
	return nil
}
