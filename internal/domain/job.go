package domain

import "time"

// JobStatus enumerates the scheduler state machine.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
	JobPaused    JobStatus = "paused"
)

// ScheduledJob is a recurring job owned by the scheduler.
type ScheduledJob struct {
	ID           string
	FunctionName string
	Schedule     string
	Status       JobStatus
	Enabled      bool
	RunCount     int
	RetryCount   int
	MaxRetries   int
	NextRunAt    time.Time
	LastRunAt    time.Time
	LastError    string
	UpdatedAt    time.Time
}
