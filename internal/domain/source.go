package domain

import "time"

// RetryPolicy configures retries of one source adapter call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// SourceDescriptor is the registry's view of one source adapter.
type SourceDescriptor struct {
	Name                string
	Domain              string
	Enabled             bool
	Priority            int
	RateLimit           float64
	Retry               RetryPolicy
	RequiredCredentials []string
	LastError           string
	LastSuccessAt       time.Time
	ConsecutiveFailures int
}
