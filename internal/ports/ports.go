package ports

import (
	"context"
	"time"

	"DealScanner/internal/domain"
)

// OfferRepository persists offers for deduplication, publishing and audit.
type OfferRepository interface {
	ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error)
	SaveQueued(ctx context.Context, offer domain.ResolvedOffer) (bool, error)
	ListQueued(ctx context.Context, limit int) ([]domain.StoredOffer, error)
	MarkPublished(ctx context.Context, id int64, at time.Time) error
	MarkBlocked(ctx context.Context, id int64, reason domain.BlockedReason, at time.Time) error
	RecordPublishFailure(ctx context.Context, id int64, at time.Time) error
	UpdateAffiliate(ctx context.Context, id int64, affiliateURL string, at time.Time) error
	FillDiscounts(ctx context.Context, at time.Time) (int, error)
	RefreshAggregates(ctx context.Context, at time.Time) ([]domain.PriceAggregate, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// JobStore keeps scheduler state across restarts.
type JobStore interface {
	LoadJobs(ctx context.Context) ([]domain.ScheduledJob, error)
	SaveJob(ctx context.Context, job domain.ScheduledJob) error
}

// Resolver turns canonical offers into monetized offers.
type Resolver interface {
	Convert(ctx context.Context, offer domain.CanonicalOffer) domain.ResolvedOffer
}

// Validator is the publish gate.
type Validator interface {
	Validate(link, platform string) domain.ValidationResult
	PlatformFor(store string) string
}

// Publisher hands approved offers to a public channel (Telegram, etc.).
type Publisher interface {
	Publish(ctx context.Context, offer domain.StoredOffer) error
}

// ShortlinkMinter asks a partner endpoint for a shortlink.
type ShortlinkMinter interface {
	Mint(ctx context.Context, platform, longURL string) (string, error)
}

// ShortlinkCache remembers minted shortlinks.
type ShortlinkCache interface {
	Get(ctx context.Context, platform, longURL string) (string, bool, error)
	Set(ctx context.Context, platform, longURL, shortURL string) error
}

// Scheduler controls when pipeline jobs execute.
type Scheduler interface {
	RegisterFunc(name string, fn func(ctx context.Context) error)
	AddJob(job domain.ScheduledJob) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
