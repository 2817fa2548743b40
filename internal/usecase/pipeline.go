package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"DealScanner/internal/dedup"
	"DealScanner/internal/domain"
	"DealScanner/internal/metrics"
	"DealScanner/internal/ports"
	"DealScanner/internal/scanner"
)

// ErrNoRepository is returned by jobs that need persistence when none is wired.
var ErrNoRepository = errors.New("offer repository is not configured")

const partialQueueTimeout = 10 * time.Second

// PipelineConfig tunes the queue and housekeeping jobs.
type PipelineConfig struct {
	Lookback           time.Duration
	PublishBatch       int
	MaxPublishAttempts int
	Retention          time.Duration
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Collector  *Collector
	Dedup      *dedup.Engine
	Repository ports.OfferRepository
	Resolver   ports.Resolver
	Validator  ports.Validator
	Publisher  ports.Publisher
	Registry   *scanner.Registry
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// Pipeline implements the offer ingestion and publishing workflow.
type Pipeline struct {
	cfg        PipelineConfig
	collector  *Collector
	dedup      *dedup.Engine
	repository ports.OfferRepository
	resolver   ports.Resolver
	validator  ports.Validator
	publisher  ports.Publisher
	registry   *scanner.Registry
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(cfg PipelineConfig, deps PipelineDeps) *Pipeline {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.PublishBatch <= 0 {
		cfg.PublishBatch = 20
	}
	if cfg.MaxPublishAttempts <= 0 {
		cfg.MaxPublishAttempts = 5
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	engine := deps.Dedup
	if engine == nil {
		engine = dedup.NewEngine("")
	}
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		cfg:        cfg,
		collector:  deps.Collector,
		dedup:      engine,
		repository: deps.Repository,
		resolver:   deps.Resolver,
		validator:  deps.Validator,
		publisher:  deps.Publisher,
		registry:   deps.Registry,
		metrics:    deps.Metrics,
		log:        log,
		now:        now,
	}
}

// CollectSummary describes one RunCollect pass.
type CollectSummary struct {
	Report        CollectReport
	Dedup         dedup.Stats
	AlreadyStored int
	Queued        int
}

// RunCollect collects, deduplicates, resolves and queues new offers.
func (p *Pipeline) RunCollect(ctx context.Context) (CollectSummary, error) {
	var summary CollectSummary
	if p.collector == nil {
		return summary, nil
	}
	if p.repository == nil {
		return summary, ErrNoRepository
	}

	now := p.now()
	report, err := p.collector.Collect(ctx, domain.Window{From: now.Add(-p.cfg.Lookback), To: now})
	summary.Report = report
	if err != nil {
		p.metrics.RecordCollect("cancelled", len(report.Offers), 0, 0, report.Duration)
		if len(report.Offers) > 0 {
			// partial results still get queued; the caller's ctx is already done
			queueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), partialQueueTimeout)
			defer cancel()
			if qErr := p.queue(queueCtx, report, &summary); qErr != nil {
				p.log.Warn("queue partial collection failed", "error", qErr)
			}
		}
		return summary, fmt.Errorf("collect: %w", err)
	}
	if report.Skipped {
		p.metrics.RecordCollect("skipped", 0, 0, 0, 0)
		return summary, nil
	}

	if err := p.queue(ctx, report, &summary); err != nil {
		return summary, err
	}
	p.metrics.RecordCollect("ok", summary.Dedup.Total, summary.Dedup.Unique, summary.Dedup.Duplicates, report.Duration)

	p.log.Info("collect cycle finished",
		"sources", report.Sources,
		"failures", len(report.Failures),
		"collected", summary.Dedup.Total,
		"duplicates", summary.Dedup.Duplicates,
		"already_stored", summary.AlreadyStored,
		"queued", summary.Queued,
		"duration", report.Duration,
	)
	return summary, nil
}

// queue deduplicates the collected offers, skips stored ones, resolves the
// rest and saves them as queued.
func (p *Pipeline) queue(ctx context.Context, report CollectReport, summary *CollectSummary) error {
	unique, stats := p.dedup.Deduplicate(report.Offers)
	summary.Dedup = stats

	keys := make([]string, len(unique))
	for i, offer := range unique {
		keys[i] = offer.DedupKey
	}
	existing, err := p.repository.ExistingKeys(ctx, keys)
	if err != nil {
		return fmt.Errorf("load existing keys: %w", err)
	}

	defer func() { p.metrics.RecordQueued(summary.Queued) }()
	for _, offer := range unique {
		if existing[offer.DedupKey] {
			summary.AlreadyStored++
			continue
		}

		resolved := domain.ResolvedOffer{CanonicalOffer: offer, Method: domain.MethodUnsupported}
		if p.resolver != nil {
			resolved = p.resolver.Convert(ctx, offer)
		}

		inserted, err := p.repository.SaveQueued(ctx, resolved)
		if err != nil {
			return fmt.Errorf("queue offer %s: %w", offer.DedupKey, err)
		}
		if inserted {
			summary.Queued++
		} else {
			summary.AlreadyStored++
		}
	}
	return nil
}

// PublishReport describes one RunPublishQueue pass.
type PublishReport struct {
	Published int
	Blocked   int
	Failed    int
	Held      int
	Reasons   map[domain.BlockedReason]int
}

// RunPublishQueue validates queued offers and hands the valid ones to the
// publisher. Only offers the gate approves are ever published. Without a
// publisher the queue is left untouched. An offer the publisher rejects
// MaxPublishAttempts times is blocked with ReasonPublishFailed.
func (p *Pipeline) RunPublishQueue(ctx context.Context) (PublishReport, error) {
	report := PublishReport{Reasons: map[domain.BlockedReason]int{}}
	if p.repository == nil {
		return report, ErrNoRepository
	}
	if p.validator == nil {
		return report, fmt.Errorf("validator is not configured")
	}

	if p.publisher == nil {
		p.log.Debug("publishing disabled, queue left untouched")
		return report, nil
	}

	queued, err := p.repository.ListQueued(ctx, p.cfg.PublishBatch)
	if err != nil {
		return report, fmt.Errorf("list queued: %w", err)
	}

	for _, offer := range queued {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := p.publishOne(ctx, offer, &report); err != nil {
			return report, err
		}
	}

	if len(queued) > 0 {
		p.log.Info("publish queue processed",
			"published", report.Published,
			"blocked", report.Blocked,
			"failed", report.Failed,
			"held", report.Held,
		)
	}
	return report, nil
}

func (p *Pipeline) publishOne(ctx context.Context, offer domain.StoredOffer, report *PublishReport) error {
	now := p.now()

	if offer.Offer.Method == domain.MethodShortlink && offer.Offer.AffiliateURL == "" {
		held, err := p.retryShortlink(ctx, &offer, now)
		if err != nil {
			return err
		}
		if held {
			report.Held++
			return nil
		}
	}

	platform := p.validator.PlatformFor(offer.Offer.Store)
	result := p.validator.Validate(offer.Offer.AffiliateURL, platform)
	if !result.IsValid {
		if err := p.repository.MarkBlocked(ctx, offer.ID, result.BlockedReason, now); err != nil {
			return fmt.Errorf("mark blocked %d: %w", offer.ID, err)
		}
		report.Blocked++
		report.Reasons[result.BlockedReason]++
		p.metrics.RecordBlocked(result.BlockedReason)
		p.log.Info("offer blocked",
			"offer_id", offer.ID,
			"store", offer.Offer.Store,
			"platform", platform,
			"blocked_reason", result.BlockedReason,
			"errors", result.Errors,
		)
		return nil
	}

	if err := p.publisher.Publish(ctx, offer); err != nil {
		report.Failed++
		p.metrics.RecordPublishFailure()
		attempts := offer.PublishAttempts + 1
		p.log.Warn("publish failed", "offer_id", offer.ID, "attempts", attempts, "error", err)
		if recErr := p.repository.RecordPublishFailure(ctx, offer.ID, now); recErr != nil {
			return fmt.Errorf("record publish failure %d: %w", offer.ID, recErr)
		}
		if attempts < p.cfg.MaxPublishAttempts {
			return nil
		}
		if blockErr := p.repository.MarkBlocked(ctx, offer.ID, domain.ReasonPublishFailed, now); blockErr != nil {
			return fmt.Errorf("mark blocked %d: %w", offer.ID, blockErr)
		}
		report.Blocked++
		report.Reasons[domain.ReasonPublishFailed]++
		p.metrics.RecordBlocked(domain.ReasonPublishFailed)
		p.log.Warn("offer blocked after repeated publish failures", "offer_id", offer.ID, "attempts", attempts)
		return nil
	}

	if err := p.repository.MarkPublished(ctx, offer.ID, now); err != nil {
		return fmt.Errorf("mark published %d: %w", offer.ID, err)
	}
	report.Published++
	p.metrics.RecordPublished()
	return nil
}

// retryShortlink re-mints a shortlink for an offer held without one. held
// is true when the offer should stay queued for a later attempt; once the
// attempts run out the offer goes to the gate and is blocked there.
func (p *Pipeline) retryShortlink(ctx context.Context, offer *domain.StoredOffer, now time.Time) (bool, error) {
	if p.resolver != nil {
		resolved := p.resolver.Convert(ctx, offer.Offer.CanonicalOffer)
		if resolved.AffiliateURL != "" {
			if err := p.repository.UpdateAffiliate(ctx, offer.ID, resolved.AffiliateURL, now); err != nil {
				return false, fmt.Errorf("update affiliate %d: %w", offer.ID, err)
			}
			offer.Offer = resolved
			return false, nil
		}
	}

	if offer.PublishAttempts+1 >= p.cfg.MaxPublishAttempts {
		return false, nil
	}
	if err := p.repository.RecordPublishFailure(ctx, offer.ID, now); err != nil {
		return false, fmt.Errorf("record held offer %d: %w", offer.ID, err)
	}
	p.log.Debug("shortlink still unavailable, offer held", "offer_id", offer.ID, "attempts", offer.PublishAttempts+1)
	return true, nil
}

// RunEnrich fills discount percentages that are still missing.
func (p *Pipeline) RunEnrich(ctx context.Context) (int, error) {
	if p.repository == nil {
		return 0, ErrNoRepository
	}
	n, err := p.repository.FillDiscounts(ctx, p.now())
	if err != nil {
		return 0, fmt.Errorf("fill discounts: %w", err)
	}
	if n > 0 {
		p.log.Info("discounts enriched", "offers", n)
	}
	return n, nil
}

// RunAggregate recomputes per-store price statistics.
func (p *Pipeline) RunAggregate(ctx context.Context) ([]domain.PriceAggregate, error) {
	if p.repository == nil {
		return nil, ErrNoRepository
	}
	aggs, err := p.repository.RefreshAggregates(ctx, p.now())
	if err != nil {
		return nil, fmt.Errorf("refresh aggregates: %w", err)
	}
	p.log.Info("price aggregates refreshed", "stores", len(aggs))
	return aggs, nil
}

// HealthReport summarizes store reachability and source health.
type HealthReport struct {
	StoreOK        bool
	SourcesEnabled int
	SourcesFailing []string
}

// RunHealthCheck pings the store and reports failing sources. An
// unreachable store fails the run.
func (p *Pipeline) RunHealthCheck(ctx context.Context) (HealthReport, error) {
	var report HealthReport

	if p.registry != nil {
		report.SourcesEnabled = len(p.registry.ListEnabled())
		for _, d := range p.registry.Descriptors() {
			if d.LastError == "" {
				continue
			}
			report.SourcesFailing = append(report.SourcesFailing, d.Name)
			p.log.Warn("source unhealthy",
				"source", d.Name,
				"enabled", d.Enabled,
				"consecutive_failures", d.ConsecutiveFailures,
				"last_error", d.LastError,
			)
		}
	}
	p.metrics.SetSources(report.SourcesEnabled, len(report.SourcesFailing))

	if p.repository == nil {
		return report, ErrNoRepository
	}
	if err := p.repository.Ping(ctx); err != nil {
		return report, fmt.Errorf("store unreachable: %w", err)
	}
	report.StoreOK = true
	return report, nil
}

// RunCleanup deletes published and blocked offers past the retention window.
func (p *Pipeline) RunCleanup(ctx context.Context) (int64, error) {
	if p.repository == nil {
		return 0, ErrNoRepository
	}
	cutoff := p.now().Add(-p.cfg.Retention)
	n, err := p.repository.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	p.log.Info("old offers removed", "offers", n, "cutoff", cutoff)
	return n, nil
}
