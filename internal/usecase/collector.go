package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"DealScanner/internal/domain"
	"DealScanner/internal/metrics"
	"DealScanner/internal/scanner"
	"DealScanner/pkg/ratelimit"
	"DealScanner/pkg/retry"
)

// SourceFailure reports a source that produced no offers this cycle.
type SourceFailure struct {
	Source string
	Err    error
}

// CollectReport is the outcome of one collection cycle. Failures are data,
// not errors.
type CollectReport struct {
	Offers   []domain.RawOffer
	Failures []SourceFailure
	Sources  int
	Skipped  bool
	Duration time.Duration
}

// CollectorConfig bounds a cycle.
type CollectorConfig struct {
	Workers      int
	CycleTimeout time.Duration
	CallTimeout  time.Duration
	MaxDelay     time.Duration
}

// CollectorDeps wires the collector's collaborators.
type CollectorDeps struct {
	Registry *scanner.Registry
	Limiter  *ratelimit.DomainLimiter
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// Collector runs every enabled source once per cycle.
type Collector struct {
	cfg      CollectorConfig
	registry *scanner.Registry
	limiter  *ratelimit.DomainLimiter
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

// NewCollector applies defaults to cfg.
func NewCollector(cfg CollectorConfig, deps CollectorDeps) *Collector {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = time.Minute
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 20 * time.Second
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewDomainLimiter()
	}
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Collector{
		cfg:      cfg,
		registry: deps.Registry,
		limiter:  limiter,
		metrics:  deps.Metrics,
		log:      log,
		now:      now,
	}
}

// Collect fetches offers from all enabled sources. One source's failure
// never aborts the cycle. On cancellation the offers gathered so far are
// returned together with the context error.
func (c *Collector) Collect(ctx context.Context, window domain.Window) (CollectReport, error) {
	start := c.now()
	var report CollectReport

	if c.registry == nil || c.registry.EnvironmentLocked() || !c.registry.ScrapingAllowed() {
		report.Skipped = true
		c.log.Info("collection skipped: scraping disabled for this environment")
		return report, nil
	}

	sources := c.registry.ListEnabled()
	report.Sources = len(sources)
	if len(sources) == 0 {
		c.log.Info("collection skipped: no enabled sources")
		return report, nil
	}

	cycleCtx, cancel := context.WithTimeout(ctx, c.cfg.CycleTimeout)
	defer cancel()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(int64(c.cfg.Workers))
	)
	fail := func(name string, err error) {
		mu.Lock()
		report.Failures = append(report.Failures, SourceFailure{Source: name, Err: err})
		mu.Unlock()
		c.registry.RecordResult(name, err, c.now())
		c.metrics.RecordSourceFailure(name)
		c.log.Warn("source failed", "source", name, "error", err)
	}

	for i, src := range sources {
		if err := sem.Acquire(cycleCtx, 1); err != nil {
			for _, rest := range sources[i:] {
				fail(rest.Name, fmt.Errorf("not started: %w", err))
			}
			break
		}

		wg.Add(1)
		go func(src domain.SourceDescriptor) {
			defer wg.Done()
			defer sem.Release(1)

			offers, err := c.collectSource(cycleCtx, src, window)
			if err != nil {
				fail(src.Name, err)
				return
			}
			c.registry.RecordResult(src.Name, nil, c.now())

			mu.Lock()
			report.Offers = append(report.Offers, offers...)
			mu.Unlock()
			c.log.Debug("source collected", "source", src.Name, "offers", len(offers))
		}(src)
	}
	wg.Wait()

	report.Duration = c.now().Sub(start)
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("collect cancelled: %w", err)
	}
	return report, nil
}

func (c *Collector) collectSource(ctx context.Context, src domain.SourceDescriptor, window domain.Window) ([]domain.RawOffer, error) {
	adapter, err := c.registry.Resolve(src.Name)
	if err != nil {
		return nil, err
	}

	policy := retry.Policy{
		MaxAttempts:    src.Retry.MaxAttempts,
		BaseDelay:      src.Retry.BaseDelay,
		MaxDelay:       c.cfg.MaxDelay,
		JitterFraction: 0.5,
	}

	var offers []domain.RawOffer
	attempt := 0
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		attempt++
		if err := c.limiter.Wait(ctx, src.Domain, src.RateLimit); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()

		got, err := scanAbandonable(callCtx, adapter, window)
		if err != nil {
			c.log.Debug("source attempt failed", "source", src.Name, "attempt", attempt, "error", err)
			return err
		}
		offers = got
		return nil
	})
	if err != nil {
		return nil, err
	}

	observed := c.now()
	for i := range offers {
		if offers[i].SourceName == "" {
			offers[i].SourceName = src.Name
		}
		if offers[i].ObservedAt.IsZero() {
			offers[i].ObservedAt = observed
		}
	}
	return offers, nil
}

// scanAbandonable returns as soon as ctx ends, even if the adapter ignores
// it. A late result is discarded.
func scanAbandonable(ctx context.Context, adapter scanner.Scanner, window domain.Window) ([]domain.RawOffer, error) {
	type result struct {
		offers []domain.RawOffer
		err    error
	}
	done := make(chan result, 1)
	go func() {
		offers, err := adapter.Scan(ctx, window)
		done <- result{offers: offers, err: err}
	}()

	select {
	case r := <-done:
		return r.offers, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
