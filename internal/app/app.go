package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"DealScanner/internal/affiliate"
	"DealScanner/internal/config"
	"DealScanner/internal/control"
	"DealScanner/internal/dedup"
	"DealScanner/internal/domain"
	"DealScanner/internal/infrastructure/cache"
	"DealScanner/internal/infrastructure/httpapi"
	"DealScanner/internal/infrastructure/parser"
	"DealScanner/internal/infrastructure/scheduler"
	"DealScanner/internal/infrastructure/shortlink"
	"DealScanner/internal/infrastructure/storage"
	"DealScanner/internal/infrastructure/telegram"
	"DealScanner/internal/logging"
	"DealScanner/internal/metrics"
	"DealScanner/internal/ports"
	"DealScanner/internal/scanner"
	"DealScanner/internal/usecase"
	"DealScanner/internal/validation"
	"DealScanner/pkg/ratelimit"
)

const shutdownTimeout = 10 * time.Second

// ErrNoSources is returned when the configuration declares no source.
var ErrNoSources = errors.New("no sources configured")

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	log       *slog.Logger
	db        *sql.DB
	cache     *cache.ShortlinkCache
	registry  *scanner.Registry
	pipeline  *usecase.Pipeline
	driver    *scheduler.Scheduler
	jobs      *usecase.Scheduler
	control   *control.Controller
	metrics   *metrics.Metrics
	server    *http.Server
	jobConfig []domain.ScheduledJob
}

// New opens storage, registers sources and builds the pipeline. The caller
// owns the returned application and must call Run to release it.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if len(cfg.Sources) == 0 {
		return nil, ErrNoSources
	}

	db, dialect, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := storage.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate storage: %w", err)
	}

	a := &Application{cfg: cfg, log: baseLogger, db: db, metrics: metrics.New()}

	a.registry = scanner.NewRegistry(cfg.Credential)
	client := &http.Client{Timeout: cfg.Collector.CallTimeout}
	if err := parser.RegisterSources(a.registry, cfg.Sources, client, baseLogger.With("component", "parser")); err != nil {
		baseLogger.Warn("some sources were skipped", "error", err)
	}
	if a.registry.Len() == 0 {
		_ = db.Close()
		return nil, ErrNoSources
	}
	env := scanner.Environment{Deterministic: cfg.Safety.Deterministic, AllowScraping: cfg.Safety.AllowScraping}
	a.registry.ForceDisableForEnvironment(env)
	if a.registry.EnvironmentLocked() {
		baseLogger.Warn("scraping locked off for this environment",
			"deterministic", env.Deterministic,
			"allow_scraping", env.AllowScraping,
		)
	}

	gate := validation.NewGate(validation.Config{
		AmazonTag:        cfg.Affiliate.Amazon.Tag,
		AmazonLanguage:   cfg.Affiliate.Amazon.Language,
		AwinMerchantIDs:  cfg.Affiliate.Awin.Merchants,
		AwinAffiliateIDs: cfg.Affiliate.Awin.AffiliateIDs,
		MagaluStorefront: cfg.Affiliate.Magalu.Storefront,
		MercadoLivreWord: cfg.Affiliate.MercadoLivre.SocialWord,
	})

	engineDeps := affiliate.EngineDeps{Gate: gate, Logger: baseLogger.With("component", "affiliate")}
	if cfg.Affiliate.Shortlink.APIURL != "" {
		engineDeps.Minter = shortlink.NewClient(cfg.Affiliate.Shortlink.APIURL, cfg.Affiliate.Shortlink.APIKey, cfg.Affiliate.Shortlink.Timeout)
	}
	if cfg.Redis.Address != "" {
		c, err := cache.Connect(ctx, cache.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			baseLogger.Warn("shortlink cache disabled", "error", err)
		} else {
			a.cache = c
			engineDeps.Cache = c
		}
	}
	defaults := affiliate.DefaultConfig()
	engine := affiliate.NewEngine(affiliate.Config{
		AmazonTag:          cfg.Affiliate.Amazon.Tag,
		AmazonLanguage:     cfg.Affiliate.Amazon.Language,
		AwinMerchants:      cfg.Affiliate.Awin.Merchants,
		AwinAffiliateIDs:   cfg.Affiliate.Awin.AffiliateIDs,
		AwinOverrides:      cfg.Affiliate.Awin.Overrides,
		MagaluStorefront:   cfg.Affiliate.Magalu.Storefront,
		ShortlinkPlatforms: defaults.ShortlinkPlatforms,
	}, engineDeps)

	var publisher ports.Publisher
	notifier := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	if notifier.Configured() {
		publisher = notifier
	} else {
		baseLogger.Warn("telegram publishing disabled", "reason", "missing bot token or chat id")
	}

	collector := usecase.NewCollector(usecase.CollectorConfig{
		Workers:      cfg.Collector.Workers,
		CycleTimeout: cfg.Collector.CycleTimeout,
		CallTimeout:  cfg.Collector.CallTimeout,
		MaxDelay:     cfg.Collector.MaxDelay,
	}, usecase.CollectorDeps{
		Registry: a.registry,
		Limiter:  ratelimit.NewDomainLimiter(),
		Metrics:  a.metrics,
		Logger:   baseLogger.With("component", "collector"),
	})

	a.pipeline = usecase.NewPipeline(usecase.PipelineConfig{
		Lookback:           cfg.Pipeline.Lookback,
		PublishBatch:       cfg.Pipeline.PublishBatch,
		MaxPublishAttempts: cfg.Pipeline.MaxPublishAttempts,
		Retention:          cfg.Pipeline.Retention,
	}, usecase.PipelineDeps{
		Collector:  collector,
		Dedup:      dedup.NewEngine(cfg.Affiliate.Amazon.Tag),
		Repository: storage.NewOfferRepository(db, dialect),
		Resolver:   engine,
		Validator:  gate,
		Publisher:  publisher,
		Registry:   a.registry,
		Metrics:    a.metrics,
		Logger:     baseLogger.With("component", "pipeline"),
	})

	a.driver = scheduler.New(scheduler.Options{
		Tick:          cfg.Scheduler.Tick,
		MaxConcurrent: cfg.Scheduler.MaxConcurrentJobs,
		JobTimeout:    cfg.Scheduler.JobTimeout,
		RetryDelay:    cfg.Scheduler.RetryDelay,
		Location:      cfg.Scheduler.Location(),
		Store:         storage.NewJobRepository(db, dialect),
		Logger:        baseLogger.With("component", "scheduler"),
		Observer:      a.observeJob,
	})
	a.jobs = usecase.NewScheduler(a.driver, a.pipeline)
	a.jobConfig = usecase.MergeJobs(usecase.DefaultJobs(), jobOverrides(cfg.Scheduler.Jobs))

	a.control = control.New(control.Deps{
		Registry:  a.registry,
		Scheduler: a.driver,
		Pipeline:  a.pipeline,
		Gate:      gate,
	})

	if cfg.HTTP.Address != "" {
		a.server = &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           httpapi.NewRouter(a.control, a.metrics.Handler(), baseLogger.With("component", "http")),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

// Control exposes the operator surface.
func (a *Application) Control() *control.Controller {
	return a.control
}

// Run starts the scheduler and the operator API, then blocks until ctx is
// done or the API fails. Both are torn down before returning.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	if err := a.jobs.Start(ctx, a.jobConfig); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.log.Info("scheduler started", "jobs", len(a.jobConfig))

	serveErr := make(chan error, 1)
	if a.server != nil {
		ln, err := net.Listen("tcp", a.server.Addr)
		if err != nil {
			a.shutdown()
			return fmt.Errorf("listen %s: %w", a.server.Addr, err)
		}
		a.log.Info("operator api listening", "address", ln.Addr().String())
		go func() {
			if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown requested")
	case err := <-serveErr:
		runErr = fmt.Errorf("operator api: %w", err)
	}

	a.shutdown()
	return runErr
}

func (a *Application) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("operator api shutdown", "error", err)
		}
	}
	if err := a.jobs.Stop(shutdownCtx); err != nil {
		a.log.Warn("scheduler shutdown", "error", err)
	}
}

func (a *Application) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("close shortlink cache", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("close storage", "error", err)
		}
	}
}

func (a *Application) observeJob(job domain.ScheduledJob) {
	a.metrics.RecordJobTransition(job)
	m := a.driver.Metrics()
	a.metrics.SetJobCounts(m.Total, map[domain.JobStatus]int{
		domain.JobPending:   m.Pending,
		domain.JobRunning:   m.Running,
		domain.JobCompleted: m.Completed,
		domain.JobFailed:    m.Failed,
		domain.JobPaused:    m.Paused,
		domain.JobCancelled: m.Cancelled,
	})
	if job.Status == domain.JobFailed {
		a.log.Error("job failed", "job_id", job.ID, "retries", job.RetryCount, "error", job.LastError)
	}
}

func jobOverrides(jobs []config.JobConfig) []usecase.JobOverride {
	out := make([]usecase.JobOverride, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, usecase.JobOverride{
			ID:         j.ID,
			Function:   j.Function,
			Schedule:   j.Schedule,
			MaxRetries: j.MaxRetries,
			Enabled:    j.Enabled,
		})
	}
	return out
}
