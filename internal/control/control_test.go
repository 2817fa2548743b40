package control

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DealScanner/internal/domain"
	"DealScanner/internal/infrastructure/scheduler"
	"DealScanner/internal/scanner"
	"DealScanner/internal/usecase"
	"DealScanner/internal/validation"
)

func newController(t *testing.T, env scanner.Environment) *Controller {
	t.Helper()

	reg := scanner.NewRegistry(func(string) bool { return true })
	reg.Register(domain.SourceDescriptor{Name: "pelando", Domain: "pelando.com.br", Enabled: true, Priority: 10}, nil)
	reg.Register(domain.SourceDescriptor{Name: "promobit", Domain: "promobit.com.br", Enabled: true, Priority: 20}, nil)
	reg.ForceDisableForEnvironment(env)

	sched := scheduler.New(scheduler.Options{})
	sched.RegisterFunc("noop", func(context.Context) error { return nil })
	require.NoError(t, sched.AddJob(domain.ScheduledJob{
		ID:           "collect-offers",
		FunctionName: "noop",
		Schedule:     "@every 90s",
		Enabled:      true,
		MaxRetries:   3,
	}))

	gate := validation.NewGate(validation.DefaultConfig())
	gate.Validate("https://shopee.com.br/item-i.1.2", validation.PlatformShopee)

	pipeline := usecase.NewPipeline(usecase.PipelineConfig{}, usecase.PipelineDeps{Registry: reg})

	return New(Deps{Registry: reg, Scheduler: sched, Pipeline: pipeline, Gate: gate})
}

func TestSetScrapingRespectsEnvironmentLock(t *testing.T) {
	locked := newController(t, scanner.Environment{Deterministic: true})
	err := locked.SetScraping(true)
	assert.ErrorIs(t, err, ErrEnvironmentLocked)
	assert.NoError(t, locked.SetScraping(false))
	assert.False(t, locked.Status().ScrapingAllowed)

	open := newController(t, scanner.Environment{AllowScraping: true})
	require.NoError(t, open.SetScraping(false))
	assert.False(t, open.Status().ScrapingAllowed)
	require.NoError(t, open.SetScraping(true))
	assert.True(t, open.Status().ScrapingAllowed)
}

func TestSetSourceEnabled(t *testing.T) {
	c := newController(t, scanner.Environment{AllowScraping: true})

	require.NoError(t, c.SetSourceEnabled("promobit", false))
	st := c.Status()
	require.Len(t, st.Sources, 2)
	assert.Equal(t, "pelando", st.Sources[0].Name)
	assert.True(t, st.Sources[0].Enabled)
	assert.False(t, st.Sources[1].Enabled)

	err := c.SetSourceEnabled("nope", true)
	assert.True(t, errors.Is(err, scanner.ErrUnknownSource))
}

func TestStatusReportsJobsAndValidation(t *testing.T) {
	c := newController(t, scanner.Environment{AllowScraping: true})

	st := c.Status()
	assert.False(t, st.Running)
	require.Len(t, st.Jobs, 1)
	assert.Equal(t, "collect-offers", st.Jobs[0].ID)
	assert.Equal(t, string(domain.JobPending), st.Jobs[0].Status)
	assert.Equal(t, 1, st.JobMetrics.Total)

	assert.Equal(t, 1, st.Validation.Total)
	assert.Equal(t, 1, st.Validation.Blocked)
	assert.Equal(t, 1, st.Validation.ByReason[string(domain.ReasonRawStoreURL)])
}

func TestJobControls(t *testing.T) {
	c := newController(t, scanner.Environment{AllowScraping: true})
	ctx := context.Background()

	require.NoError(t, c.DisableJob(ctx, "collect-offers"))
	assert.Equal(t, string(domain.JobPaused), c.Status().Jobs[0].Status)

	require.NoError(t, c.EnableJob(ctx, "collect-offers"))
	assert.Equal(t, string(domain.JobPending), c.Status().Jobs[0].Status)

	require.NoError(t, c.TriggerJob(ctx, "collect-offers"))
	assert.ErrorIs(t, c.EnableJob(ctx, "missing"), scheduler.ErrUnknownJob)
}

func TestHealthWithoutRepository(t *testing.T) {
	c := newController(t, scanner.Environment{AllowScraping: true})

	h, err := c.Health(context.Background())
	assert.ErrorIs(t, err, usecase.ErrNoRepository)
	assert.False(t, h.StoreOK)
	assert.Equal(t, 2, h.SourcesEnabled)
	assert.NotEmpty(t, h.Error)
	assert.NotNil(t, h.SourcesFailing)
}

func TestCollectNowWithoutCollector(t *testing.T) {
	c := newController(t, scanner.Environment{AllowScraping: true})

	result, err := c.CollectNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Queued)
	assert.Empty(t, result.Failures)
}
