package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DealScanner/internal/domain"
	"DealScanner/internal/scanner"
)

func source(name string, priority int) domain.SourceDescriptor {
	return domain.SourceDescriptor{
		Name:     name,
		Domain:   name + ".example",
		Enabled:  true,
		Priority: priority,
		Retry:    domain.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
	}
}

func offers(store string, titles ...string) []domain.RawOffer {
	out := make([]domain.RawOffer, len(titles))
	for i, title := range titles {
		out[i] = domain.RawOffer{Title: title, Store: store, ProductURL: "https://" + store + ".example/p/" + title}
	}
	return out
}

func testCollector(reg *scanner.Registry, cfg CollectorConfig) *Collector {
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	if cfg.CycleTimeout == 0 {
		cfg.CycleTimeout = 2 * time.Second
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = time.Second
	}
	cfg.MaxDelay = 5 * time.Millisecond
	return NewCollector(cfg, CollectorDeps{Registry: reg})
}

func TestCollect_PartialFailureIsolation(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry(func(string) bool { return true })
	good := &fakeScanner{name: "good", offers: offers("good", "a", "b")}
	bad := &fakeScanner{name: "bad", err: errors.New("503 from upstream")}
	reg.Register(source("good", 1), good)
	reg.Register(source("bad", 2), bad)

	report, err := testCollector(reg, CollectorConfig{}).Collect(context.Background(), domain.Window{})

	require.NoError(t, err)
	assert.Len(t, report.Offers, 2)
	assert.Equal(t, 2, report.Sources)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "bad", report.Failures[0].Source)
	assert.Equal(t, int32(2), bad.calls.Load(), "retried up to max attempts")

	d, err := reg.Get("bad")
	require.NoError(t, err)
	assert.Contains(t, d.LastError, "503 from upstream")
	assert.Equal(t, 1, d.ConsecutiveFailures)

	d, err = reg.Get("good")
	require.NoError(t, err)
	assert.Empty(t, d.LastError)
	assert.False(t, d.LastSuccessAt.IsZero())
}

func TestCollect_HungSourceDoesNotBlockCycle(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry(nil)
	reg.Register(source("good", 1), &fakeScanner{name: "good", offers: offers("good", "a")})
	reg.Register(source("hung", 2), &fakeScanner{name: "hung", delay: 5 * time.Second, ignoreCtx: true})

	start := time.Now()
	report, err := testCollector(reg, CollectorConfig{
		CycleTimeout: 300 * time.Millisecond,
		CallTimeout:  50 * time.Millisecond,
	}).Collect(context.Background(), domain.Window{})

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, report.Offers, 1)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "hung", report.Failures[0].Source)
}

func TestCollect_SafetyLockMakesNoCalls(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry(nil)
	s := &fakeScanner{name: "kabum", offers: offers("kabum", "a")}
	reg.Register(source("kabum", 1), s)
	reg.ForceDisableForEnvironment(scanner.Environment{Deterministic: true, AllowScraping: true})
	require.NoError(t, reg.SetEnabled("kabum", true))

	report, err := testCollector(reg, CollectorConfig{}).Collect(context.Background(), domain.Window{})

	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Empty(t, report.Offers)
	assert.Zero(t, s.calls.Load())
}

func TestCollect_OperatorSwitchOff(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry(nil)
	s := &fakeScanner{name: "kabum", offers: offers("kabum", "a")}
	reg.Register(source("kabum", 1), s)
	reg.SetScraping(false)

	report, err := testCollector(reg, CollectorConfig{}).Collect(context.Background(), domain.Window{})
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Zero(t, s.calls.Load())
}

func TestCollect_WorkerBudget(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry(nil)
	var active, maxActive atomic.Int32
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		reg.Register(source(name, 1), &fakeScanner{
			name: name, offers: offers(name, "x"), delay: 30 * time.Millisecond,
			active: &active, maxActive: &maxActive,
		})
	}

	report, err := testCollector(reg, CollectorConfig{Workers: 2}).Collect(context.Background(), domain.Window{})

	require.NoError(t, err)
	assert.Len(t, report.Offers, 5)
	assert.LessOrEqual(t, maxActive.Load(), int32(2))
}

func TestCollect_PreservesPerSourceOrder(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry(nil)
	reg.Register(source("kabum", 1), &fakeScanner{name: "kabum", offers: offers("kabum", "first", "second", "third")})

	report, err := testCollector(reg, CollectorConfig{}).Collect(context.Background(), domain.Window{})

	require.NoError(t, err)
	require.Len(t, report.Offers, 3)
	assert.Equal(t, "first", report.Offers[0].Title)
	assert.Equal(t, "third", report.Offers[2].Title)
	assert.Equal(t, "kabum", report.Offers[0].SourceName)
	assert.False(t, report.Offers[0].ObservedAt.IsZero())
}

func TestCollect_CancellationReturnsPartialResults(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry(nil)
	reg.Register(source("fast", 1), &fakeScanner{name: "fast", offers: offers("fast", "a", "b")})
	reg.Register(source("slow", 2), &fakeScanner{name: "slow", offers: offers("slow", "c"), delay: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	report, err := testCollector(reg, CollectorConfig{CycleTimeout: 10 * time.Second, CallTimeout: 10 * time.Second}).
		Collect(ctx, domain.Window{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, report.Offers, 2)
}
