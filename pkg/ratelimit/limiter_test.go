package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitUnlimitedDoesNotCreateBucket(t *testing.T) {
	t.Parallel()

	l := NewDomainLimiter()
	require.NoError(t, l.Wait(context.Background(), "example.com", 0))
	assert.Equal(t, 0, l.Len())
}

func TestWaitSpacesRequestsPerDomain(t *testing.T) {
	t.Parallel()

	l := NewDomainLimiter()
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx, "Shop.Example", 20))
	}
	// burst 1 at 20 rps: two refills of 50ms each
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, 1, l.Len())
}

func TestWaitIsSafeForConcurrentCallers(t *testing.T) {
	t.Parallel()

	l := NewDomainLimiter()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Wait(context.Background(), "a.example", 1000)
			_ = l.Wait(context.Background(), "b.example", 1000)
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, l.Len())
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := NewDomainLimiter()
	require.NoError(t, l.Wait(context.Background(), "slow.example", 0.01))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "slow.example", 0.01))
}
