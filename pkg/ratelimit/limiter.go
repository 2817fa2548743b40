// Package ratelimit holds one token bucket per target domain.
package ratelimit

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// DomainLimiter shares request permits between every caller hitting the same
// domain.
type DomainLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewDomainLimiter builds an empty limiter set.
func NewDomainLimiter() *DomainLimiter {
	return &DomainLimiter{limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until a permit for domain is available. rps <= 0 means the
// domain is unlimited. The first rps seen for a domain fixes its rate.
func (d *DomainLimiter) Wait(ctx context.Context, domain string, rps float64) error {
	if rps <= 0 {
		return ctx.Err()
	}
	return d.limiter(domain, rps).Wait(ctx)
}

func (d *DomainLimiter) limiter(domain string, rps float64) *rate.Limiter {
	key := strings.ToLower(strings.TrimSpace(domain))

	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(rps), 1)
		d.limiters[key] = l
	}
	return l
}

// Len reports how many domains currently hold a bucket.
func (d *DomainLimiter) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.limiters)
}
