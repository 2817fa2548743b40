package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

type fakeScanner struct {
	name      string
	offers    []domain.RawOffer
	err       error
	delay     time.Duration
	ignoreCtx bool
	calls     atomic.Int32
	active    *atomic.Int32
	maxActive *atomic.Int32
}

func (f *fakeScanner) Name() string { return f.name }

func (f *fakeScanner) Scan(ctx context.Context, _ domain.Window) ([]domain.RawOffer, error) {
	f.calls.Add(1)
	if f.active != nil {
		n := f.active.Add(1)
		defer f.active.Add(-1)
		for {
			m := f.maxActive.Load()
			if n <= m || f.maxActive.CompareAndSwap(m, n) {
				break
			}
		}
	}
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return f.offers, f.err
}

type memRepo struct {
	mu      sync.Mutex
	nextID  int64
	offers  map[int64]*domain.StoredOffer
	pingErr error
}

var _ ports.OfferRepository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{offers: map[int64]*domain.StoredOffer{}}
}

func (m *memRepo) ExistingKeys(_ context.Context, keys []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]bool{}
	for _, k := range keys {
		for _, o := range m.offers {
			if o.Offer.DedupKey == k {
				out[k] = true
			}
		}
	}
	return out, nil
}

func (m *memRepo) SaveQueued(_ context.Context, offer domain.ResolvedOffer) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.offers {
		if o.Offer.DedupKey == offer.DedupKey || o.Offer.CanonicalURL == offer.CanonicalURL {
			return false, nil
		}
	}
	m.nextID++
	m.offers[m.nextID] = &domain.StoredOffer{ID: m.nextID, Offer: offer, Status: domain.OfferQueued}
	return true, nil
}

func (m *memRepo) add(offer domain.StoredOffer) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	offer.ID = m.nextID
	if offer.Status == "" {
		offer.Status = domain.OfferQueued
	}
	m.offers[offer.ID] = &offer
	return offer.ID
}

func (m *memRepo) get(id int64) domain.StoredOffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.offers[id]
}

func (m *memRepo) ListQueued(_ context.Context, limit int) ([]domain.StoredOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StoredOffer
	for _, o := range m.offers {
		if o.Status == domain.OfferQueued {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) MarkPublished(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[id].Status = domain.OfferPublished
	m.offers[id].PublishedAt = &at
	return nil
}

func (m *memRepo) MarkBlocked(_ context.Context, id int64, reason domain.BlockedReason, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[id].Status = domain.OfferBlocked
	m.offers[id].BlockedReason = reason
	return nil
}

func (m *memRepo) RecordPublishFailure(_ context.Context, id int64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[id].PublishAttempts++
	return nil
}

func (m *memRepo) UpdateAffiliate(_ context.Context, id int64, affiliateURL string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[id].Offer.AffiliateURL = affiliateURL
	return nil
}

func (m *memRepo) FillDiscounts(context.Context, time.Time) (int, error) { return 0, nil }

func (m *memRepo) RefreshAggregates(context.Context, time.Time) ([]domain.PriceAggregate, error) {
	return nil, nil
}

func (m *memRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, o := range m.offers {
		if o.Status != domain.OfferQueued && o.CreatedAt.Before(cutoff) {
			delete(m.offers, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) Ping(context.Context) error { return m.pingErr }

type fakePublisher struct {
	mu        sync.Mutex
	err       error
	rejectIDs map[int64]bool
	published []domain.StoredOffer
}

func (f *fakePublisher) Publish(_ context.Context, offer domain.StoredOffer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.rejectIDs[offer.ID] {
		return errors.New("telegram 400: message is malformed")
	}
	f.published = append(f.published, offer)
	return nil
}
