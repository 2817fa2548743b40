package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawOffer is an untrusted record produced by a single source adapter call.
type RawOffer struct {
	Title         string
	Store         string
	Price         decimal.NullDecimal
	OriginalPrice decimal.NullDecimal
	ProductURL    string
	ImageURL      string
	SourceName    string
	ObservedAt    time.Time
}

// CanonicalOffer carries the normalized identity used for deduplication.
type CanonicalOffer struct {
	RawOffer
	NormalizedTitle string
	CanonicalURL    string
	DedupKey        string
}

// ResolutionMethod names the affiliate strategy that produced a link.
type ResolutionMethod string

const (
	MethodDomainRewrite   ResolutionMethod = "domain-rewrite"
	MethodTagInjection    ResolutionMethod = "tag-injection"
	MethodNetworkDeeplink ResolutionMethod = "network-deeplink"
	MethodShortlink       ResolutionMethod = "shortlink"
	MethodUnsupported     ResolutionMethod = "unsupported"
)

// ResolvedOffer is a canonical offer with its monetized link, if any.
// AffiliateURL is empty when resolution was declined.
type ResolvedOffer struct {
	CanonicalOffer
	AffiliateURL string
	Method       ResolutionMethod
}

// OfferStatus tracks a persisted offer through the publish queue.
type OfferStatus string

const (
	OfferQueued    OfferStatus = "queued"
	OfferPublished OfferStatus = "published"
	OfferBlocked   OfferStatus = "blocked"
)

// StoredOffer is the persisted form of a resolved offer.
type StoredOffer struct {
	ID              int64
	Offer           ResolvedOffer
	Status          OfferStatus
	BlockedReason   BlockedReason
	DiscountPercent decimal.NullDecimal
	PublishAttempts int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PublishedAt     *time.Time
}

// Discount returns the percentage off the original price rounded to two
// places. ok is false when either price is missing or the original price is
// not above the current one.
func (o RawOffer) Discount() (decimal.Decimal, bool) {
	if !o.Price.Valid || !o.OriginalPrice.Valid {
		return decimal.Zero, false
	}
	if !o.OriginalPrice.Decimal.GreaterThan(o.Price.Decimal) || !o.Price.Decimal.IsPositive() {
		return decimal.Zero, false
	}
	diff := o.OriginalPrice.Decimal.Sub(o.Price.Decimal)
	return diff.Div(o.OriginalPrice.Decimal).Mul(decimal.NewFromInt(100)).Round(2), true
}

// Window bounds a collection cycle.
type Window struct {
	From time.Time
	To   time.Time
}

// PriceAggregate summarizes stored prices for one store.
type PriceAggregate struct {
	Store     string
	Count     int
	Min       decimal.Decimal
	Max       decimal.Decimal
	Avg       decimal.Decimal
	UpdatedAt time.Time
}
