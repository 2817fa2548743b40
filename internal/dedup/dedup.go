package dedup

import (
	"crypto/sha256"
	"encoding/hex"

	"DealScanner/internal/domain"
)

// Stats describes one deduplication pass.
type Stats struct {
	Total            int
	Duplicates       int
	Unique           int
	ReductionPercent float64
}

// Engine canonicalizes offers and drops repeats.
type Engine struct {
	canon Canonicalizer
}

// NewEngine builds an engine that preserves affiliateTag on ASIN URLs.
func NewEngine(affiliateTag string) *Engine {
	return &Engine{canon: Canonicalizer{AffiliateTag: affiliateTag}}
}

// Key derives the dedup key of a normalized title and canonical URL.
func Key(normalizedTitle, canonicalURL string) string {
	sum := sha256.Sum256([]byte(normalizedTitle + "|" + canonicalURL))
	return hex.EncodeToString(sum[:])
}

// Canonicalize attaches the normalized identity to a raw offer.
func (e *Engine) Canonicalize(offer domain.RawOffer) domain.CanonicalOffer {
	title := NormalizeTitle(offer.Title)
	canonicalURL := e.canon.URL(offer.ProductURL)
	return domain.CanonicalOffer{
		RawOffer:        offer,
		NormalizedTitle: title,
		CanonicalURL:    canonicalURL,
		DedupKey:        Key(title, canonicalURL),
	}
}

// Deduplicate canonicalizes offers and keeps the first instance of every
// dedup key, preserving input order among survivors.
func (e *Engine) Deduplicate(offers []domain.RawOffer) ([]domain.CanonicalOffer, Stats) {
	canonical := make([]domain.CanonicalOffer, 0, len(offers))
	for _, offer := range offers {
		canonical = append(canonical, e.Canonicalize(offer))
	}
	return Unique(canonical)
}

// Unique drops repeated dedup keys from already canonical offers.
func Unique(offers []domain.CanonicalOffer) ([]domain.CanonicalOffer, Stats) {
	seen := make(map[string]struct{}, len(offers))
	out := make([]domain.CanonicalOffer, 0, len(offers))
	for _, offer := range offers {
		if _, dup := seen[offer.DedupKey]; dup {
			continue
		}
		seen[offer.DedupKey] = struct{}{}
		out = append(out, offer)
	}

	stats := Stats{Total: len(offers), Unique: len(out), Duplicates: len(offers) - len(out)}
	if stats.Total > 0 {
		stats.ReductionPercent = float64(stats.Duplicates) / float64(stats.Total) * 100
	}
	return out, stats
}
