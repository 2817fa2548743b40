package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DealScanner/internal/domain"
)

func TestNormalizeTitleDropsFillerWords(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "smartphone xyz", NormalizeTitle("Smartphone XYZ - Promoção com Frete Grátis!!"))
	assert.Equal(t, "fone bluetooth jbl", NormalizeTitle("  Fone   Bluetooth JBL (Oficial) "))
	assert.Equal(t, "", NormalizeTitle("Oferta!"))
}

func TestNormalizeTitleIgnoresCaseAndPunctuation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, NormalizeTitle("Notebook Dell, Inspiron 15"), NormalizeTitle("notebook dell inspiron 15 - NOVO"))
}

func TestCanonicalizeASINURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://site.example/dp/B0ABC12345",
		CanonicalizeURL("https://site.example/dp/B0ABC12345?tag=old&ref=xyz"))
	assert.Equal(t, "https://www.amazon.com.br/dp/B0ABC12345",
		CanonicalizeURL("https://www.Amazon.com.br/Some-Product-Name/dp/B0ABC12345/ref=sr_1_1?keywords=x"))
	assert.Equal(t, "https://www.amazon.com.br/dp/B0ABC12345",
		CanonicalizeURL("https://www.amazon.com.br/gp/product/B0ABC12345"))
}

func TestCanonicalizerKeepsOnlyConfiguredTag(t *testing.T) {
	t.Parallel()

	c := Canonicalizer{AffiliateTag: "mytag-20"}
	assert.Equal(t, "https://site.example/dp/B0ABC12345?tag=mytag-20",
		c.URL("https://site.example/dp/B0ABC12345?ref=x&tag=mytag-20"))
	assert.Equal(t, "https://site.example/dp/B0ABC12345",
		c.URL("https://site.example/dp/B0ABC12345?tag=other-20"))
}

func TestCanonicalizeKeepsIdentifyingParamsSorted(t *testing.T) {
	t.Parallel()

	a := CanonicalizeURL("https://Shop.example/p/phone/?utm_source=x&sku=9&id=3&page=2#reviews")
	b := CanonicalizeURL("https://shop.example/p/phone?id=3&sku=9&sessionid=abc")

	assert.Equal(t, "https://shop.example/p/phone?id=3&sku=9", a)
	assert.Equal(t, a, b)
}

func TestCanonicalizeMergesCaseFoldedParamsDeterministically(t *testing.T) {
	t.Parallel()

	const raw = "https://shop.example/p?ID=1&id=2&Sku=7"
	want := "https://shop.example/p?id=1&id=2&sku=7"
	for i := 0; i < 100; i++ {
		require.Equal(t, want, CanonicalizeURL(raw))
	}
	assert.Equal(t, want, CanonicalizeURL(want))
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"https://site.example/dp/B0ABC12345?tag=old&ref=xyz",
		"https://shop.example/p/phone/?utm_source=x&sku=9&id=3",
		"https://shop.example/",
		"not a url",
		"",
		"http://store.example/item?EAN=789&Model=a%20b",
	}
	for _, in := range inputs {
		once := CanonicalizeURL(in)
		assert.Equal(t, once, CanonicalizeURL(once), in)
	}
}

func TestDeduplicateKeepsFirstSeen(t *testing.T) {
	t.Parallel()

	first := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	offers := []domain.RawOffer{
		{Title: "Smartphone XYZ", ProductURL: "https://site.example/dp/B0ABC12345?ref=a", ObservedAt: first},
		{Title: "Cadeira Gamer", ProductURL: "https://shop.example/cadeira?id=1"},
		{Title: "Smartphone XYZ - Oferta", ProductURL: "https://site.example/dp/B0ABC12345?ref=b", ObservedAt: first.Add(time.Hour)},
	}

	e := NewEngine("")
	unique, stats := e.Deduplicate(offers)

	require.Len(t, unique, 2)
	assert.Equal(t, first, unique[0].ObservedAt)
	assert.Equal(t, "Cadeira Gamer", unique[1].Title)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 2, stats.Unique)
	assert.InDelta(t, 33.33, stats.ReductionPercent, 0.01)
}

func TestUniqueIsIdempotent(t *testing.T) {
	t.Parallel()

	e := NewEngine("")
	once, _ := e.Deduplicate([]domain.RawOffer{
		{Title: "A product one", ProductURL: "https://a.example/x"},
		{Title: "A product one", ProductURL: "https://a.example/x?utm=1"},
		{Title: "Another product", ProductURL: "https://a.example/y"},
	})
	twice, stats := Unique(once)

	assert.Equal(t, once, twice)
	assert.Equal(t, 0, stats.Duplicates)
	assert.LessOrEqual(t, len(once), 3)
}

func TestKeyIsStableHash(t *testing.T) {
	t.Parallel()

	k := Key("smartphone xyz", "https://site.example/dp/B0ABC12345")
	assert.Len(t, k, 64)
	assert.Equal(t, k, Key("smartphone xyz", "https://site.example/dp/B0ABC12345"))
	assert.NotEqual(t, k, Key("smartphone", "https://site.example/dp/B0ABC12345"))
}
