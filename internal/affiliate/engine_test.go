package affiliate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DealScanner/internal/domain"
	"DealScanner/internal/validation"
)

type stubMinter struct {
	short string
	err   error
	calls int
}

func (m *stubMinter) Mint(_ context.Context, _, _ string) (string, error) {
	m.calls++
	return m.short, m.err
}

type mapCache struct {
	items map[string]string
}

func (c *mapCache) Get(_ context.Context, platform, longURL string) (string, bool, error) {
	v, ok := c.items[platform+"|"+longURL]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, platform, longURL, shortURL string) error {
	c.items[platform+"|"+longURL] = shortURL
	return nil
}

func offer(store, canonicalURL string) domain.CanonicalOffer {
	return domain.CanonicalOffer{
		RawOffer:     domain.RawOffer{Store: store, ProductURL: canonicalURL},
		CanonicalURL: canonicalURL,
	}
}

func newEngine(deps EngineDeps) *Engine {
	if deps.Gate == nil {
		deps.Gate = validation.NewGate(validation.DefaultConfig())
	}
	return NewEngine(DefaultConfig(), deps)
}

func TestTagInjectionIsDeterministicAndGatePasses(t *testing.T) {
	t.Parallel()

	e := newEngine(EngineDeps{})
	in := offer("Amazon", "https://www.amazon.com.br/dp/B0ABC12345?tag=old-20")

	first := e.Resolve(in)
	second := e.Resolve(in)

	assert.Equal(t, domain.MethodTagInjection, first.Method)
	assert.Equal(t, "https://www.amazon.com.br/dp/B0ABC12345?language=pt_BR&tag=garimpeirogee-20", first.AffiliateURL)
	assert.Equal(t, first.AffiliateURL, second.AffiliateURL)
	assert.True(t, validation.NewGate(validation.DefaultConfig()).Validate(first.AffiliateURL, "amazon").IsValid)
}

func TestTagInjectionDeclinesWithoutASIN(t *testing.T) {
	t.Parallel()

	res := newEngine(EngineDeps{}).Resolve(offer("amazon", "https://www.amazon.com.br/s?k=phone"))
	assert.Equal(t, domain.MethodUnsupported, res.Method)
	assert.Empty(t, res.AffiliateURL)
}

func TestDomainRewriteKeepsPathQueryFragment(t *testing.T) {
	t.Parallel()

	res := newEngine(EngineDeps{}).Resolve(offer("Magazine Luiza", "https://www.magazineluiza.com.br/smartphone/p/abc123/?sku=1#top"))

	assert.Equal(t, domain.MethodDomainRewrite, res.Method)
	assert.Equal(t, "https://www.magazinevoce.com.br/magazinegarimpeirogeek/smartphone/p/abc123/?sku=1#top", res.AffiliateURL)
	assert.True(t, validation.NewGate(validation.DefaultConfig()).Validate(res.AffiliateURL, "magalu").IsValid)
}

func TestNetworkDeeplinkUsesMerchantAndOverrides(t *testing.T) {
	t.Parallel()

	e := newEngine(EngineDeps{})

	kabum := e.Resolve(offer("KaBuM", "https://www.kabum.com.br/produto/1"))
	assert.Equal(t, domain.MethodNetworkDeeplink, kabum.Method)
	assert.Equal(t, "https://www.awin1.com/cread.php?awinmid=17729&awinaffid=2370719&ued=https%3A%2F%2Fwww.kabum.com.br%2Fproduto%2F1", kabum.AffiliateURL)

	samsung := e.Resolve(offer("Samsung", "https://www.samsung.com/br/tv"))
	assert.Contains(t, samsung.AffiliateURL, "awinmid=25539&awinaffid=2510157&")

	gate := validation.NewGate(validation.DefaultConfig())
	assert.True(t, gate.Validate(kabum.AffiliateURL, "awin").IsValid)
	assert.True(t, gate.Validate(samsung.AffiliateURL, "awin").IsValid)
}

func TestNetworkDeeplinkDeclinesUnknownMerchant(t *testing.T) {
	t.Parallel()

	e := newEngine(EngineDeps{})
	e.Register("newshop", NetworkDeeplink{Merchants: map[string]string{}, DefaultAffiliateID: "2370719"})

	in := offer("NewShop", "https://newshop.example/p/1")
	res := e.Resolve(in)

	assert.Equal(t, domain.MethodUnsupported, res.Method)
	assert.Empty(t, res.AffiliateURL)
	assert.Equal(t, in.ProductURL, res.ProductURL)
}

func TestUnknownStoreIsUnsupported(t *testing.T) {
	t.Parallel()

	res := newEngine(EngineDeps{}).Resolve(offer("Loja X", "https://lojax.example/p/1"))
	assert.Equal(t, domain.MethodUnsupported, res.Method)
	assert.Empty(t, res.AffiliateURL)
}

func TestMissingCredentialsLeaveStrategyUnregistered(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.AmazonTag = ""
	cfg.AwinAffiliateIDs = nil
	e := NewEngine(cfg, EngineDeps{})

	assert.Equal(t, domain.MethodUnsupported, e.Resolve(offer("amazon", "https://www.amazon.com.br/dp/B0ABC12345")).Method)
	assert.Equal(t, domain.MethodUnsupported, e.Resolve(offer("kabum", "https://www.kabum.com.br/produto/1")).Method)
}

func TestShortlinkResolvePassesValidShortlinksOnly(t *testing.T) {
	t.Parallel()

	e := newEngine(EngineDeps{})

	res := e.Resolve(offer("shopee", "https://s.shopee.com.br/AbC123"))
	assert.Equal(t, domain.MethodShortlink, res.Method)
	assert.Equal(t, "https://s.shopee.com.br/AbC123", res.AffiliateURL)

	res = e.Resolve(offer("shopee", "https://shopee.com.br/Produto-i.1.2"))
	assert.Equal(t, domain.MethodShortlink, res.Method)
	assert.Empty(t, res.AffiliateURL)
}

func TestConvertMintsAndCachesShortlinks(t *testing.T) {
	t.Parallel()

	minter := &stubMinter{short: "https://s.click.aliexpress.com/e/_AbCdEf1"}
	cache := &mapCache{items: map[string]string{}}
	e := newEngine(EngineDeps{Minter: minter, Cache: cache})

	in := offer("AliExpress", "https://pt.aliexpress.com/item/100500.html")
	first := e.Convert(context.Background(), in)
	second := e.Convert(context.Background(), in)

	assert.Equal(t, "https://s.click.aliexpress.com/e/_AbCdEf1", first.AffiliateURL)
	assert.Equal(t, first.AffiliateURL, second.AffiliateURL)
	assert.Equal(t, 1, minter.calls)
}

func TestConvertKeepsOfferWhenMintingFails(t *testing.T) {
	t.Parallel()

	e := newEngine(EngineDeps{Minter: &stubMinter{err: errors.New("partner down")}})
	res := e.Convert(context.Background(), offer("shopee", "https://shopee.com.br/Produto-i.1.2"))

	assert.Equal(t, domain.MethodShortlink, res.Method)
	assert.Empty(t, res.AffiliateURL)
}

func TestMintRejectsMalformedShortlink(t *testing.T) {
	t.Parallel()

	e := newEngine(EngineDeps{Minter: &stubMinter{short: "https://shopee.com.br/not-short"}})
	_, err := e.Mint(context.Background(), "shopee", "https://shopee.com.br/Produto-i.1.2")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShortlinkUnavailable)
}

func TestDetectStore(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "amazon", DetectStore("https://www.amazon.com.br/dp/B0ABC12345"))
	assert.Equal(t, "mercadolivre", DetectStore("https://produto.mercadolivre.com.br/MLB-1"))
	assert.Equal(t, "kabum", DetectStore("https://www.kabum.com.br/produto/1"))
	assert.Equal(t, "", DetectStore("https://unknown.example"))
}

func TestResolveDetectsStoreFromURL(t *testing.T) {
	t.Parallel()

	res := newEngine(EngineDeps{}).Resolve(offer("", "https://www.amazon.com.br/dp/B0ABC12345"))
	assert.Equal(t, domain.MethodTagInjection, res.Method)
	assert.Equal(t, "amazon", res.Store, "the detected store is carried on the resolved offer")

	unknown := newEngine(EngineDeps{}).Resolve(offer("", "https://unknown.example/p/1"))
	assert.Equal(t, domain.MethodUnsupported, unknown.Method)
	assert.Empty(t, unknown.Store)
}
