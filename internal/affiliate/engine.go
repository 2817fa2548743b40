package affiliate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
	"DealScanner/internal/validation"
)

// ErrShortlinkUnavailable reports that no usable shortlink could be minted.
var ErrShortlinkUnavailable = errors.New("shortlink unavailable")

const defaultAwinHost = "www.awin1.com"

// Config is the static credential set of every affiliate network.
type Config struct {
	AmazonTag          string
	AmazonLanguage     string
	AwinMerchants      map[string]string
	AwinAffiliateIDs   []string
	AwinOverrides      map[string]string
	MagaluStorefront   string
	ShortlinkPlatforms []string
}

// DefaultConfig returns the production network table.
func DefaultConfig() Config {
	return Config{
		AmazonTag:      "garimpeirogee-20",
		AmazonLanguage: "pt_BR",
		AwinMerchants: map[string]string{
			"comfy":   "23377",
			"trocafy": "51277",
			"lg":      "33061",
			"kabum":   "17729",
			"ninja":   "106765",
			"samsung": "25539",
		},
		AwinAffiliateIDs:   []string{"2370719", "2510157"},
		AwinOverrides:      map[string]string{"samsung": "2510157"},
		MagaluStorefront:   "https://www.magazinevoce.com.br/magazinegarimpeirogeek/",
		ShortlinkPlatforms: []string{validation.PlatformShopee, validation.PlatformAliExpress, validation.PlatformMercadoLivre},
	}
}

// EngineDeps wires optional collaborators of the engine.
type EngineDeps struct {
	Gate   *validation.Gate
	Minter ports.ShortlinkMinter
	Cache  ports.ShortlinkCache
	Logger *slog.Logger
}

// Engine dispatches resolution to the strategy registered for a store.
type Engine struct {
	mu         sync.RWMutex
	strategies map[string]Strategy

	minter ports.ShortlinkMinter
	cache  ports.ShortlinkCache
	logger *slog.Logger
}

var _ ports.Resolver = (*Engine)(nil)

// NewEngine registers a strategy per configured network. Networks whose
// credentials are missing are left unregistered so their offers resolve as
// unsupported.
func NewEngine(cfg Config, deps EngineDeps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Engine{
		strategies: make(map[string]Strategy),
		minter:     deps.Minter,
		cache:      deps.Cache,
		logger:     logger,
	}

	if cfg.AmazonTag != "" {
		e.Register("amazon", TagInjection{Tag: cfg.AmazonTag, Language: cfg.AmazonLanguage})
	} else {
		logger.Warn("amazon strategy disabled", "reason", "missing affiliate tag")
	}

	if cfg.MagaluStorefront != "" {
		e.Register("magalu", DomainRewrite{Storefront: cfg.MagaluStorefront})
	}

	if len(cfg.AwinAffiliateIDs) > 0 && strings.TrimSpace(cfg.AwinAffiliateIDs[0]) != "" {
		deeplink := NetworkDeeplink{
			Host:               defaultAwinHost,
			Merchants:          cfg.AwinMerchants,
			DefaultAffiliateID: strings.TrimSpace(cfg.AwinAffiliateIDs[0]),
			AffiliateOverrides: cfg.AwinOverrides,
		}
		e.Register("awin", deeplink)
		for store := range cfg.AwinMerchants {
			e.Register(store, deeplink)
		}
	} else {
		logger.Warn("awin strategy disabled", "reason", "missing affiliate ids")
	}

	for _, platform := range cfg.ShortlinkPlatforms {
		e.Register(platform, Shortlink{Platform: platform, Gate: deps.Gate})
	}
	return e
}

// Register adds or replaces the strategy of a store.
func (e *Engine) Register(store string, strategy Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[domain.StoreKey(store)] = strategy
}

// Stores lists stores with a registered strategy.
func (e *Engine) Stores() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.strategies))
	for store := range e.strategies {
		out = append(out, store)
	}
	return out
}

func (e *Engine) strategy(store string) (Strategy, string) {
	key := domain.StoreKey(store)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.strategies[key], key
}

// Resolve applies the store's strategy without any network call. Offers
// without a store are matched by URL host and carry the detected store.
func (e *Engine) Resolve(offer domain.CanonicalOffer) domain.ResolvedOffer {
	store := offer.Store
	if strings.TrimSpace(store) == "" {
		store = DetectStore(offer.ProductURL)
	}

	resolved := domain.ResolvedOffer{CanonicalOffer: offer, Method: domain.MethodUnsupported}
	resolved.Store = store
	strategy, _ := e.strategy(store)
	if strategy == nil {
		return resolved
	}

	link := strategy.Resolve(offer.CanonicalURL, store)
	if link == "" && strategy.Method() != domain.MethodShortlink {
		return resolved
	}
	resolved.Method = strategy.Method()
	resolved.AffiliateURL = link
	return resolved
}

// Convert resolves an offer and, for shortlink networks, mints the missing
// shortlink. Minting failures leave the offer un-monetized.
func (e *Engine) Convert(ctx context.Context, offer domain.CanonicalOffer) domain.ResolvedOffer {
	resolved := e.Resolve(offer)
	if resolved.Method != domain.MethodShortlink || resolved.AffiliateURL != "" {
		return resolved
	}

	store := offer.Store
	if strings.TrimSpace(store) == "" {
		store = DetectStore(offer.ProductURL)
	}
	short, err := e.Mint(ctx, domain.StoreKey(store), offer.CanonicalURL)
	if err != nil {
		e.logger.Warn("shortlink not minted", "store", store, "url", offer.CanonicalURL, "error", err)
		return resolved
	}
	resolved.AffiliateURL = short
	return resolved
}

// Mint returns a cached or freshly minted shortlink for longURL.
func (e *Engine) Mint(ctx context.Context, platform, longURL string) (string, error) {
	if e.minter == nil {
		return "", fmt.Errorf("%w: no minter configured", ErrShortlinkUnavailable)
	}

	if e.cache != nil {
		short, ok, err := e.cache.Get(ctx, platform, longURL)
		if err != nil {
			e.logger.Warn("shortlink cache read failed", "error", err)
		} else if ok && validation.IsShortlink(platform, short) {
			return short, nil
		}
	}

	short, err := e.minter.Mint(ctx, platform, longURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrShortlinkUnavailable, err)
	}
	short = strings.TrimSpace(short)
	if !validation.IsShortlink(platform, short) {
		return "", fmt.Errorf("%w: malformed shortlink %q", ErrShortlinkUnavailable, short)
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, platform, longURL, short); err != nil {
			e.logger.Warn("shortlink cache write failed", "error", err)
		}
	}
	return short, nil
}

var hostStores = []struct {
	suffix string
	store  string
}{
	{"amazon.com.br", "amazon"},
	{"amzn.to", "amazon"},
	{"magazineluiza.com.br", "magalu"},
	{"magazinevoce.com.br", "magalu"},
	{"mercadolivre.com.br", "mercadolivre"},
	{"mercadolivre.com", "mercadolivre"},
	{"shopee.com.br", "shopee"},
	{"aliexpress.com", "aliexpress"},
	{"kabum.com.br", "kabum"},
	{"comfy.com.br", "comfy"},
	{"trocafy.com.br", "trocafy"},
	{"ninja.com.br", "ninja"},
	{"samsung.com", "samsung"},
	{"lg.com", "lg"},
}

// DetectStore guesses the store of a product URL from its host.
func DetectStore(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	for _, hs := range hostStores {
		if host == hs.suffix || strings.HasSuffix(host, "."+hs.suffix) {
			return hs.store
		}
	}
	return ""
}
