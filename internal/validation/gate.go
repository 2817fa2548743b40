// Package validation is the last check an outbound link passes before it may
// be published.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"DealScanner/internal/domain"
)

// Platforms known to the gate.
const (
	PlatformAmazon       = "amazon"
	PlatformAwin         = "awin"
	PlatformShopee       = "shopee"
	PlatformAliExpress   = "aliexpress"
	PlatformMagalu       = "magalu"
	PlatformMercadoLivre = "mercadolivre"
)

// Config holds the affiliate identities a valid link must carry.
type Config struct {
	AmazonTag        string
	AmazonLanguage   string
	AwinMerchantIDs  map[string]string
	AwinAffiliateIDs []string
	MagaluStorefront string
	MercadoLivreWord string
}

// DefaultConfig returns the production affiliate identities.
func DefaultConfig() Config {
	return Config{
		AmazonTag:      "garimpeirogee-20",
		AmazonLanguage: "pt_BR",
		AwinMerchantIDs: map[string]string{
			"comfy":   "23377",
			"trocafy": "51277",
			"lg":      "33061",
			"kabum":   "17729",
			"ninja":   "106765",
			"samsung": "25539",
		},
		AwinAffiliateIDs: []string{"2370719", "2510157"},
		MagaluStorefront: "https://www.magazinevoce.com.br/magazinegarimpeirogeek/",
		MercadoLivreWord: "garimpeirogeek",
	}
}

type violation struct {
	reason domain.BlockedReason
	msg    string
}

type platformRule struct {
	raw       []*regexp.Regexp
	shortHost string
	malformed domain.BlockedReason
	check     func(u *url.URL, link string) []violation
}

// Stats counts gate outcomes since construction.
type Stats struct {
	Total    int
	Valid    int
	Blocked  int
	ByReason map[domain.BlockedReason]int
}

// Gate validates affiliate links per platform. It is safe for concurrent use.
type Gate struct {
	cfg        Config
	rules      map[string]platformRule
	storefront *regexp.Regexp
	mids       map[string]struct{}
	affids     map[string]struct{}

	mu    sync.Mutex
	stats Stats
}

// NewGate builds a gate for cfg.
func NewGate(cfg Config) *Gate {
	g := &Gate{
		cfg:        cfg,
		storefront: storefrontPattern(cfg.MagaluStorefront),
		mids:       make(map[string]struct{}),
		affids:     make(map[string]struct{}),
		stats:      Stats{ByReason: make(map[domain.BlockedReason]int)},
	}
	for _, mid := range cfg.AwinMerchantIDs {
		g.mids[mid] = struct{}{}
	}
	for _, affid := range cfg.AwinAffiliateIDs {
		if affid = strings.TrimSpace(affid); affid != "" {
			g.affids[affid] = struct{}{}
		}
	}

	g.rules = map[string]platformRule{
		PlatformAmazon: {
			raw:       amazonRaw,
			malformed: domain.ReasonAmazonMissingASIN,
			check:     g.checkAmazon,
		},
		PlatformAwin: {
			raw:       awinRaw,
			malformed: domain.ReasonAwinInvalidDeeplink,
			check:     g.checkAwin,
		},
		PlatformShopee: {
			raw:       shopeeRaw,
			shortHost: "s.shopee.com.br",
			malformed: domain.ReasonShopeeInvalidShortlink,
			check:     matchOnly(shopeeShortlink, domain.ReasonShopeeInvalidShortlink, "shopee link must be an s.shopee.com.br shortlink"),
		},
		PlatformAliExpress: {
			raw:       aliexpressRaw,
			shortHost: "s.click.aliexpress.com",
			malformed: domain.ReasonAliExpressInvalidShortlink,
			check:     matchOnly(aliexpressShortlink, domain.ReasonAliExpressInvalidShortlink, "aliexpress link must be an s.click.aliexpress.com/e/ shortlink"),
		},
		PlatformMagalu: {
			raw:       magaluRaw,
			malformed: domain.ReasonMagaluInvalidStorefront,
			check:     g.checkMagalu,
		},
		PlatformMercadoLivre: {
			raw:       mercadoLivreRaw,
			malformed: domain.ReasonMercadoLivreInvalidAffiliate,
			check:     g.checkMercadoLivre,
		},
	}
	return g
}

// PlatformFor maps a store name to the platform whose rules govern it.
// Unknown stores map to "".
func (g *Gate) PlatformFor(store string) string {
	key := domain.StoreKey(store)
	switch key {
	case PlatformAmazon, PlatformShopee, PlatformAliExpress, PlatformMagalu, PlatformMercadoLivre:
		return key
	}
	if _, ok := g.cfg.AwinMerchantIDs[key]; ok {
		return PlatformAwin
	}
	return ""
}

// Validate checks link against the rules of platform. Checks stop at the
// first unsupported, empty or raw-store finding; structural checks report
// every violation and the first one decides the blocked reason.
func (g *Gate) Validate(link, platform string) domain.ValidationResult {
	res := g.evaluate(link, platform)
	g.record(res)
	return res
}

// Check reports whether link passes without counting it in Stats.
func (g *Gate) Check(link, platform string) bool {
	return g.evaluate(link, platform).IsValid
}

func (g *Gate) evaluate(link, platform string) domain.ValidationResult {
	platform = strings.ToLower(strings.TrimSpace(platform))
	link = strings.TrimSpace(link)
	res := domain.ValidationResult{Platform: platform}

	rule, ok := g.rules[platform]
	switch {
	case !ok:
		res.Errors = []string{fmt.Sprintf("unsupported platform %q", platform)}
		res.BlockedReason = domain.ReasonUnsupportedPlatform
	case link == "":
		res.Errors = []string{"affiliate link is empty"}
		res.BlockedReason = domain.ReasonEmptyLink
	default:
		res.Errors, res.BlockedReason = g.validateLink(rule, link, platform)
	}

	res.IsValid = res.BlockedReason == domain.ReasonNone
	return res
}

func (g *Gate) validateLink(rule platformRule, link, platform string) ([]string, domain.BlockedReason) {
	for _, re := range rule.raw {
		if re.MatchString(link) {
			return []string{fmt.Sprintf("raw %s store URL is not monetized: %s", platform, link)}, domain.ReasonRawStoreURL
		}
	}

	u, err := url.Parse(link)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return []string{fmt.Sprintf("malformed %s link: %s", platform, link)}, rule.malformed
	}
	if rule.shortHost != "" && !strings.EqualFold(u.Hostname(), rule.shortHost) {
		return []string{fmt.Sprintf("%s accepts only %s shortlinks: %s", platform, rule.shortHost, link)}, domain.ReasonRawStoreURL
	}

	violations := rule.check(u, link)
	if len(violations) == 0 {
		return nil, domain.ReasonNone
	}
	errs := make([]string, 0, len(violations))
	for _, v := range violations {
		errs = append(errs, v.msg)
	}
	return errs, violations[0].reason
}

func (g *Gate) record(res domain.ValidationResult) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stats.Total++
	if res.IsValid {
		g.stats.Valid++
		return
	}
	g.stats.Blocked++
	g.stats.ByReason[res.BlockedReason]++
}

// Stats returns a snapshot of gate counters.
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := g.stats
	out.ByReason = make(map[domain.BlockedReason]int, len(g.stats.ByReason))
	for k, v := range g.stats.ByReason {
		out.ByReason[k] = v
	}
	return out
}
