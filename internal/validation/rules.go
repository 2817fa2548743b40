package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"DealScanner/internal/domain"
)

var (
	amazonRaw = []*regexp.Regexp{
		regexp.MustCompile(`^https?://(www\.)?amazon\.com\.br/[^?]*$`),
		regexp.MustCompile(`^https?://(www\.)?amazon\.com\.br/[^?]*\?[^=]*$`),
	}
	awinRaw = []*regexp.Regexp{
		regexp.MustCompile(`^https?://(www\.)?(comfy\.com\.br|trocafy\.com\.br|lg\.com|kabum\.com\.br|ninja\.com\.br|samsung\.com)(/|$)`),
	}
	shopeeRaw = []*regexp.Regexp{
		regexp.MustCompile(`shopee\.com\.br/[^?#]*i\.\d+\.\d+`),
		regexp.MustCompile(`shopee\.com\.br/cat\.`),
	}
	aliexpressRaw = []*regexp.Regexp{
		regexp.MustCompile(`^https?://(pt|www|m)\.aliexpress\.com/item/\d+\.html`),
		regexp.MustCompile(`^https?://(pt|www|m)\.aliexpress\.com/store/`),
		regexp.MustCompile(`^https?://(pt|www|m)\.aliexpress\.com/category/`),
		regexp.MustCompile(`^https?://(pt|www|m)\.aliexpress\.com/wholesale`),
	}
	magaluRaw = []*regexp.Regexp{
		regexp.MustCompile(`^https?://([a-z0-9-]+\.)*magazineluiza\.com\.br(/|$)`),
	}
	mercadoLivreRaw = []*regexp.Regexp{
		regexp.MustCompile(`^https?://(www\.)?mercadolivre\.com\.br/p/MLB`),
		regexp.MustCompile(`^https?://produto\.mercadolivre\.com\.br/MLB-`),
		regexp.MustCompile(`^https?://(www\.)?mercadolivre\.com\.br/up/MLB`),
		regexp.MustCompile(`^https?://(www\.)?mercadolivre\.com\.br/[^?#]*item/MLB`),
		regexp.MustCompile(`^https?://(www\.)?mercadolivre\.com\.br/[^?#]*MLBU?-?[0-9]`),
		regexp.MustCompile(`^https?://(www\.)?mercadolivre\.com\.br/categoria/`),
		regexp.MustCompile(`^https?://lista\.mercadolivre\.com\.br/`),
		regexp.MustCompile(`^https?://(www\.)?mercadolivre\.com\.br/search\?`),
	}

	amazonASINPath      = regexp.MustCompile(`/(?:dp|gp/product)/([^/?#]+)`)
	asinPattern         = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	shopeeShortlink     = regexp.MustCompile(`^https://s\.shopee\.com\.br/[A-Za-z0-9]{4,20}$`)
	aliexpressShortlink = regexp.MustCompile(`^https://s\.click\.aliexpress\.com/e/[A-Za-z0-9_-]{6,}$`)
	mercadoLivreShort   = regexp.MustCompile(`^https?://(?:www\.)?mercadolivre\.com(?:\.br)?/sec/[A-Za-z0-9]+$`)
)

const asinPrefix = "B0"

// IsShortlink reports whether link is a well-formed shortlink of a
// shortlink-based platform.
func IsShortlink(platform, link string) bool {
	switch platform {
	case PlatformShopee:
		return shopeeShortlink.MatchString(link)
	case PlatformAliExpress:
		return aliexpressShortlink.MatchString(link)
	case PlatformMercadoLivre:
		return mercadoLivreShort.MatchString(link)
	default:
		return false
	}
}

func matchOnly(re *regexp.Regexp, reason domain.BlockedReason, msg string) func(*url.URL, string) []violation {
	return func(_ *url.URL, link string) []violation {
		if re.MatchString(link) {
			return nil
		}
		return []violation{{reason: reason, msg: msg}}
	}
}

func (g *Gate) checkAmazon(u *url.URL, _ string) []violation {
	var out []violation

	m := amazonASINPath.FindStringSubmatch(u.Path)
	switch {
	case m == nil:
		out = append(out, violation{domain.ReasonAmazonMissingASIN, "amazon link has no product ASIN"})
	case !asinPattern.MatchString(m[1]) || !strings.HasPrefix(m[1], asinPrefix):
		out = append(out, violation{domain.ReasonAmazonInvalidASIN, fmt.Sprintf("invalid ASIN %q", m[1])})
	}

	if !hostWithin(u, "amazon.com.br") {
		out = append(out, violation{domain.ReasonAmazonInvalidAffiliate, fmt.Sprintf("unexpected amazon host %q", u.Host)})
	}
	q := u.Query()
	if q.Get("tag") != g.cfg.AmazonTag {
		out = append(out, violation{domain.ReasonAmazonInvalidAffiliate, fmt.Sprintf("tag must be %q", g.cfg.AmazonTag)})
	}
	if q.Get("language") != g.cfg.AmazonLanguage {
		out = append(out, violation{domain.ReasonAmazonInvalidAffiliate, fmt.Sprintf("language must be %q", g.cfg.AmazonLanguage)})
	}
	return out
}

func (g *Gate) checkAwin(u *url.URL, _ string) []violation {
	bad := func(msg string) violation { return violation{domain.ReasonAwinInvalidDeeplink, msg} }

	var out []violation
	host := strings.ToLower(u.Hostname())
	if host != "www.awin1.com" && host != "awin1.com" {
		out = append(out, bad(fmt.Sprintf("awin deeplink must be on awin1.com, got %q", host)))
	}
	if u.Path != "/cread.php" {
		out = append(out, bad(fmt.Sprintf("awin deeplink must use /cread.php, got %q", u.Path)))
	}

	q := u.Query()
	if _, ok := g.mids[q.Get("awinmid")]; !ok {
		out = append(out, bad(fmt.Sprintf("unknown awinmid %q", q.Get("awinmid"))))
	}
	if _, ok := g.affids[q.Get("awinaffid")]; !ok {
		out = append(out, bad(fmt.Sprintf("unknown awinaffid %q", q.Get("awinaffid"))))
	}
	target, err := url.Parse(q.Get("ued"))
	if q.Get("ued") == "" || err != nil || target.Host == "" {
		out = append(out, bad("awin deeplink has no target url"))
	}
	return out
}

func (g *Gate) checkMagalu(_ *url.URL, link string) []violation {
	if g.storefront != nil && g.storefront.MatchString(link) {
		return nil
	}
	return []violation{{domain.ReasonMagaluInvalidStorefront, fmt.Sprintf("magalu link must start with %s", g.cfg.MagaluStorefront)}}
}

func (g *Gate) checkMercadoLivre(u *url.URL, link string) []violation {
	if mercadoLivreShort.MatchString(link) {
		return nil
	}

	word := g.cfg.MercadoLivreWord
	social := word != "" &&
		hostWithin(u, "mercadolivre.com.br") &&
		strings.EqualFold(strings.TrimRight(u.Path, "/"), "/social/"+word) &&
		u.Query().Get("matt_word") == word
	if social {
		return nil
	}
	return []violation{{domain.ReasonMercadoLivreInvalidAffiliate, "mercado livre link must be a /sec/ shortlink or a social referral link"}}
}

func hostWithin(u *url.URL, base string) bool {
	host := strings.ToLower(u.Hostname())
	return host == base || host == "www."+base
}

func storefrontPattern(storefront string) *regexp.Regexp {
	u, err := url.Parse(strings.TrimSpace(storefront))
	if err != nil || u.Host == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := "/" + strings.Trim(u.Path, "/") + "/"
	return regexp.MustCompile(`^https://(www\.)?` + regexp.QuoteMeta(host) + regexp.QuoteMeta(path))
}
