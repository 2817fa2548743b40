// Package affiliate rewrites canonical product URLs into monetized links.
package affiliate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"DealScanner/internal/domain"
	"DealScanner/internal/validation"
)

// Strategy turns a canonical URL into an affiliate link for one network. An
// empty result declines resolution.
type Strategy interface {
	Method() domain.ResolutionMethod
	Resolve(canonicalURL, store string) string
}

var asinInPath = regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})(?:[/?#]|$)`)

// TagInjection appends the affiliate tag and locale to ASIN product URLs.
type TagInjection struct {
	Tag      string
	Language string
}

func (TagInjection) Method() domain.ResolutionMethod { return domain.MethodTagInjection }

func (s TagInjection) Resolve(canonicalURL, _ string) string {
	u, err := url.Parse(canonicalURL)
	if err != nil || u.Host == "" || !asinInPath.MatchString(u.Path) {
		return ""
	}
	q := u.Query()
	q.Set("tag", s.Tag)
	if s.Language != "" {
		q.Set("language", s.Language)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// DomainRewrite moves a product URL onto a partner storefront. Path, query
// and fragment are kept and prefixed with the storefront path.
type DomainRewrite struct {
	Storefront string
}

func (DomainRewrite) Method() domain.ResolutionMethod { return domain.MethodDomainRewrite }

func (s DomainRewrite) Resolve(canonicalURL, _ string) string {
	front, err := url.Parse(s.Storefront)
	if err != nil || front.Host == "" {
		return ""
	}
	u, err := url.Parse(canonicalURL)
	if err != nil || u.Host == "" {
		return ""
	}

	prefix := "/" + strings.Trim(front.Path, "/")
	if strings.EqualFold(u.Host, front.Host) && strings.HasPrefix(u.Path, prefix+"/") {
		return u.String()
	}

	u.Scheme = "https"
	u.Host = front.Host
	if u.RawPath != "" {
		u.RawPath = prefix + u.RawPath
	}
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	u.Path = prefix + u.Path
	return u.String()
}

// NetworkDeeplink wraps a product URL in an Awin cread.php link.
type NetworkDeeplink struct {
	Host               string
	Merchants          map[string]string
	DefaultAffiliateID string
	AffiliateOverrides map[string]string
}

func (NetworkDeeplink) Method() domain.ResolutionMethod { return domain.MethodNetworkDeeplink }

func (s NetworkDeeplink) Resolve(canonicalURL, store string) string {
	key := domain.StoreKey(store)
	mid, ok := s.Merchants[key]
	if !ok || mid == "" || canonicalURL == "" {
		return ""
	}
	affid := s.DefaultAffiliateID
	if override, ok := s.AffiliateOverrides[key]; ok && override != "" {
		affid = override
	}
	if affid == "" {
		return ""
	}
	host := s.Host
	if host == "" {
		host = defaultAwinHost
	}
	return fmt.Sprintf("https://%s/cread.php?awinmid=%s&awinaffid=%s&ued=%s", host, mid, affid, url.QueryEscape(canonicalURL))
}

// Shortlink covers networks that only accept minted shortlinks. Resolution
// passes through links that are already valid for the platform and otherwise
// leaves minting to Engine.Convert.
type Shortlink struct {
	Platform string
	Gate     *validation.Gate
}

func (Shortlink) Method() domain.ResolutionMethod { return domain.MethodShortlink }

func (s Shortlink) Resolve(canonicalURL, _ string) string {
	if validation.IsShortlink(s.Platform, canonicalURL) {
		return canonicalURL
	}
	if s.Gate != nil && s.Gate.Check(canonicalURL, s.Platform) {
		return canonicalURL
	}
	return ""
}
