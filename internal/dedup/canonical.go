package dedup

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var asinPath = regexp.MustCompile(`(?:/dp/|/gp/product/)([A-Za-z0-9]{10})(?:[/?#]|$)`)

// identifyingParams survive canonicalization for stores without ASIN paths.
var identifyingParams = map[string]struct{}{
	"id":         {},
	"sku":        {},
	"ean":        {},
	"gtin":       {},
	"mpn":        {},
	"model":      {},
	"variant":    {},
	"item_id":    {},
	"itemid":     {},
	"product_id": {},
	"productid":  {},
	"pid":        {},
	"color":      {},
	"size":       {},
}

// Canonicalizer reduces product URLs to their identifying form. AffiliateTag,
// when set, is the only tag value preserved on ASIN URLs.
type Canonicalizer struct {
	AffiliateTag string
}

// CanonicalizeURL canonicalizes with no preserved affiliate tag.
func CanonicalizeURL(raw string) string {
	return Canonicalizer{}.URL(raw)
}

// URL returns the canonical form of raw. Unparseable input is returned
// trimmed so it still acts as a stable key.
func (c Canonicalizer) URL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	host := strings.ToLower(u.Host)

	if m := asinPath.FindStringSubmatch(u.EscapedPath()); m != nil {
		out := scheme + "://" + host + "/dp/" + strings.ToUpper(m[1])
		if c.AffiliateTag != "" && u.Query().Get("tag") == c.AffiliateTag {
			out += "?tag=" + url.QueryEscape(c.AffiliateTag)
		}
		return out
	}

	// keys differing only in case are merged in sorted raw-key order
	query := u.Query()
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	kept := url.Values{}
	for _, key := range keys {
		folded := strings.ToLower(key)
		if _, ok := identifyingParams[folded]; ok {
			kept[folded] = append(kept[folded], query[key]...)
		}
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	out := scheme + "://" + host + path
	if len(kept) > 0 {
		out += "?" + kept.Encode()
	}
	return out
}
