package domain

import "strings"

var storeAliases = map[string]string{
	"amazonbr":      "amazon",
	"amazoncombr":   "amazon",
	"magazineluiza": "magalu",
	"magazinevoce":  "magalu",
	"mercadolibre":  "mercadolivre",
	"meli":          "mercadolivre",
	"lgelectronics": "lg",
	"ninjacombr":    "ninja",
	"kabumcombr":    "kabum",
	"samsungbrasil": "samsung",
	"aliexpresscom": "aliexpress",
	"shopeebrasil":  "shopee",
	"shopeecombr":   "shopee",
}

// StoreKey folds a display store name ("Mercado Livre", "Magazine Luiza")
// into the key used by affiliate and validation tables.
func StoreKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	key := b.String()
	if alias, ok := storeAliases[key]; ok {
		return alias
	}
	return key
}
