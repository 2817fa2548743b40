package parser

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice reads a Brazilian formatted price such as "R$ 1.299,90". Text
// without digits yields an invalid NullDecimal.
func ParsePrice(text string) decimal.NullDecimal {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	raw := strings.Trim(b.String(), ".,")
	if raw == "" {
		return decimal.NullDecimal{}
	}

	switch {
	case strings.Contains(raw, ","):
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.Replace(raw, ",", ".", 1)
		raw = strings.ReplaceAll(raw, ",", "")
	case strings.Count(raw, ".") > 1:
		raw = strings.ReplaceAll(raw, ".", "")
	case strings.Contains(raw, "."):
		if i := strings.LastIndex(raw, "."); len(raw)-i-1 == 3 {
			raw = strings.ReplaceAll(raw, ".", "")
		}
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
