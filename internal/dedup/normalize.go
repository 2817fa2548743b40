// Package dedup turns raw offers into canonical offers and collapses repeats.
package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const minWordLength = 3

var stopWords = map[string]struct{}{
	"oferta": {}, "promocao": {}, "desconto": {}, "barato": {}, "melhor": {},
	"preco": {}, "produto": {}, "item": {}, "novo": {}, "original": {},
	"oficial": {}, "gratis": {}, "frete": {}, "entrega": {}, "rapida": {},
	"amazon": {}, "shopee": {}, "mercadolivre": {},
	"com": {}, "para": {}, "de": {}, "da": {}, "do": {}, "na": {}, "no": {},
	"em": {}, "por": {}, "a": {}, "o": {},
}

// NormalizeTitle reduces a title to the words that identify the product.
// Accents are folded so "Promoção" and "promocao" match the same stop word.
func NormalizeTitle(title string) string {
	folded := strings.ToLower(stripAccents(title))

	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	kept := fields[:0]
	for _, word := range fields {
		if len([]rune(word)) < minWordLength {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " ")
}

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
