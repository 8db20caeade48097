package matching

import (
	"strings"
	"unicode"
)

var suffixCanon = map[string]string{
	"street": "st", "str": "st",
	"avenue": "ave", "av": "ave", "aven": "ave",
	"drive": "dr", "drv": "dr",
	"road": "rd",
	"lane": "ln",
	"court": "ct",
	"boulevard": "blvd", "boul": "blvd",
	"circle": "cir",
	"place": "pl",
	"terrace": "ter",
	"parkway": "pkwy", "pky": "pkwy",
	"highway": "hwy",
	"trail": "trl",
}

var directionalCanon = map[string]string{
	"north": "n", "south": "s", "east": "e", "west": "w",
	"northeast": "ne", "northwest": "nw", "southeast": "se", "southwest": "sw",
}

var unitMarkers = map[string]bool{
	"apt": true, "apartment": true, "unit": true, "suite": true, "ste": true, "#": true, "bldg": true,
}

// StreetLine returns the part of an address before the first comma, which
// drops city, state and zip.
func StreetLine(address string) string {
	if i := strings.IndexByte(address, ','); i >= 0 {
		return address[:i]
	}
	return address
}

// NormalizeAddress lower-cases an address, strips punctuation, collapses
// whitespace, canonicalizes suffixes and directionals, and drops unit
// designators with their value.
func NormalizeAddress(address string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(address) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '#':
			b.WriteString(" # ")
		default:
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	out := make([]string, 0, len(words))
	for i := 0; i < len(words); i++ {
		w := words[i]
		if unitMarkers[w] {
			i++
			continue
		}
		if c, ok := suffixCanon[w]; ok {
			w = c
		} else if c, ok := directionalCanon[w]; ok {
			w = c
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

// StreetNumber returns the leading house number of a normalized address,
// or "".
func StreetNumber(normalized string) string {
	first, _, _ := strings.Cut(normalized, " ")
	for _, r := range first {
		if !unicode.IsDigit(r) {
			return ""
		}
	}
	return first
}

// StreetNameTokens returns the distinctive words of a normalized address:
// no house number, suffix or directional, at least three letters.
func StreetNameTokens(normalized string) []string {
	var out []string
	for _, w := range strings.Fields(normalized) {
		if len(w) < 3 || isCanonSuffix(w) || isDirectional(w) {
			continue
		}
		if strings.IndexFunc(w, unicode.IsLetter) < 0 {
			continue
		}
		out = append(out, w)
	}
	return out
}

func isCanonSuffix(w string) bool {
	for _, c := range suffixCanon {
		if c == w {
			return true
		}
	}
	return w == "way"
}

func isDirectional(w string) bool {
	for _, c := range directionalCanon {
		if c == w {
			return true
		}
	}
	return false
}

// NormalizeName lower-cases a person name and collapses whitespace and
// punctuation.
func NormalizeName(name string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}), " ")
}
