// Package facts recovers structured evidence from correspondence text
// without the oracle: identifiers, street addresses, price and status
// changes and dated milestones. It is the last rung of every facts ladder.
package facts

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var priceMultipliers = []struct {
	suffix string
	factor float64
}{
	{"million", 1e6},
	{"thousand", 1e3},
	{"mil", 1e6},
	{"mm", 1e6},
	{"m", 1e6},
	{"k", 1e3},
}

// ParsePrice converts a human price such as "80K", "$1.2M", "425,000" or
// "$80 thousand" into dollars. It reports false for anything that is not a
// positive amount.
func ParsePrice(s string) (float64, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "usd")
	v = strings.ReplaceAll(v, "$", "")
	v = strings.ReplaceAll(v, ",", "")
	v = strings.TrimSpace(strings.TrimSuffix(v, "."))
	if v == "" {
		return 0, false
	}

	factor := 1.0
	for _, m := range priceMultipliers {
		if strings.HasSuffix(v, m.suffix) {
			factor = m.factor
			v = strings.TrimSpace(strings.TrimSuffix(v, m.suffix))
			break
		}
	}

	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n <= 0 || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return math.Round(n*factor*100) / 100, true
}

// FormatPrice renders dollars as "$80,000" (cents only when present).
func FormatPrice(v float64) string {
	whole := int64(v)
	cents := int64(math.Round((v - float64(whole)) * 100))
	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if cents > 0 {
		return fmt.Sprintf("$%s.%02d", b.String(), cents)
	}
	return "$" + b.String()
}

// Amount is a price that decodes from either a JSON number or a human
// string like "80K".
type Amount float64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*a = Amount(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if s == "" {
		*a = 0
		return nil
	}
	v, ok := ParsePrice(s)
	if !ok {
		return fmt.Errorf("amount: cannot parse %q", s)
	}
	*a = Amount(v)
	return nil
}

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
