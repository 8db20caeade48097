package facts

import (
	"regexp"
	"strings"
	"time"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
)

// SourceHeuristic tags facts produced by Extract.
const SourceHeuristic = "heuristic"

// Shortest digit runs accepted as identifiers. Matching applies the same
// minimums so nothing extracted is silently dropped later.
const (
	MinMLSDigits  = 4
	MinLoanDigits = 3
)

var (
	mlsPattern  = regexp.MustCompile(`(?i)\bMLS\s*(?:#|no\.?|num(?:ber)?)?\s*[:#]?\s*([0-9][0-9\- ]{2,14}[0-9])`)
	loanPattern = regexp.MustCompile(`(?i)\b(?:LN-\s*([0-9][0-9\-]{2,})|loan\s*(?:#|no\.?|num(?:ber)?)\s*[:#]?\s*([A-Z]{0,3}-?[0-9][0-9\-]{2,}))`)

	streetSuffixes = `Street|St|Avenue|Ave|Drive|Dr|Road|Rd|Lane|Ln|Court|Ct|Boulevard|Blvd|Circle|Cir|Place|Pl|Terrace|Ter|Parkway|Pkwy|Way|Trail|Trl|Highway|Hwy`
	addressPattern = regexp.MustCompile(`(?i)\b(\d{1,6})\s+((?:[NSEW]\.?\s+)?(?:[A-Za-z0-9']+\s+){0,3}?(?:` + streetSuffixes + `))\b\.?`)
	// A capitalized street name with a suffix but no house number ("Earl Drive").
	streetNamePattern = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s[A-Z][a-z]+)?)\s(` + streetSuffixes + `)\b`)

	priceAmount        = `\$?\s*([0-9][0-9.,]*\s*(?:k|m|mm|mil|million|thousand)?)\b`
	priceChangePattern = regexp.MustCompile(`(?i)\b(?:change|reduce|lower|raise|increase|drop|adjust|update|set|bring|cut|move)\s+(?:the\s+)?(?:(list(?:ing)?|sales?|asking)\s+)?price\s+(?:to|at|down\s+to|up\s+to)\s+` + priceAmount)
	newPricePattern    = regexp.MustCompile(`(?i)\b(?:new|reduced|updated)\s+(?:(list(?:ing)?|sales?|asking)\s+)?price\s*(?:is|of|:|will\s+be|=)?\s*` + priceAmount)
	priceReducedTo     = regexp.MustCompile(`(?i)\bprice\s+(?:reduction|reduced|change|drop|increase)\s+to\s+` + priceAmount)

	statusPattern = regexp.MustCompile(`(?i)\b(?:status\s+(?:to|is(?:\s+now)?|changed\s+to|:)|(?:put|place|placed|move|moved|mark|marked|change|changed|set)\s+(?:[\w']+\s+){0,3}?(?:to|on|as|under|into|back\s+to)|is\s+now|went|going)\s+(active|on\s+hold|hold|under\s+contract|pending|closed|withdrawn)\b`)

	datePattern = regexp.MustCompile(`(?i)\b(closing|close of escrow|inspection|appraisal|showing|walk-?through|open house|contingency|deadline|final walk)\b[^.\n]{0,40}?\b(\d{1,2}/\d{1,2}/\d{2,4}|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s*\d{4})?)`)
)

var statusWords = map[string]domain.PropertyStatus{
	"active":         domain.PropertyActive,
	"hold":           domain.PropertyHold,
	"on hold":        domain.PropertyHold,
	"under contract": domain.PropertyUnderContract,
	"pending":        domain.PropertyPending,
	"closed":         domain.PropertyClosed,
	"withdrawn":      domain.PropertyWithdrawn,
}

// ParseStatus maps a free-form status phrase onto a property status.
func ParseStatus(s string) (domain.PropertyStatus, bool) {
	key := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	st, ok := statusWords[key]
	return st, ok
}

// Extract scans text for hard identifiers and change requests. ref anchors
// dates that omit the year.
func Extract(text string, ref time.Time) domain.ExtractedFacts {
	f := domain.ExtractedFacts{Source: SourceHeuristic}

	for _, m := range mlsPattern.FindAllStringSubmatch(text, -1) {
		if d := DigitsOnly(m[1]); len(d) >= MinMLSDigits {
			f.MLSNumbers = appendUnique(f.MLSNumbers, d)
		}
	}
	for _, m := range loanPattern.FindAllStringSubmatch(text, -1) {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if d := DigitsOnly(raw); len(d) >= MinLoanDigits {
			f.LoanNumbers = appendUnique(f.LoanNumbers, d)
		}
	}

	for _, m := range addressPattern.FindAllStringSubmatch(text, -1) {
		f.Addresses = appendUnique(f.Addresses, strings.Join(strings.Fields(m[1]+" "+m[2]), " "))
	}
	if len(f.Addresses) == 0 {
		for _, m := range streetNamePattern.FindAllStringSubmatch(text, -1) {
			f.Addresses = appendUnique(f.Addresses, m[1]+" "+m[2])
		}
	}

	f.PriceChanges = extractPriceChanges(text)

	for _, m := range statusPattern.FindAllStringSubmatch(text, -1) {
		if st, ok := ParseStatus(m[1]); ok && !hasStatus(f.StatusChanges, st) {
			f.StatusChanges = append(f.StatusChanges, domain.StatusChange{NewStatus: st, Raw: strings.TrimSpace(m[0])})
		}
	}

	for _, m := range datePattern.FindAllStringSubmatch(text, -1) {
		if d, ok := ParseDate(m[2], ref); ok {
			f.KeyDates = append(f.KeyDates, domain.KeyDate{
				Label: strings.ToLower(m[1]),
				Date:  d,
				Raw:   strings.TrimSpace(m[0]),
			})
		}
	}
	return f
}

func extractPriceChanges(text string) []domain.PriceChange {
	var out []domain.PriceChange
	seen := map[float64]bool{}
	for _, re := range []*regexp.Regexp{priceChangePattern, newPricePattern, priceReducedTo} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			field, amount := "", m[len(m)-1]
			if len(m) == 3 {
				field = m[1]
			}
			v, ok := ParsePrice(amount)
			if !ok || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, domain.PriceChange{
				Field:  PriceField(field),
				Amount: v,
				Raw:    strings.TrimSpace(m[0]),
			})
		}
	}
	return out
}

// PriceField maps a price qualifier ("sales", "list", "") onto the property
// field it changes.
func PriceField(qualifier string) string {
	if q := strings.ToLower(strings.TrimSpace(qualifier)); strings.HasPrefix(q, "sale") {
		return "sales_price"
	}
	return "listing_price"
}

var dateLayouts = []string{
	"2006-01-02", "1/2/2006", "01/02/2006", "1/2/06", "01/02/06",
	"January 2, 2006", "January 2 2006", "Jan 2, 2006", "Jan 2 2006", "Jan. 2, 2006",
	"January 2", "Jan 2", "Jan. 2",
}

var ordinalSuffix = regexp.MustCompile(`(\d)(st|nd|rd|th)\b`)

// ParseDate understands numeric and month-name dates. Dates without a year
// take ref's year, rolling forward when that lands more than 30 days before ref.
func ParseDate(s string, ref time.Time) (time.Time, bool) {
	s = strings.TrimSpace(ordinalSuffix.ReplaceAllString(s, "$1"))
	if lower := strings.ToLower(s); strings.HasPrefix(lower, "sept") && !strings.HasPrefix(lower, "september") {
		s = "Sep" + s[4:]
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() == 0 {
			t = t.AddDate(ref.Year(), 0, 0)
			if !ref.IsZero() && t.Before(ref.AddDate(0, 0, -30)) {
				t = t.AddDate(1, 0, 0)
			}
		}
		return t, true
	}
	return time.Time{}, false
}

// Merge unions two fact sets, keeping a's order and dropping duplicates.
func Merge(a, b domain.ExtractedFacts) domain.ExtractedFacts {
	out := a
	for _, v := range b.Addresses {
		out.Addresses = appendUnique(out.Addresses, v)
	}
	for _, v := range b.MLSNumbers {
		out.MLSNumbers = appendUnique(out.MLSNumbers, v)
	}
	for _, v := range b.LoanNumbers {
		out.LoanNumbers = appendUnique(out.LoanNumbers, v)
	}
	for _, v := range b.ClientNames {
		out.ClientNames = appendUnique(out.ClientNames, v)
	}
	for _, v := range b.AgentNames {
		out.AgentNames = appendUnique(out.AgentNames, v)
	}
	for _, pc := range b.PriceChanges {
		if !hasPrice(out.PriceChanges, pc.Amount) {
			out.PriceChanges = append(out.PriceChanges, pc)
		}
	}
	for _, sc := range b.StatusChanges {
		if !hasStatus(out.StatusChanges, sc.NewStatus) {
			out.StatusChanges = append(out.StatusChanges, sc)
		}
	}
	for _, kd := range b.KeyDates {
		if !hasDate(out.KeyDates, kd) {
			out.KeyDates = append(out.KeyDates, kd)
		}
	}
	out.Tasks = append(out.Tasks, b.Tasks...)
	if out.Summary == "" {
		out.Summary = b.Summary
	}
	if out.Source == "" {
		out.Source = b.Source
	}
	return out
}

func appendUnique(list []string, v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return list
	}
	for _, existing := range list {
		if strings.EqualFold(existing, v) {
			return list
		}
	}
	return append(list, v)
}

func hasPrice(list []domain.PriceChange, amount float64) bool {
	for _, p := range list {
		if p.Amount == amount {
			return true
		}
	}
	return false
}

func hasStatus(list []domain.StatusChange, st domain.PropertyStatus) bool {
	for _, s := range list {
		if s.NewStatus == st {
			return true
		}
	}
	return false
}

func hasDate(list []domain.KeyDate, kd domain.KeyDate) bool {
	for _, d := range list {
		if d.Label == kd.Label && d.Date.Equal(kd.Date) {
			return true
		}
	}
	return false
}
