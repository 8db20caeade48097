package splitter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
)

// Signature is a set of patterns that identify one document type.
type Signature struct {
	Type     domain.DocumentType
	Patterns []*regexp.Regexp
}

// Catalog is an ordered list of signatures, most specific first. Ties in
// hit count go to the earlier entry.
type Catalog struct {
	signatures []Signature
}

func sig(t domain.DocumentType, patterns ...string) Signature {
	s := Signature{Type: t}
	for _, p := range patterns {
		s.Patterns = append(s.Patterns, regexp.MustCompile(`(?i)`+p))
	}
	return s
}

// DefaultCatalog returns the built-in real-estate document signatures.
func DefaultCatalog() *Catalog {
	return &Catalog{signatures: []Signature{
		sig(domain.DocClosingStatement, `\bclosing disclosure\b`, `\bsettlement statement\b`, `\bhud-1\b`, `\bclosing statement\b`, `\bcash to close\b`),
		sig(domain.DocPurchaseAgreement, `\bpurchase (and sale )?agreement\b`, `\bresidential (real estate )?purchase\b`, `\boffer to purchase\b`, `\bsales contract\b`, `\bcontract (for|to) (buy|purchase)\b`),
		sig(domain.DocListingAgreement, `\blisting agreement\b`, `\bexclusive right[ -]to[ -]sell\b`, `\blisting contract\b`, `\bexclusive agency\b`),
		sig(domain.DocCounterOffer, `\bcounter[ -]?offer\b`),
		sig(domain.DocAddendum, `\baddendum\b`, `\bamendment to\b`),
		sig(domain.DocInspectionReport, `\binspection report\b`, `\bhome inspection\b`, `\binspector\b`, `\bwood destroying\b`),
		sig(domain.DocAppraisal, `\bappraisal report\b`, `\bappraised value\b`, `\buniform residential appraisal\b`),
		sig(domain.DocTitle, `\btitle commitment\b`, `\btitle insurance\b`, `\bschedule b\b`, `\bpreliminary title\b`),
		sig(domain.DocLoanDocument, `\bloan estimate\b`, `\bpromissory note\b`, `\bdeed of trust\b`, `\bpre-?approval\b`, `\bmortgage\b`),
		sig(domain.DocDisclosure, `\bdisclosure\b`, `\blead-based paint\b`, `\bproperty condition\b`, `\bseller'?s statement\b`),
	}}
}

// Match is the outcome of a catalog lookup.
type Match struct {
	Type       domain.DocumentType
	Confidence float64
	Hits       int
}

// Identify scores text against every signature and returns the best type,
// or DocUnknown with zero confidence when nothing matches.
func (c *Catalog) Identify(text string) Match {
	best := Match{Type: domain.DocUnknown}
	for _, s := range c.signatures {
		hits := 0
		for _, p := range s.Patterns {
			if p.MatchString(text) {
				hits++
			}
		}
		if hits > best.Hits {
			best = Match{Type: s.Type, Hits: hits, Confidence: catalogConfidence(hits)}
		}
	}
	return best
}

// Signatures lists every type whose signature appears in text.
func (c *Catalog) Signatures(text string) []string {
	var out []string
	for _, s := range c.signatures {
		for _, p := range s.Patterns {
			if p.MatchString(text) {
				out = append(out, string(s.Type))
				break
			}
		}
	}
	return out
}

func catalogConfidence(hits int) float64 {
	c := 0.6 + 0.1*float64(hits-1)
	if c > 0.9 {
		c = 0.9
	}
	return c
}

// header returns the leading portion of a page, where titles live.
func header(text string, n int) string {
	text = strings.TrimSpace(text)
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}
