package splitter

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
)

// headerChars bounds how much of a page is searched for type signatures;
// body text often cites other document types.
const headerChars = 600

var (
	firstPagePattern = regexp.MustCompile(`(?i)\bpage\s+1\s+of\s+\d+\b`)
	titleKeyword     = regexp.MustCompile(`(?i)\b(agreement|disclosure|contract|addendum|amendment|report|statement|notice|commitment|estimate|offer)\b`)
	trailingKeyword  = regexp.MustCompile(`(?i)\b(agreement|disclosure|contract|addendum)\s*$`)
)

// startReason reports why a page looks like the first page of a new
// document, or "" when it does not. prevTitle is the previous page's first
// line, so a repeated running header is not mistaken for a title.
func startReason(text, prevTitle string) string {
	if firstPagePattern.MatchString(text) {
		return "explicit page 1 of N"
	}
	lines := firstLines(text, 3)
	if len(lines) == 0 {
		return ""
	}
	if lines[0] != prevTitle && isCapsTitle(lines[0]) {
		return "all-caps title line"
	}
	for _, l := range lines {
		if l != prevTitle && len(l) <= 80 && trailingKeyword.MatchString(l) {
			return "title line ends with a document keyword"
		}
	}
	return ""
}

// isCapsTitle reports whether a line is an upper-case document title: at
// least two words, every letter upper case, naming a document kind.
func isCapsTitle(line string) bool {
	if len(strings.Fields(line)) < 2 || len(line) > 100 {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return letters >= 6 && titleKeyword.MatchString(line)
}

// scanBoundaries is the deterministic boundary finder. It opens a boundary
// at page 1, whenever a page's signature differs from the running type, and
// whenever a page looks like a new document start. The last boundary always
// runs to the final page.
func (s *Splitter) scanBoundaries(pages []string) []domain.DocumentBoundary {
	n := len(pages)
	if n == 0 {
		return nil
	}

	var out []domain.DocumentBoundary
	cur := domain.DocumentBoundary{StartPage: 1, Type: domain.DocUnknown, Confidence: 0.4, Reasoning: "first page"}
	running := domain.DocUnknown
	prevTitle := ""

	for i, text := range pages {
		page := i + 1
		m := s.catalog.Identify(header(text, headerChars))

		if page > 1 {
			reason := ""
			if m.Type != domain.DocUnknown && running != domain.DocUnknown && m.Type != running {
				reason = "type signature changed to " + string(m.Type)
			} else if r := startReason(text, prevTitle); r != "" {
				reason = r
			}
			if reason != "" {
				cur.EndPage = page - 1
				out = append(out, cur)
				cur = domain.DocumentBoundary{StartPage: page, Type: domain.DocUnknown, Confidence: 0.4, Reasoning: reason}
				running = domain.DocUnknown
			}
		}

		if m.Type != domain.DocUnknown {
			if cur.Type == domain.DocUnknown {
				cur.Type = m.Type
				cur.Confidence = m.Confidence
			}
			running = m.Type
		}
		if lines := firstLines(text, 1); len(lines) > 0 {
			prevTitle = lines[0]
		} else {
			prevTitle = ""
		}
	}

	cur.EndPage = n
	return append(out, cur)
}
