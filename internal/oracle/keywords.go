package oracle

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
)

// propertyKeywords are the domain terms counted by the keyword classifier.
var propertyKeywords = []string{
	"property", "listing", "escrow", "closing", "offer", "buyer", "seller",
	"mls", "appraisal", "inspection", "price", "contract", "addendum",
	"disclosure", "mortgage", "loan", "title", "realtor", "showing",
	"commission", "deed", "earnest", "counter", "open house", "under contract",
	"sq ft", "bedroom", "lender", "walkthrough",
}

var keywordPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(propertyKeywords))
	for i, k := range propertyKeywords {
		out[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(k) + `s?\b`)
	}
	return out
}()

const (
	keywordThreshold     = 3
	documentBonus        = 2
	keywordMaxConfidence = 0.6
)

// KeywordScore counts distinct domain keywords in the subject and body, plus
// a bonus when the email carries document attachments.
func KeywordScore(email domain.InboundEmail) (int, []string) {
	text := email.Subject + "\n" + email.Text
	if strings.TrimSpace(email.Text) == "" {
		text += "\n" + email.HTML
	}
	var hits []string
	for i, re := range keywordPatterns {
		if re.MatchString(text) {
			hits = append(hits, propertyKeywords[i])
		}
	}
	score := len(hits)
	if email.HasDocumentAttachments() {
		score += documentBonus
	}
	return score, hits
}

// KeywordClassify is the degraded-mode classifier used when the oracle
// cannot answer. Its confidence never exceeds keywordMaxConfidence.
func KeywordClassify(email domain.InboundEmail) domain.Classification {
	score, hits := KeywordScore(email)
	related := score >= keywordThreshold

	conf := 0.3 + 0.05*float64(score)
	if !related {
		conf = 0.5 - 0.1*float64(score)
	}
	if conf > keywordMaxConfidence {
		conf = keywordMaxConfidence
	}
	if conf < 0.1 {
		conf = 0.1
	}

	category := "other"
	if related {
		category = "property_correspondence"
	}
	return domain.Classification{
		IsPropertyRelated: related,
		Confidence:        conf,
		Category:          category,
		Reasoning:         fmt.Sprintf("keyword score %d (%s)", score, strings.Join(hits, ", ")),
		Method:            domain.ClassifiedByKeyword,
	}
}
