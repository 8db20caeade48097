package oracle

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
)

const maxPromptChars = 12000

const classifySystem = `You triage email for a real-estate brokerage back office.
Decide whether the email concerns a specific property transaction or listing
(offers, contracts, price or status changes, inspections, appraisals, closings,
loan or title work). Newsletters, marketing and personal mail are not.

Respond with JSON only:
{"is_property_related": true|false, "confidence": 0.0-1.0, "category": "offer|contract|price_change|status_change|scheduling|documents|financing|other", "reasoning": "one sentence"}`

const factsSystem = `You extract structured facts from real-estate correspondence.
Return JSON only, using empty arrays when nothing is found:
{
  "addresses": ["street address as written"],
  "mls_numbers": ["..."],
  "loan_numbers": ["..."],
  "client_names": ["seller or buyer names"],
  "agent_names": ["agent names"],
  "price_changes": [{"field": "listing_price|sales_price", "amount": 80000}],
  "status_changes": [{"new_status": "Active|Hold|Under Contract|Pending|Closed|Withdrawn"}],
  "key_dates": [{"label": "closing|inspection|appraisal|showing|...", "date": "YYYY-MM-DD"}],
  "tasks": [{"title": "...", "description": "...", "priority": "low|medium|high", "due_date": "YYYY-MM-DD or empty"}],
  "summary": "two sentences at most"
}
Amounts are plain numbers: "80K" is 80000, "$1.2M" is 1200000.`

const boundarySystem = `You split scanned real-estate PDF bundles into their component documents.
You receive one summary per page: page number, leading text, word count and
detected type signatures. Group consecutive pages into documents.
Known types: %s.

Return a JSON array only, covering every page exactly once in order:
[{"start_page": 1, "end_page": 3, "type": "listing_agreement", "confidence": 0.9, "reasoning": "..."}]`

const identifySystem = `You label a real-estate document by type.
Known types: %s.
Return JSON only: {"document_type": "...", "confidence": 0.0-1.0}`

func knownTypes() string {
	names := make([]string, len(domain.KnownDocumentTypes))
	for i, t := range domain.KnownDocumentTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// truncate shortens s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func classifyPrompt(email domain.InboundEmail) []Message {
	body := email.Text
	if strings.TrimSpace(body) == "" {
		body = email.HTML
	}
	var atts []string
	for _, a := range email.Attachments {
		atts = append(atts, fmt.Sprintf("%s (%s)", a.Filename, a.MIMEType))
	}
	user := fmt.Sprintf("From: %s\nSubject: %s\nAttachments: %s\n\n%s",
		email.From, email.Subject, strings.Join(atts, ", "), truncate(body, maxPromptChars))
	return []Message{
		{Role: RoleSystem, Content: classifySystem},
		{Role: RoleUser, Content: user},
	}
}

func factsPrompt(text string) []Message {
	return []Message{
		{Role: RoleSystem, Content: factsSystem},
		{Role: RoleUser, Content: truncate(text, maxPromptChars)},
	}
}

func boundaryPrompt(summaries []domain.PageSummary, pageCount int) []Message {
	var b strings.Builder
	fmt.Fprintf(&b, "The PDF has %d pages.\n\n", pageCount)
	for _, s := range summaries {
		fmt.Fprintf(&b, "Page %d (%d words, signatures: %s): %s\n",
			s.PageNumber, s.WordCount, strings.Join(s.Signatures, ","), s.Leading)
	}
	return []Message{
		{Role: RoleSystem, Content: fmt.Sprintf(boundarySystem, knownTypes())},
		{Role: RoleUser, Content: truncate(b.String(), maxPromptChars)},
	}
}

func identifyPrompt(text string) []Message {
	return []Message{
		{Role: RoleSystem, Content: fmt.Sprintf(identifySystem, knownTypes())},
		{Role: RoleUser, Content: truncate(text, 4000)},
	}
}
