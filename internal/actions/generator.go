// Package actions turns the facts recovered from one email into follow-up
// work: tasks, calendar events and notes. Every action carries the id of the
// record that produced it and a deterministic idempotency key, so
// reprocessing the same record yields the same keys and the store can
// discard the duplicates.
package actions

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/facts"
)

// Note and task categories.
const (
	CategoryPriceChange    = "price_change"
	CategoryStatusChange   = "status_change"
	CategoryFollowUp       = "follow_up"
	CategoryDocumentReview = "document_review"
	CategoryManualReview   = "manual_review"
	CategoryEmailSummary   = "email_summary"
)

// reviewable lists the document types that get a review task, with the
// task priority.
var reviewable = map[domain.DocumentType]string{
	domain.DocPurchaseAgreement: domain.PriorityHigh,
	domain.DocCounterOffer:      domain.PriorityHigh,
	domain.DocAddendum:          domain.PriorityMedium,
	domain.DocInspectionReport:  domain.PriorityMedium,
	domain.DocAppraisal:         domain.PriorityMedium,
}

// Input is everything the generator looks at for one record.
type Input struct {
	Record    domain.ProcessingRecord
	Facts     domain.ExtractedFacts
	Match     *domain.MatchResult
	Documents []domain.ExtractedDocument
}

// Generator builds action sets. It is stateless apart from its clock.
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a generator using the wall clock.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// WithClock replaces the clock used for relative due dates.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// IdempotencyKey derives the stable key of an action from the record id,
// the action kind and a discriminator naming the fact it came from.
func IdempotencyKey(recordID string, kind domain.ActionKind, discriminator string) string {
	sum := sha256.Sum256([]byte(recordID + "|" + string(kind) + "|" + discriminator))
	return hex.EncodeToString(sum[:])
}

// Generate builds the actions for one record. The result always holds at
// least the summary note.
func (g *Generator) Generate(in Input) domain.ActionSet {
	b := &builder{in: in, now: g.now()}
	if in.Match != nil && !in.Match.RequiresManualReview {
		id := in.Match.Property.ID
		b.propertyID = &id
	}

	for _, pc := range in.Facts.PriceChanges {
		b.priceChange(pc)
	}
	for _, sc := range in.Facts.StatusChanges {
		b.statusChange(sc)
	}
	for _, kd := range in.Facts.KeyDates {
		b.keyDate(kd)
	}
	for _, th := range in.Facts.Tasks {
		b.taskHint(th)
	}
	for _, d := range in.Documents {
		b.documentReview(d)
	}
	b.confirmProperty()
	b.summary()
	return b.set
}

type builder struct {
	in         Input
	now        time.Time
	propertyID *string
	set        domain.ActionSet
	seen       map[string]bool
}

func (b *builder) claim(kind domain.ActionKind, discriminator string) (string, bool) {
	key := IdempotencyKey(b.in.Record.ID, kind, discriminator)
	if b.seen == nil {
		b.seen = make(map[string]bool)
	}
	if b.seen[key] {
		return "", false
	}
	b.seen[key] = true
	return key, true
}

func (b *builder) addTask(discriminator string, t domain.Task) {
	key, ok := b.claim(domain.ActionTask, discriminator)
	if !ok {
		return
	}
	t.ID = uuid.NewString()
	t.RecordID = b.in.Record.ID
	t.PropertyID = b.propertyID
	t.IdempotencyKey = key
	b.set.Tasks = append(b.set.Tasks, t)
}

func (b *builder) addNote(discriminator string, n domain.Note) {
	key, ok := b.claim(domain.ActionNote, discriminator)
	if !ok {
		return
	}
	n.ID = uuid.NewString()
	n.RecordID = b.in.Record.ID
	n.PropertyID = b.propertyID
	n.IdempotencyKey = key
	b.set.Notes = append(b.set.Notes, n)
}

func (b *builder) addEvent(discriminator string, e domain.CalendarEvent) {
	key, ok := b.claim(domain.ActionEvent, discriminator)
	if !ok {
		return
	}
	e.ID = uuid.NewString()
	e.RecordID = b.in.Record.ID
	e.PropertyID = b.propertyID
	e.IdempotencyKey = key
	b.set.Events = append(b.set.Events, e)
}

func (b *builder) priceChange(pc domain.PriceChange) {
	if pc.Amount <= 0 {
		return
	}
	field := facts.PriceField(pc.Field)
	label := strings.ReplaceAll(field, "_", " ")
	amount := facts.FormatPrice(pc.Amount)
	disc := fmt.Sprintf("price:%s:%.2f", field, pc.Amount)

	due := b.now.Add(24 * time.Hour)
	b.addTask(disc, domain.Task{
		Title:       fmt.Sprintf("Update %s to %s", label, amount),
		Description: b.describe(fmt.Sprintf("Requested %s change to %s.", label, amount), pc.Raw),
		Category:    CategoryPriceChange,
		Priority:    domain.PriorityHigh,
		DueDate:     &due,
	})
	b.addNote(disc, domain.Note{
		Category: CategoryPriceChange,
		Content:  b.describe(fmt.Sprintf("Price change requested: %s to %s.", label, amount), pc.Raw),
	})
}

func (b *builder) statusChange(sc domain.StatusChange) {
	if sc.NewStatus == "" {
		return
	}
	disc := "status:" + string(sc.NewStatus)
	b.addTask(disc, domain.Task{
		Title:       fmt.Sprintf("Change status to %s", sc.NewStatus),
		Description: b.describe(fmt.Sprintf("Requested status change to %s.", sc.NewStatus), sc.Raw),
		Category:    CategoryStatusChange,
		Priority:    domain.PriorityHigh,
	})
	b.addNote(disc, domain.Note{
		Category: CategoryStatusChange,
		Content:  b.describe(fmt.Sprintf("Status change requested: %s.", sc.NewStatus), sc.Raw),
	})
}

func (b *builder) keyDate(kd domain.KeyDate) {
	if kd.Date.IsZero() {
		return
	}
	label := kd.Label
	if label == "" {
		label = "milestone"
	}
	eventType := strings.ReplaceAll(strings.ToLower(label), " ", "_")
	b.addEvent("date:"+eventType+":"+kd.Date.Format("2006-01-02"), domain.CalendarEvent{
		Title:       fmt.Sprintf("%s: %s", titleCase(label), b.subjectLine()),
		Description: b.describe("Date mentioned in correspondence.", kd.Raw),
		EventType:   eventType,
		StartsAt:    kd.Date,
		AllDay:      kd.Date.Hour() == 0 && kd.Date.Minute() == 0,
	})
}

func (b *builder) taskHint(th domain.TaskHint) {
	title := strings.TrimSpace(th.Title)
	if title == "" {
		return
	}
	b.addTask("hint:"+strings.ToLower(title), domain.Task{
		Title:       title,
		Description: th.Description,
		Category:    CategoryFollowUp,
		Priority:    normalizePriority(th.Priority),
		DueDate:     th.DueDate,
	})
}

func (b *builder) documentReview(d domain.ExtractedDocument) {
	priority, ok := reviewable[d.DocumentType]
	if !ok {
		return
	}
	ref := d.ContentHash
	if ref == "" {
		ref = d.Filename
	}
	kind := strings.ReplaceAll(string(d.DocumentType), "_", " ")
	b.addTask("review:"+ref, domain.Task{
		Title:       fmt.Sprintf("Review %s: %s", kind, d.Filename),
		Description: fmt.Sprintf("Received with %q. Pages %d-%d of %s.", b.in.Record.Subject, d.PageStart, d.PageEnd, d.SourceFilename),
		Category:    CategoryDocumentReview,
		Priority:    priority,
	})
}

// confirmProperty asks a person to link the email when matching found
// nothing or was not confident enough.
func (b *builder) confirmProperty() {
	m := b.in.Match
	switch {
	case m == nil:
		b.addTask("confirm", domain.Task{
			Title:       "Confirm property for email: " + b.subjectLine(),
			Description: "No property matched. Evidence searched: " + evidenceText(b.in.Facts),
			Category:    CategoryManualReview,
			Priority:    domain.PriorityHigh,
		})
	case m.RequiresManualReview:
		b.addTask("confirm", domain.Task{
			Title: fmt.Sprintf("Confirm property match: %s", m.Property.Address),
			Description: fmt.Sprintf("Matched by %s with confidence %.2f, below the auto-match threshold. Evidence: %s",
				m.Method, m.Confidence, strings.Join(m.Evidence, ", ")),
			Category: CategoryManualReview,
			Priority: domain.PriorityHigh,
		})
	}
}

func (b *builder) summary() {
	var parts []string
	if s := strings.TrimSpace(b.in.Facts.Summary); s != "" {
		parts = append(parts, s)
	} else {
		parts = append(parts, fmt.Sprintf("Email %q from %s.", b.in.Record.Subject, b.in.Record.Sender))
	}
	if m := b.in.Match; m != nil {
		parts = append(parts, fmt.Sprintf("Matched %s via %s (%.2f).", m.Property.Address, m.Method, m.Confidence))
	} else {
		parts = append(parts, "No property matched.")
	}
	if n := len(b.in.Documents); n > 0 {
		parts = append(parts, fmt.Sprintf("%d document(s) stored.", n))
	}
	if n := b.set.Len(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d follow-up action(s) generated.", n))
	}
	b.addNote("summary", domain.Note{
		Category: CategoryEmailSummary,
		Content:  strings.Join(parts, " "),
	})
}

func (b *builder) subjectLine() string {
	if s := strings.TrimSpace(b.in.Record.Subject); s != "" {
		return s
	}
	return "(no subject)"
}

func (b *builder) describe(what, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return what + " Source: " + b.subjectLine()
	}
	return fmt.Sprintf("%s Source: %s (%q)", what, b.subjectLine(), raw)
}

func evidenceText(f domain.ExtractedFacts) string {
	var parts []string
	add := func(label string, vals []string) {
		if len(vals) > 0 {
			parts = append(parts, label+" "+strings.Join(vals, "; "))
		}
	}
	add("addresses:", f.Addresses)
	add("MLS:", f.MLSNumbers)
	add("loans:", f.LoanNumbers)
	add("clients:", f.ClientNames)
	add("agents:", f.AgentNames)
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "high", "urgent", "critical":
		return domain.PriorityHigh
	case "low":
		return domain.PriorityLow
	default:
		return domain.PriorityMedium
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
