// Package pipeline runs one inbound email through classification, document
// extraction, fact extraction, matching, persistence and action generation.
//
// Each email is a unit of work driven through a fixed sequence of states by
// a single dispatch function. Every state has a failure policy: a fatal
// step ends the unit as failed, a skippable step records a partial error on
// the record and the unit moves on to the next state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nickimizell/property-dashboard-sub000/internal/actions"
	"github.com/nickimizell/property-dashboard-sub000/internal/config"
	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/logger"
	"github.com/nickimizell/property-dashboard-sub000/internal/worker"
)

// State names a pipeline step.
type State string

const (
	StateCreateRecord     State = "create_record"
	StateClassify         State = "classify"
	StateExtractDocuments State = "extract_documents"
	StateExtractFacts     State = "extract_facts"
	StateMatch            State = "match"
	StateStoreDocuments   State = "store_documents"
	StateGenerateActions  State = "generate_actions"
	StateRespond          State = "respond"
	StateFinish           State = "finish"
	StateDone             State = "done"
)

// Policy is what a step failure means for the unit.
type Policy int

const (
	// Fatal ends the unit as failed.
	Fatal Policy = iota
	// Skippable records the error and continues with the next step.
	Skippable
)

type step struct {
	policy Policy
	next   State
	run    func(o *Orchestrator, ctx context.Context, u *unit) (halt bool, err error)
}

var steps = map[State]step{
	StateCreateRecord:     {Fatal, StateClassify, (*Orchestrator).createRecord},
	StateClassify:         {Skippable, StateExtractDocuments, (*Orchestrator).classify},
	StateExtractDocuments: {Skippable, StateExtractFacts, (*Orchestrator).extractDocuments},
	StateExtractFacts:     {Skippable, StateMatch, (*Orchestrator).extractFacts},
	StateMatch:            {Skippable, StateStoreDocuments, (*Orchestrator).match},
	StateStoreDocuments:   {Skippable, StateGenerateActions, (*Orchestrator).storeDocuments},
	StateGenerateActions:  {Skippable, StateRespond, (*Orchestrator).generateActions},
	StateRespond:          {Skippable, StateFinish, (*Orchestrator).respond},
	StateFinish:           {Skippable, StateDone, (*Orchestrator).finish},
}

// Deps are the collaborators of the orchestrator. Archive, Responder and
// Mail are optional.
type Deps struct {
	Records   RecordStore
	Documents DocumentStore
	Actions   ActionStore
	Archive   Archive
	Oracle    Oracle
	Extractor DocumentExtractor
	Matcher   Matcher
	Generator *actions.Generator
	Responder Responder
	Mail      ReadMarker
	Stats     *Stats
}

// Orchestrator processes emails. It is safe for concurrent use; each call
// to Process owns its unit of work.
type Orchestrator struct {
	deps Deps
	cfg  config.PipelineConfig
	now  func() time.Time
}

// NewOrchestrator creates an orchestrator. A nil Stats gets a private one.
func NewOrchestrator(deps Deps, cfg config.PipelineConfig) *Orchestrator {
	if deps.Stats == nil {
		deps.Stats = NewStats()
	}
	if deps.Generator == nil {
		deps.Generator = actions.NewGenerator()
	}
	if cfg.AttachmentWorkers <= 0 {
		cfg.AttachmentWorkers = 3
	}
	return &Orchestrator{deps: deps, cfg: cfg, now: time.Now}
}

// WithClock replaces the clock used for record timestamps.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Stats returns the counters the orchestrator updates.
func (o *Orchestrator) Stats() *Stats { return o.deps.Stats }

// Outcome summarizes one processed email.
type Outcome struct {
	RecordID  string              `json:"record_id,omitempty"`
	MessageID string              `json:"message_id"`
	Status    domain.RecordStatus `json:"status"`
	Duplicate bool                `json:"duplicate"`
	Match     *domain.MatchResult `json:"match,omitempty"`
	Documents int                 `json:"documents_stored"`
	Actions   domain.ActionCounts `json:"actions"`
	Errors    []string            `json:"errors,omitempty"`
	Steps     []State             `json:"steps"`
	Retry     bool                `json:"retry,omitempty"` // failed before the record existed
}

type unit struct {
	email          domain.InboundEmail
	rec            domain.ProcessingRecord
	created        bool
	duplicate      bool
	classification *domain.Classification
	docs           []domain.ExtractedDocument
	facts          domain.ExtractedFacts
	match          *domain.MatchResult
	counts         domain.ActionCounts
	trace          []State
	retry          bool
}

// Process runs one email through the pipeline. It never returns an error;
// failures are reported on the outcome and the record.
func (o *Orchestrator) Process(ctx context.Context, email domain.InboundEmail) Outcome {
	u := &unit{email: email}
	state := StateCreateRecord
	for state != StateDone {
		st := steps[state]
		u.trace = append(u.trace, state)

		halt, err := o.dispatch(ctx, state, st, u)
		if err != nil && st.policy == Fatal {
			o.fail(ctx, u, state, err)
			break
		}
		if err != nil {
			o.partial(u, state, err)
		}
		if u.created {
			o.persist(ctx, u)
		}
		if halt {
			break
		}
		state = st.next
	}
	return o.outcome(u)
}

// dispatch runs one step, converting a panic into an error.
func (o *Orchestrator) dispatch(ctx context.Context, state State, st step, u *unit) (halt bool, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			halt, err = false, fmt.Errorf("panic: %v", r)
		}
		logger.Debug("pipeline step",
			"step", string(state),
			"record_id", u.rec.ID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", errString(err))
	}()
	return st.run(o, ctx, u)
}

func (o *Orchestrator) partial(u *unit, state State, err error) {
	msg := fmt.Sprintf("%s: %v", state, err)
	u.rec.Errors = append(u.rec.Errors, msg)
	o.deps.Stats.errors.Add(1)
	logger.Warn("pipeline step failed, continuing",
		"step", string(state),
		"record_id", u.rec.ID,
		"email_id", u.email.ExternalID(),
		"error", err)
}

func (o *Orchestrator) fail(ctx context.Context, u *unit, state State, err error) {
	u.rec.Status = domain.StatusFailed
	u.rec.Errors = append(u.rec.Errors, fmt.Sprintf("%s: %v", state, err))
	o.deps.Stats.errors.Add(1)
	o.deps.Stats.failed.Add(1)
	logger.Error("pipeline unit failed",
		"step", string(state),
		"email_id", u.email.ExternalID(),
		"error", err)
	if u.created {
		o.persist(ctx, u)
		return
	}
	u.retry = true
}

func (o *Orchestrator) persist(ctx context.Context, u *unit) {
	u.rec.UpdatedAt = o.now()
	if err := o.deps.Records.Update(ctx, &u.rec); err != nil {
		u.rec.Errors = append(u.rec.Errors, "persist: "+err.Error())
		o.deps.Stats.errors.Add(1)
		logger.Error("failed to persist record", "record_id", u.rec.ID, "status", string(u.rec.Status), "error", err)
	}
}

func (o *Orchestrator) outcome(u *unit) Outcome {
	status := u.rec.Status
	if u.duplicate {
		status = ""
	}
	return Outcome{
		RecordID:  u.rec.ID,
		MessageID: u.email.ExternalID(),
		Status:    status,
		Duplicate: u.duplicate,
		Match:     u.match,
		Documents: u.rec.DocumentsStored,
		Actions:   u.counts,
		Errors:    u.rec.Errors,
		Steps:     u.trace,
		Retry:     u.retry,
	}
}

func (o *Orchestrator) createRecord(ctx context.Context, u *unit) (bool, error) {
	id := u.email.ExternalID()
	if id == "" {
		return false, errors.New("message has no external id")
	}
	now := o.now()
	u.rec = domain.ProcessingRecord{
		ID:         uuid.NewString(),
		MessageID:  id,
		Sender:     u.email.From,
		Recipients: u.email.To,
		Subject:    u.email.Subject,
		Body:       bodyText(u.email),
		Status:     domain.StatusReceived,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := o.deps.Records.Create(ctx, &u.rec)
	if errors.Is(err, ErrDuplicate) {
		u.duplicate = true
		o.deps.Stats.duplicates.Add(1)
		logger.Info("duplicate message skipped", "email_id", id)
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("create record: %w", err)
	}
	u.created = true
	return false, nil
}

func (o *Orchestrator) classify(ctx context.Context, u *unit) (bool, error) {
	c := o.deps.Oracle.Classify(ctx, u.email)
	u.classification = &c
	u.rec.IsPropertyRelated = c.IsPropertyRelated
	u.rec.ClassificationConfidence = c.Confidence
	u.rec.ClassificationMethod = c.Method
	u.rec.Status = domain.StatusClassified

	if !c.IsPropertyRelated {
		u.rec.Status = domain.StatusIgnored
		o.deps.Stats.ignored.Add(1)
		logger.Info("email ignored as unrelated",
			"record_id", u.rec.ID,
			"confidence", c.Confidence,
			"method", c.Method)
		return true, nil
	}
	return false, nil
}

func (o *Orchestrator) extractDocuments(ctx context.Context, u *unit) (bool, error) {
	var atts []domain.Attachment
	for _, a := range u.email.Attachments {
		if domain.IsDocumentMIME(a.MIMEType) && len(a.Data) > 0 {
			atts = append(atts, a)
		}
	}
	if len(atts) == 0 {
		return false, nil
	}

	results := worker.ProcessAll(ctx, atts, func(ctx context.Context, a domain.Attachment) ([]domain.ExtractedDocument, error) {
		res := o.deps.Extractor.Extract(ctx, a.Data, a.MIMEType, a.Filename)
		for _, d := range res.Diagnostics {
			logger.Debug("extraction diagnostic", "record_id", u.rec.ID, "filename", a.Filename, "diagnostic", d)
		}
		if len(res.Documents) == 0 {
			return nil, fmt.Errorf("%s: no documents extracted", a.Filename)
		}
		return res.Documents, nil
	}, worker.Options{Workers: o.cfg.AttachmentWorkers})

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		for _, d := range r.Output {
			d.RecordID = u.rec.ID
			if d.ID == "" {
				d.ID = uuid.NewString()
			}
			u.docs = append(u.docs, d)
		}
	}
	return false, errors.Join(errs...)
}

func (o *Orchestrator) extractFacts(ctx context.Context, u *unit) (bool, error) {
	u.facts = o.deps.Oracle.ExtractFacts(ctx, factsText(u))
	return false, nil
}

func (o *Orchestrator) match(ctx context.Context, u *unit) (bool, error) {
	// Flagged until a confident match says otherwise, so a failed match
	// step still leaves the record for review.
	u.rec.Status = domain.StatusManualReview
	u.rec.RequiresManualReview = true

	m := o.deps.Matcher.FindMatch(ctx, u.email, u.facts)
	u.match = m
	if m == nil {
		logger.Info("no property match", "record_id", u.rec.ID, "evidence", len(u.facts.Addresses)+len(u.facts.MLSNumbers)+len(u.facts.LoanNumbers))
		return false, nil
	}

	u.rec.MatchConfidence = m.Confidence
	u.rec.MatchMethod = string(m.Method)
	if !m.RequiresManualReview {
		id := m.Property.ID
		u.rec.PropertyID = &id
		u.rec.Status = domain.StatusMatched
		u.rec.RequiresManualReview = false
		o.deps.Stats.matchesFound.Add(1)
	}
	return false, nil
}

func (o *Orchestrator) storeDocuments(ctx context.Context, u *unit) (bool, error) {
	var errs []error
	for i := range u.docs {
		d := &u.docs[i]
		d.PropertyID = u.rec.PropertyID

		if o.deps.Archive != nil && len(d.Data) > 0 && d.ArchiveKey == "" {
			key, err := o.deps.Archive.Put(ctx, d.Data, d.MIMEType)
			if err != nil {
				errs = append(errs, fmt.Errorf("archive %s: %w", d.Filename, err))
			} else {
				d.ArchiveKey = key
			}
		}

		created, err := o.deps.Documents.StoreDocument(ctx, *d, u.rec.PropertyID)
		if err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", d.Filename, err))
			continue
		}
		if created {
			u.rec.DocumentsStored++
			o.deps.Stats.documentsStored.Add(1)
		}
	}
	return false, errors.Join(errs...)
}

func (o *Orchestrator) generateActions(ctx context.Context, u *unit) (bool, error) {
	set := o.deps.Generator.Generate(actions.Input{
		Record:    u.rec,
		Facts:     u.facts,
		Match:     u.match,
		Documents: u.docs,
	})
	counts, err := o.deps.Actions.SaveActions(ctx, set)
	if err != nil {
		return false, fmt.Errorf("save actions: %w", err)
	}
	u.counts = counts
	u.rec.TasksCreated = counts.Tasks
	u.rec.EventsCreated = counts.Events
	u.rec.NotesCreated = counts.Notes
	addNonNegative(&o.deps.Stats.tasksCreated, counts.Tasks)
	addNonNegative(&o.deps.Stats.eventsCreated, counts.Events)
	addNonNegative(&o.deps.Stats.notesCreated, counts.Notes)
	return false, nil
}

func (o *Orchestrator) respond(ctx context.Context, u *unit) (bool, error) {
	var errs []error
	if o.deps.Responder != nil {
		if err := o.deps.Responder.Respond(ctx, u.email, u.rec); err != nil {
			errs = append(errs, fmt.Errorf("respond: %w", err))
		}
	}
	if o.deps.Mail != nil {
		if err := o.deps.Mail.MarkRead(ctx, u.email.ExternalID()); err != nil {
			errs = append(errs, fmt.Errorf("mark read: %w", err))
		}
	}
	return false, errors.Join(errs...)
}

func (o *Orchestrator) finish(ctx context.Context, u *unit) (bool, error) {
	u.rec.Status = domain.StatusProcessed
	o.deps.Stats.emailsProcessed.Add(1)
	if u.rec.RequiresManualReview {
		o.deps.Stats.manualReviews.Add(1)
	}
	logger.Info("email processed",
		"record_id", u.rec.ID,
		"manual_review", u.rec.RequiresManualReview,
		"documents", u.rec.DocumentsStored,
		"tasks", u.rec.TasksCreated,
		"errors", len(u.rec.Errors))
	return false, nil
}

var (
	htmlTag   = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>|<[^>]+>`)
	blankRuns = regexp.MustCompile(`[ \t]+`)
)

// bodyText prefers the plain-text part and falls back to tag-stripped HTML.
func bodyText(e domain.InboundEmail) string {
	if strings.TrimSpace(e.Text) != "" {
		return e.Text
	}
	if e.HTML == "" {
		return ""
	}
	text := htmlTag.ReplaceAllString(e.HTML, " ")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&#39;", "'", "&quot;", `"`).Replace(text)
	return strings.TrimSpace(blankRuns.ReplaceAllString(text, " "))
}

func factsText(u *unit) string {
	var b strings.Builder
	b.WriteString(u.rec.Subject)
	b.WriteString("\n\n")
	b.WriteString(u.rec.Body)
	for _, d := range u.docs {
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\n--- %s (%s) ---\n%s", d.Filename, d.DocumentType, d.Text)
	}
	return b.String()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
