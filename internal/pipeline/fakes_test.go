package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/splitter"
)

type memRecords struct {
	mu        sync.Mutex
	byMessage map[string]domain.ProcessingRecord
	updates   int
	createErr error
	pingErr   error
}

func newMemRecords() *memRecords {
	return &memRecords{byMessage: make(map[string]domain.ProcessingRecord)}
}

func (m *memRecords) Create(ctx context.Context, rec *domain.ProcessingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.byMessage[rec.MessageID]; ok {
		return ErrDuplicate
	}
	m.byMessage[rec.MessageID] = *rec
	return nil
}

func (m *memRecords) Update(ctx context.Context, rec *domain.ProcessingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	m.byMessage[rec.MessageID] = *rec
	return nil
}

func (m *memRecords) Ping(ctx context.Context) error { return m.pingErr }

func (m *memRecords) get(messageID string) domain.ProcessingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byMessage[messageID]
}

func (m *memRecords) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byMessage)
}

type storedDoc struct {
	doc        domain.ExtractedDocument
	propertyID *string
}

type memDocuments struct {
	mu     sync.Mutex
	docs   map[string]storedDoc
	failOn string
}

func newMemDocuments() *memDocuments {
	return &memDocuments{docs: make(map[string]storedDoc)}
}

func (m *memDocuments) StoreDocument(ctx context.Context, doc domain.ExtractedDocument, propertyID *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.Filename == m.failOn {
		return false, errors.New("tx rolled back")
	}
	key := doc.RecordID + "|" + doc.ContentHash
	if _, ok := m.docs[key]; ok {
		return false, nil
	}
	m.docs[key] = storedDoc{doc: doc, propertyID: propertyID}
	return true, nil
}

func (m *memDocuments) all() []storedDoc {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storedDoc
	for _, d := range m.docs {
		out = append(out, d)
	}
	return out
}

type memActions struct {
	mu   sync.Mutex
	keys map[string]bool
	sets []domain.ActionSet
	err  error
}

func newMemActions() *memActions {
	return &memActions{keys: make(map[string]bool)}
}

func (m *memActions) SaveActions(ctx context.Context, set domain.ActionSet) (domain.ActionCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.ActionCounts{}, m.err
	}
	m.sets = append(m.sets, set)
	var c domain.ActionCounts
	claim := func(key string) bool {
		if m.keys[key] {
			return false
		}
		m.keys[key] = true
		return true
	}
	for _, t := range set.Tasks {
		if claim(t.IdempotencyKey) {
			c.Tasks++
		}
	}
	for _, e := range set.Events {
		if claim(e.IdempotencyKey) {
			c.Events++
		}
	}
	for _, n := range set.Notes {
		if claim(n.IdempotencyKey) {
			c.Notes++
		}
	}
	return c, nil
}

func (m *memActions) tasks() []domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Task
	for _, s := range m.sets {
		out = append(out, s.Tasks...)
	}
	return out
}

type fakeOracle struct {
	related   bool
	isRelated func(domain.InboundEmail) bool
	facts     domain.ExtractedFacts
	available bool
	pingErr   error

	mu        sync.Mutex
	factTexts []string
}

func (f *fakeOracle) Classify(ctx context.Context, email domain.InboundEmail) domain.Classification {
	related := f.related
	if f.isRelated != nil {
		related = f.isRelated(email)
	}
	return domain.Classification{IsPropertyRelated: related, Confidence: 0.9, Method: domain.ClassifiedByOracle}
}

func (f *fakeOracle) ExtractFacts(ctx context.Context, text string) domain.ExtractedFacts {
	f.mu.Lock()
	f.factTexts = append(f.factTexts, text)
	f.mu.Unlock()
	return f.facts
}

func (f *fakeOracle) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeOracle) Available() bool                { return f.available }

// fakeExtractor returns one document per entry in split, keyed by filename.
type fakeExtractor struct {
	split map[string][]domain.ExtractedDocument
}

func (f *fakeExtractor) Extract(ctx context.Context, data []byte, mimeType, filename string) splitter.Result {
	docs := f.split[filename]
	if docs == nil {
		docs = []domain.ExtractedDocument{{Filename: filename, MIMEType: mimeType, Text: string(data), ContentHash: "h-" + filename, Data: data}}
	}
	return splitter.Result{Documents: docs, Diagnostics: []string{"fake"}}
}

type fakeMatcher struct {
	result *domain.MatchResult
	panics bool
}

func (f *fakeMatcher) FindMatch(ctx context.Context, email domain.InboundEmail, facts domain.ExtractedFacts) *domain.MatchResult {
	if f.panics {
		panic("matcher exploded")
	}
	return f.result
}

type fakeResponder struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeResponder) Respond(ctx context.Context, email domain.InboundEmail, rec domain.ProcessingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

type fakeMail struct {
	mu   sync.Mutex
	read []string
}

func (f *fakeMail) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, id)
	return nil
}

func (f *fakeMail) readIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.read...)
}

type fakeArchive struct {
	mu   sync.Mutex
	puts int
	err  error
}

func (f *fakeArchive) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.puts++
	return "attachments/key", nil
}

// harness wires an orchestrator over in-memory collaborators.
type harness struct {
	records   *memRecords
	documents *memDocuments
	actions   *memActions
	oracle    *fakeOracle
	extractor *fakeExtractor
	matcher   *fakeMatcher
	responder *fakeResponder
	mail      *fakeMail
	archive   *fakeArchive
	stats     *Stats
}

func newHarness() *harness {
	return &harness{
		records:   newMemRecords(),
		documents: newMemDocuments(),
		actions:   newMemActions(),
		oracle:    &fakeOracle{related: true, available: true},
		extractor: &fakeExtractor{split: map[string][]domain.ExtractedDocument{}},
		matcher:   &fakeMatcher{},
		responder: &fakeResponder{},
		mail:      &fakeMail{},
		archive:   &fakeArchive{},
		stats:     NewStats(),
	}
}

func (h *harness) orchestrator() *Orchestrator {
	return NewOrchestrator(Deps{
		Records:   h.records,
		Documents: h.documents,
		Actions:   h.actions,
		Archive:   h.archive,
		Oracle:    h.oracle,
		Extractor: h.extractor,
		Matcher:   h.matcher,
		Responder: h.responder,
		Mail:      h.mail,
		Stats:     h.stats,
	}, testPipelineConfig())
}
