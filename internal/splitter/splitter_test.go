package splitter

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/nickimizell/property-dashboard-sub000/internal/config"
	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/extraction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeParser serves page texts keyed by the attachment bytes. Range copies
// produced by fakePDF look like "<key>#<start>-<end>".
type fakeParser struct {
	name  extraction.Method
	files map[string][]string
	err   error
}

func (f *fakeParser) Name() extraction.Method { return f.name }
func (f *fakeParser) Supports(m string) bool  { return m == domain.MIMEPDF || m == domain.MIMEText }

func (f *fakeParser) Parse(ctx context.Context, data []byte, m string) ([]string, map[string]string, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	key := string(data)
	if m == domain.MIMEText {
		return []string{key}, nil, nil
	}
	if i := strings.Index(key, "#"); i >= 0 {
		var start, end int
		fmt.Sscanf(key[i+1:], "%d-%d", &start, &end)
		return f.files[key[:i]][start-1 : end], nil, nil
	}
	pages, ok := f.files[key]
	if !ok {
		return nil, nil, errors.New("unknown file")
	}
	return pages, nil, nil
}

type fakePDF struct {
	counts   map[string]int
	countErr error
	trimErr  error
	ranges   []string
}

func (p *fakePDF) PageCount(data []byte) (int, error) {
	if p.countErr != nil {
		return 0, p.countErr
	}
	return p.counts[string(data)], nil
}

func (p *fakePDF) ExtractRange(data []byte, start, end int) ([]byte, error) {
	if p.trimErr != nil {
		return nil, p.trimErr
	}
	r := fmt.Sprintf("%s#%d-%d", data, start, end)
	p.ranges = append(p.ranges, r)
	return []byte(r), nil
}

type fakeOracle struct {
	bounds    []domain.DocumentBoundary
	err       error
	docType   domain.DocumentType
	typeCalls int
	propCalls int
	summaries []domain.PageSummary
}

func (o *fakeOracle) ProposeBoundaries(ctx context.Context, s []domain.PageSummary, n int) ([]domain.DocumentBoundary, error) {
	o.propCalls++
	o.summaries = s
	return o.bounds, o.err
}

func (o *fakeOracle) IdentifyDocumentType(ctx context.Context, text string) (domain.DocumentType, float64, error) {
	o.typeCalls++
	if o.docType == "" {
		return domain.DocUnknown, 0, errors.New("oracle down")
	}
	return o.docType, 0.8, nil
}

// twelvePageBundle is a 3-page listing agreement followed by a 9-page
// disclosure packet.
func twelvePageBundle() []string {
	pages := []string{
		"EXCLUSIVE RIGHT TO SELL LISTING AGREEMENT\nThis agreement is made between the seller and broker.\nPage 1 of 3",
		"The broker shall market the property to qualified buyers.\nPage 2 of 3",
		"Signatures of the parties follow below.\nPage 3 of 3",
		"SELLER'S PROPERTY DISCLOSURE STATEMENT\nThe seller discloses the following.\nPage 1 of 9",
	}
	for i := 2; i <= 9; i++ {
		pages = append(pages, fmt.Sprintf("Item %d: roof, plumbing and foundation answers.\nPage %d of 9", i, i))
	}
	return pages
}

func newTestSplitter(files map[string][]string, pdf PDFTool, oracle Oracle, parsers ...extraction.Parser) *Splitter {
	if len(parsers) == 0 {
		parsers = []extraction.Parser{&fakeParser{name: extraction.MethodNative, files: files}}
	}
	ladder := extraction.NewLadder(1, time.Second, parsers...)
	return New(ladder, pdf, oracle, config.SplitterConfig{PageThreshold: 15, ProbePages: 3, UseOracle: oracle != nil})
}

func boundsOf(docs []domain.ExtractedDocument) []string {
	var out []string
	for _, d := range docs {
		out = append(out, fmt.Sprintf("%d-%d %s", d.PageStart, d.PageEnd, d.DocumentType))
	}
	return out
}

// =============================================================================
// Splitting
// =============================================================================

func TestTwelvePageBundleRuleScan(t *testing.T) {
	files := map[string][]string{"bundle": twelvePageBundle()}
	pdf := &fakePDF{counts: map[string]int{"bundle": 12}}
	s := newTestSplitter(files, pdf, nil)

	res := s.Extract(context.Background(), []byte("bundle"), domain.MIMEPDF, "seller_docs.pdf")

	assert.True(t, res.IsMultiDocument)
	assert.Equal(t, 12, res.PageCount)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, []string{"1-3 listing_agreement", "4-12 disclosure"}, boundsOf(res.Documents))
	assert.Equal(t, []string{"bundle#1-3", "bundle#4-12"}, pdf.ranges)

	first := res.Documents[0]
	assert.Equal(t, "seller_docs_p1-3.pdf", first.Filename)
	assert.Equal(t, "seller_docs.pdf", first.SourceFilename)
	assert.Equal(t, []byte("bundle#1-3"), first.Data)
	assert.NotEqual(t, first.ContentHash, res.Documents[1].ContentHash)
	assert.Contains(t, res.Diagnostics, "boundaries from rule scan")
}

func TestBundleTextReconstructsOriginal(t *testing.T) {
	pages := twelvePageBundle()
	files := map[string][]string{"bundle": pages}
	s := newTestSplitter(files, &fakePDF{counts: map[string]int{"bundle": 12}}, nil)

	res := s.Extract(context.Background(), []byte("bundle"), domain.MIMEPDF, "seller_docs.pdf")

	var parts []string
	for _, d := range res.Documents {
		parts = append(parts, d.Text)
	}
	assert.Equal(t, extraction.JoinPages(pages), extraction.JoinPages(parts))
}

func TestOracleProposalIsUsedAndRepaired(t *testing.T) {
	files := map[string][]string{"bundle": twelvePageBundle()}
	oracle := &fakeOracle{bounds: []domain.DocumentBoundary{
		{StartPage: 1, EndPage: 4, Type: domain.DocListingAgreement, Confidence: 0.9},
		{StartPage: 3, EndPage: 11, Type: domain.DocDisclosure, Confidence: 1.4},
	}}
	s := newTestSplitter(files, &fakePDF{counts: map[string]int{"bundle": 12}}, oracle)

	res := s.Extract(context.Background(), []byte("bundle"), domain.MIMEPDF, "seller_docs.pdf")

	assert.Equal(t, 1, oracle.propCalls)
	require.Len(t, oracle.summaries, 12)
	assert.Equal(t, []string{string(domain.DocListingAgreement)}, oracle.summaries[0].Signatures)
	assert.Equal(t, []string{"1-4 listing_agreement", "5-12 disclosure"}, boundsOf(res.Documents))
	assert.Equal(t, 1.0, res.Documents[1].Confidence)
	assert.Contains(t, res.Diagnostics, "boundaries proposed by oracle")
}

func TestOracleFailureFallsBackToRuleScan(t *testing.T) {
	files := map[string][]string{"bundle": twelvePageBundle()}
	for _, oracle := range []*fakeOracle{{err: errors.New("rate limited")}, {bounds: nil}} {
		s := newTestSplitter(files, &fakePDF{counts: map[string]int{"bundle": 12}}, oracle)
		res := s.Extract(context.Background(), []byte("bundle"), domain.MIMEPDF, "seller_docs.pdf")
		assert.Equal(t, []string{"1-3 listing_agreement", "4-12 disclosure"}, boundsOf(res.Documents))
	}
}

func TestSingleDocumentFastPath(t *testing.T) {
	files := map[string][]string{"offer": {
		"RESIDENTIAL PURCHASE AGREEMENT\nBuyer offers to purchase 12 Oak St.",
		"Terms continue here.",
	}}
	pdf := &fakePDF{counts: map[string]int{"offer": 2}}
	s := newTestSplitter(files, pdf, nil)

	res := s.Extract(context.Background(), []byte("offer"), domain.MIMEPDF, "offer.pdf")

	assert.False(t, res.IsMultiDocument)
	require.Len(t, res.Documents, 1)
	doc := res.Documents[0]
	assert.Equal(t, domain.DocPurchaseAgreement, doc.DocumentType)
	assert.Equal(t, "offer.pdf", doc.Filename)
	assert.Equal(t, 1, doc.PageStart)
	assert.Equal(t, 2, doc.PageEnd)
	assert.Equal(t, []byte("offer"), doc.Data)
	assert.Empty(t, pdf.ranges)
}

func TestStructuralFailureUsesTextPaging(t *testing.T) {
	joined := extraction.JoinPages(twelvePageBundle())
	files := map[string][]string{"locked": {joined}}
	pdf := &fakePDF{countErr: errors.New("encrypted")}
	s := newTestSplitter(files, pdf, nil)

	res := s.Extract(context.Background(), []byte("locked"), domain.MIMEPDF, "locked.pdf")

	assert.Equal(t, 12, res.PageCount)
	assert.Equal(t, []string{"1-3 listing_agreement", "4-12 disclosure"}, boundsOf(res.Documents))
	assert.Nil(t, res.Documents[0].Data)
	assert.Empty(t, pdf.ranges)
	assert.True(t, strings.HasPrefix(res.Diagnostics[0], "structural load failed"))
}

func TestRangeCopyFailureKeepsPageText(t *testing.T) {
	files := map[string][]string{"bundle": twelvePageBundle()}
	s := newTestSplitter(files, &fakePDF{counts: map[string]int{"bundle": 12}, trimErr: errors.New("bad xref")}, nil)

	res := s.Extract(context.Background(), []byte("bundle"), domain.MIMEPDF, "bundle.pdf")

	require.Len(t, res.Documents, 2)
	assert.Contains(t, res.Documents[0].Text, "LISTING AGREEMENT")
	assert.Nil(t, res.Documents[0].Data)
}

type panickyPDF struct{ fakePDF }

func (p *panickyPDF) ExtractRange(data []byte, start, end int) ([]byte, error) {
	panic("corrupt page tree")
}

func TestSplitPanicUsesAlternateExtractor(t *testing.T) {
	files := map[string][]string{"bundle": twelvePageBundle()}
	native := &fakeParser{name: extraction.MethodNative, files: files}
	alt := &fakeParser{name: extraction.MethodAlternate, files: map[string][]string{"bundle": {"Home inspection report for 9 Elm Rd"}}}
	pdf := &panickyPDF{fakePDF{counts: map[string]int{"bundle": 12}}}
	s := newTestSplitter(nil, pdf, nil, native, alt)

	res := s.Extract(context.Background(), []byte("bundle"), domain.MIMEPDF, "bundle.pdf")

	require.Len(t, res.Documents, 1)
	assert.False(t, res.IsMultiDocument)
	assert.Equal(t, string(extraction.MethodAlternate), res.Documents[0].ExtractionMethod)
	assert.Equal(t, domain.DocInspectionReport, res.Documents[0].DocumentType)
	assert.Contains(t, res.Diagnostics, "used alternate extractor for the whole document")
}

func TestEverythingFailsStillReturnsDocument(t *testing.T) {
	native := &fakeParser{name: extraction.MethodNative, err: errors.New("malformed")}
	s := newTestSplitter(nil, &fakePDF{countErr: errors.New("malformed")}, nil, native)

	res := s.Extract(context.Background(), []byte("junk"), domain.MIMEPDF, "junk.pdf")

	require.Len(t, res.Documents, 1)
	assert.Equal(t, domain.DocUnknown, res.Documents[0].DocumentType)
	assert.Equal(t, "", res.Documents[0].Text)
	assert.Contains(t, res.Diagnostics, "whole-document parse fallback")
}

func TestNonPDFIsSingleDocument(t *testing.T) {
	s := newTestSplitter(nil, &fakePDF{}, nil)
	res := s.Extract(context.Background(), []byte("Counter offer: buyer accepts at 410K"), domain.MIMEText, "note.txt")

	require.Len(t, res.Documents, 1)
	assert.Equal(t, domain.DocCounterOffer, res.Documents[0].DocumentType)
	assert.False(t, res.IsMultiDocument)
}

func TestIdentifyTypeEscalatesOnlyWithoutPattern(t *testing.T) {
	oracle := &fakeOracle{docType: domain.DocTitle}
	s := newTestSplitter(nil, &fakePDF{}, oracle)

	typ, conf := s.IdentifyType(context.Background(), "ADDENDUM No. 2 to the contract")
	assert.Equal(t, domain.DocAddendum, typ)
	assert.Equal(t, 0.6, conf)
	assert.Zero(t, oracle.typeCalls)

	typ, conf = s.IdentifyType(context.Background(), "Schedule of exceptions for the parcel")
	assert.Equal(t, domain.DocTitle, typ)
	assert.Equal(t, 0.8, conf)
	assert.Equal(t, 1, oracle.typeCalls)

	oracle.docType = ""
	typ, _ = s.IdentifyType(context.Background(), "Unrelated text")
	assert.Equal(t, domain.DocUnknown, typ)
}

// =============================================================================
// Detection and rule scan
// =============================================================================

func TestDetectTriggers(t *testing.T) {
	s := newTestSplitter(nil, nil, nil)
	plain := []string{"Some page", "Another page"}

	assert.False(t, s.detect("offer.pdf", plain, 2).Multi)
	assert.True(t, s.detect("DocuSign_Envelope.pdf", plain, 2).Multi)
	assert.True(t, s.detect("offer.pdf", plain, 40).Multi)
	assert.True(t, s.detect("offer.pdf", []string{"Page 1 of 2", "Page 1 of 5"}, 2).Multi)
	assert.True(t, s.detect("offer.pdf", []string{"LISTING AGREEMENT", "HOME INSPECTION REPORT"}, 2).Multi)
}

func TestScanIgnoresRunningHeaders(t *testing.T) {
	s := newTestSplitter(nil, nil, nil)
	pages := []string{
		"PROPERTY DISCLOSURE STATEMENT\nSection 1",
		"PROPERTY DISCLOSURE STATEMENT\nSection 2",
		"PROPERTY DISCLOSURE STATEMENT\nSection 3",
	}
	bounds := s.scanBoundaries(pages)
	require.Len(t, bounds, 1)
	assert.Equal(t, 3, bounds[0].EndPage)
}

func TestScanOpensOnExplicitFirstPage(t *testing.T) {
	s := newTestSplitter(nil, nil, nil)
	pages := []string{"intro text", "more text", "Page 1 of 2 other text", "tail"}
	bounds := s.scanBoundaries(pages)
	require.Len(t, bounds, 2)
	assert.Equal(t, 2, bounds[0].EndPage)
	assert.Equal(t, 3, bounds[1].StartPage)
	assert.Equal(t, "explicit page 1 of N", bounds[1].Reasoning)
}

// =============================================================================
// Boundary coverage
// =============================================================================

func TestRepairCases(t *testing.T) {
	b := func(s, e int) domain.DocumentBoundary { return domain.DocumentBoundary{StartPage: s, EndPage: e} }

	cases := []struct {
		name string
		in   []domain.DocumentBoundary
		n    int
		want [][2]int
	}{
		{"empty", nil, 5, [][2]int{{1, 5}}},
		{"gap at start", []domain.DocumentBoundary{b(3, 5)}, 5, [][2]int{{1, 5}}},
		{"interior gap", []domain.DocumentBoundary{b(1, 2), b(5, 6)}, 6, [][2]int{{1, 4}, {5, 6}}},
		{"overlap", []domain.DocumentBoundary{b(1, 4), b(3, 6)}, 6, [][2]int{{1, 4}, {5, 6}}},
		{"contained", []domain.DocumentBoundary{b(1, 6), b(2, 3)}, 6, [][2]int{{1, 6}}},
		{"out of range", []domain.DocumentBoundary{b(0, 2), b(3, 99), b(50, 60)}, 8, [][2]int{{1, 2}, {3, 8}}},
		{"unsorted short tail", []domain.DocumentBoundary{b(4, 5), b(1, 3)}, 9, [][2]int{{1, 3}, {4, 9}}},
		{"inverted dropped", []domain.DocumentBoundary{b(5, 2)}, 4, [][2]int{{1, 4}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := Repair(tc.in, tc.n)
			var got [][2]int
			for _, o := range out {
				got = append(got, [2]int{o.StartPage, o.EndPage})
			}
			assert.Equal(t, tc.want, got)
			assert.True(t, Covers(out, tc.n))
		})
	}
	assert.Nil(t, Repair([]domain.DocumentBoundary{b(1, 1)}, 0))
}

func TestRepairAlwaysPartitions(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 2000; iter++ {
		n := 1 + rng.Intn(40)
		var in []domain.DocumentBoundary
		for k := rng.Intn(6); k > 0; k-- {
			in = append(in, domain.DocumentBoundary{
				StartPage:  rng.Intn(n+4) - 2,
				EndPage:    rng.Intn(n+4) - 2,
				Confidence: rng.Float64()*2 - 0.5,
			})
		}
		out := Repair(in, n)
		require.True(t, Covers(out, n), "n=%d in=%v out=%v", n, in, out)
		for _, o := range out {
			require.GreaterOrEqual(t, o.Confidence, 0.0)
			require.LessOrEqual(t, o.Confidence, 1.0)
		}
	}
}

func TestScanAlwaysPartitions(t *testing.T) {
	s := newTestSplitter(nil, nil, nil)
	vocab := []string{"LISTING AGREEMENT", "Page 1 of 4", "lorem ipsum", "HOME INSPECTION REPORT", "", "Addendum", "ADDENDUM TO CONTRACT", "disclosure"}
	rng := rand.New(rand.NewSource(11))
	for iter := 0; iter < 500; iter++ {
		n := 1 + rng.Intn(25)
		pages := make([]string, n)
		for i := range pages {
			pages[i] = vocab[rng.Intn(len(vocab))] + "\n" + vocab[rng.Intn(len(vocab))]
		}
		require.True(t, Covers(s.scanBoundaries(pages), n))
	}
}
