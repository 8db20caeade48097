// Package splitter extracts attachments into one or more logical documents.
// PDFs that look like bundles are cut at page-range boundaries proposed by
// the oracle, or found by a deterministic scan when the oracle cannot help,
// and each range is materialized and re-extracted on its own.
package splitter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nickimizell/property-dashboard-sub000/internal/config"
	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/extraction"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/logger"
)

// Oracle is the subset of the classification gateway the splitter uses.
// A nil Oracle disables AI assistance.
type Oracle interface {
	ProposeBoundaries(ctx context.Context, summaries []domain.PageSummary, pageCount int) ([]domain.DocumentBoundary, error)
	IdentifyDocumentType(ctx context.Context, text string) (domain.DocumentType, float64, error)
}

// Result is the outcome of extracting one attachment.
type Result struct {
	Text            string                     `json:"text"`
	Documents       []domain.ExtractedDocument `json:"documents"`
	IsMultiDocument bool                       `json:"is_multi_document"`
	PageCount       int                        `json:"page_count"`
	Diagnostics     []string                   `json:"diagnostics,omitempty"`
}

func (r *Result) diag(format string, args ...interface{}) {
	r.Diagnostics = append(r.Diagnostics, fmt.Sprintf(format, args...))
}

// Splitter extracts attachments into documents.
type Splitter struct {
	ladder  *extraction.Ladder
	pdf     PDFTool
	oracle  Oracle
	catalog *Catalog
	cfg     config.SplitterConfig
}

// New creates a splitter. oracle may be nil.
func New(ladder *extraction.Ladder, pdf PDFTool, oracle Oracle, cfg config.SplitterConfig) *Splitter {
	if cfg.PageThreshold <= 0 {
		cfg.PageThreshold = 15
	}
	if cfg.ProbePages <= 0 {
		cfg.ProbePages = 3
	}
	return &Splitter{ladder: ladder, pdf: pdf, oracle: oracle, catalog: DefaultCatalog(), cfg: cfg}
}

// Extract turns one attachment into documents. It never fails: every
// structural problem degrades to a coarser result plus a diagnostic.
func (s *Splitter) Extract(ctx context.Context, data []byte, mimeType, filename string) Result {
	mimeType = extraction.NormalizeMIME(data, mimeType, filename)
	if !extraction.IsPDF(mimeType) {
		full := s.ladder.Extract(ctx, data, mimeType)
		res := Result{Text: full.Text, PageCount: full.PageCount, Diagnostics: full.Diagnostics}
		if full.Failure != "" {
			res.diag("extraction: %s", full.Failure)
		}
		res.Documents = []domain.ExtractedDocument{s.wholeDocument(ctx, data, filename, mimeType, full)}
		return res
	}

	var res Result
	full := s.ladder.Extract(ctx, data, mimeType)
	res.Diagnostics = append(res.Diagnostics, full.Diagnostics...)
	res.Text = full.Text

	pages := full.PageTexts()
	pageCount, structErr := s.pageCount(data)
	structural := structErr == nil
	if !structural {
		res.diag("structural load failed, paging from text separators: %v", structErr)
		if len(pages) <= 1 {
			pages = extraction.SplitPages(full.Text)
		}
		pageCount = len(pages)
	} else if len(pages) != pageCount && len(pages) > 0 {
		res.diag("extractor returned %d pages for a %d-page file", len(pages), pageCount)
	}
	res.PageCount = pageCount

	docs, err := s.split(ctx, data, filename, pages, pageCount, structural, full.Method, &res)
	if err == nil {
		res.Documents = docs
		return res
	}

	res.diag("split failed: %v", err)
	logger.Warn("document split failed, falling back", "filename", filename, "error", err)
	res.IsMultiDocument = false

	alt := s.ladder.Alternate().Extract(ctx, data, mimeType)
	if alt.OK() {
		res.diag("used alternate extractor for the whole document")
		res.Text = alt.Text
		res.Documents = []domain.ExtractedDocument{s.wholeDocument(ctx, data, filename, mimeType, alt)}
		return res
	}

	res.diag("whole-document parse fallback")
	if full.Failure != "" {
		res.diag("extraction: %s", full.Failure)
	}
	res.Documents = []domain.ExtractedDocument{s.wholeDocument(ctx, data, filename, mimeType, full)}
	return res
}

func (s *Splitter) pageCount(data []byte) (int, error) {
	if s.pdf == nil {
		return 0, fmt.Errorf("no structural pdf tool")
	}
	return s.pdf.PageCount(data)
}

// split runs detection, boundary identification and materialization. A panic
// anywhere inside becomes an error for the fallback ladder.
func (s *Splitter) split(ctx context.Context, data []byte, filename string, pages []string, pageCount int, structural bool, method extraction.Method, res *Result) (docs []domain.ExtractedDocument, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if len(pages) == 0 || strings.TrimSpace(extraction.JoinPages(pages)) == "" {
		return nil, fmt.Errorf("no page text available")
	}

	det := s.detect(filename, pages, pageCount)
	if !det.Multi {
		doc := s.rangeDocument(ctx, data, filename, pages, domain.DocumentBoundary{
			StartPage: 1, EndPage: len(pages), Type: domain.DocUnknown,
		}, method, false, false)
		return []domain.ExtractedDocument{doc}, nil
	}

	res.IsMultiDocument = true
	for _, r := range det.Reasons {
		res.diag("multi-document: %s", r)
	}

	bounds := s.boundaries(ctx, pages, res)
	bounds = Repair(bounds, len(pages))
	if !Covers(bounds, len(pages)) {
		return nil, fmt.Errorf("boundary repair left gaps")
	}
	if len(bounds) == 1 {
		res.IsMultiDocument = false
	}

	docs = make([]domain.ExtractedDocument, 0, len(bounds))
	for _, b := range bounds {
		docs = append(docs, s.rangeDocument(ctx, data, filename, pages, b, method, structural, len(bounds) > 1))
	}
	return docs, nil
}

// boundaries asks the oracle for a proposal and falls back to the rule scan
// when the oracle is missing, failing or returns nothing usable.
func (s *Splitter) boundaries(ctx context.Context, pages []string, res *Result) []domain.DocumentBoundary {
	if s.oracle != nil && s.cfg.UseOracle {
		proposed, err := s.oracle.ProposeBoundaries(ctx, s.summaries(pages), len(pages))
		switch {
		case err != nil:
			res.diag("oracle boundary proposal failed: %v", err)
		case len(proposed) == 0:
			res.diag("oracle proposed no boundaries")
		default:
			res.diag("boundaries proposed by oracle")
			return proposed
		}
	}
	res.diag("boundaries from rule scan")
	return s.scanBoundaries(pages)
}

// summaries builds the per-page view sent to the oracle.
func (s *Splitter) summaries(pages []string) []domain.PageSummary {
	out := make([]domain.PageSummary, len(pages))
	for i, text := range pages {
		out[i] = domain.PageSummary{
			PageNumber: i + 1,
			Leading:    strings.Join(strings.Fields(header(text, 300)), " "),
			WordCount:  len(strings.Fields(text)),
			Signatures: s.catalog.Signatures(header(text, headerChars)),
		}
	}
	return out
}

// rangeDocument materializes one boundary. When the file is one of several
// ranges and loads structurally, the range is copied into its own PDF and
// re-extracted; otherwise the page texts are joined.
func (s *Splitter) rangeDocument(ctx context.Context, data []byte, filename string, pages []string, b domain.DocumentBoundary, method extraction.Method, structural, multi bool) domain.ExtractedDocument {
	text := extraction.JoinPages(pages[b.StartPage-1 : b.EndPage])
	var body []byte

	if structural && multi {
		sub, err := s.pdf.ExtractRange(data, b.StartPage, b.EndPage)
		if err != nil {
			logger.Warn("page range copy failed, using page text", "filename", filename,
				"start", b.StartPage, "end", b.EndPage, "error", err)
		} else {
			body = sub
			if re := s.ladder.Extract(ctx, sub, domain.MIMEPDF); re.OK() && strings.TrimSpace(re.Text) != "" {
				text = re.Text
				method = re.Method
			}
		}
	} else if !multi {
		body = data
	}

	doc := domain.ExtractedDocument{
		Filename:         rangeFilename(filename, b, len(pages), multi),
		SourceFilename:   filename,
		MIMEType:         domain.MIMEPDF,
		Text:             text,
		DocumentType:     b.Type,
		Confidence:       b.Confidence,
		PageStart:        b.StartPage,
		PageEnd:          b.EndPage,
		ExtractionMethod: string(method),
		Data:             body,
	}
	if doc.DocumentType == domain.DocUnknown || doc.DocumentType == "" {
		doc.DocumentType, doc.Confidence = s.IdentifyType(ctx, text)
	}
	doc.ContentHash = contentHash(body, text)
	return doc
}

// wholeDocument wraps a single extraction result as one document.
func (s *Splitter) wholeDocument(ctx context.Context, data []byte, filename, mimeType string, full extraction.Result) domain.ExtractedDocument {
	t, conf := s.IdentifyType(ctx, full.Text)
	end := full.PageCount
	if end == 0 {
		end = 1
	}
	return domain.ExtractedDocument{
		Filename:         filename,
		SourceFilename:   filename,
		MIMEType:         mimeType,
		Text:             full.Text,
		DocumentType:     t,
		Confidence:       conf * full.Confidence,
		PageStart:        1,
		PageEnd:          end,
		ExtractionMethod: string(full.Method),
		ContentHash:      contentHash(data, full.Text),
		Data:             data,
	}
}

// IdentifyType labels text: catalog patterns first, the oracle only when no
// pattern matches.
func (s *Splitter) IdentifyType(ctx context.Context, text string) (domain.DocumentType, float64) {
	if strings.TrimSpace(text) == "" {
		return domain.DocUnknown, 0
	}
	if m := s.catalog.Identify(header(text, 2*headerChars)); m.Type != domain.DocUnknown {
		return m.Type, m.Confidence
	}
	if s.oracle != nil {
		t, conf, err := s.oracle.IdentifyDocumentType(ctx, header(text, 4000))
		if err == nil && t != domain.DocUnknown {
			return t, clamp01(conf)
		}
		if err != nil {
			logger.Debug("oracle type identification failed", "error", err)
		}
	}
	return domain.DocUnknown, 0.3
}

func rangeFilename(filename string, b domain.DocumentBoundary, pages int, split bool) string {
	if !split || (b.StartPage == 1 && b.EndPage == pages) {
		return filename
	}
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	if ext == "" {
		ext = ".pdf"
	}
	return fmt.Sprintf("%s_p%d-%d%s", base, b.StartPage, b.EndPage, ext)
}

// contentHash prefers the document bytes and falls back to its text.
func contentHash(data []byte, text string) string {
	h := sha256.New()
	if len(data) > 0 {
		h.Write(data)
	} else {
		h.Write([]byte(text))
	}
	return hex.EncodeToString(h.Sum(nil))
}
