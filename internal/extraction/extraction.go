// Package extraction turns attachment bytes into text through a ladder of
// strategies: a native in-process parser, an alternate out-of-process
// parser, and OCR. Extraction never fails loudly; a Result always comes
// back, carrying a Failure reason when no rung produced text.
package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nickimizell/property-dashboard-sub000/internal/config"
	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/logger"
)

// Method names the rung that produced a result.
type Method string

const (
	MethodNative    Method = "native"
	MethodAlternate Method = "alternate"
	MethodOCR       Method = "ocr"
	MethodNone      Method = "none"
)

var methodConfidence = map[Method]float64{
	MethodNative:    0.95,
	MethodAlternate: 0.85,
	MethodOCR:       0.6,
	MethodNone:      0,
}

// Page is the text of one 1-based page.
type Page struct {
	Number int    `json:"page_number"`
	Text   string `json:"text"`
}

// Result is the outcome of an extraction.
type Result struct {
	Text        string            `json:"text"`
	Pages       []Page            `json:"pages"`
	PageCount   int               `json:"page_count"`
	MIMEType    string            `json:"mime_type"`
	Method      Method            `json:"method"`
	Confidence  float64           `json:"confidence"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Failure     string            `json:"failure,omitempty"`
	Diagnostics []string          `json:"diagnostics,omitempty"`
}

// OK reports whether some rung produced text.
func (r Result) OK() bool {
	return r.Failure == "" && r.Method != MethodNone
}

// PageTexts returns the text of each page in order.
func (r Result) PageTexts() []string {
	out := make([]string, len(r.Pages))
	for i, p := range r.Pages {
		out[i] = p.Text
	}
	return out
}

// Extractor is the extraction capability: bytes plus MIME type in, text out.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) Result
}

// Parser is one rung of the ladder. It returns per-page text.
type Parser interface {
	Name() Method
	Supports(mimeType string) bool
	Parse(ctx context.Context, data []byte, mimeType string) ([]string, map[string]string, error)
}

// Ladder tries each parser in order until one yields enough text.
type Ladder struct {
	parsers      []Parser
	minTextChars int
	timeout      time.Duration
}

// NewLadder builds a ladder. Parsers run in the given order.
func NewLadder(minTextChars int, timeout time.Duration, parsers ...Parser) *Ladder {
	ps := append([]Parser(nil), parsers...)
	if minTextChars <= 0 {
		minTextChars = 20
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Ladder{parsers: ps, minTextChars: minTextChars, timeout: timeout}
}

// Extract runs the ladder. A rung that errors, times out or under-delivers
// falls through to the next; the longest partial result is kept in case
// every rung under-delivers.
func (l *Ladder) Extract(ctx context.Context, data []byte, mimeType string) Result {
	mimeType = NormalizeMIME(data, mimeType, "")
	if len(data) == 0 {
		return Result{MIMEType: mimeType, Method: MethodNone, Failure: "empty input"}
	}

	var best Result
	var diags []string
	tried := 0
	for _, p := range l.parsers {
		if !p.Supports(mimeType) {
			continue
		}
		tried++

		pages, meta, err := l.runParser(ctx, p, data, mimeType)
		if err != nil {
			diags = append(diags, fmt.Sprintf("%s: %v", p.Name(), err))
			logger.Debug("extraction rung failed", "method", string(p.Name()), "mime", mimeType, "error", err)
			continue
		}

		res := newResult(p.Name(), mimeType, pages, meta)
		chars := len(strings.TrimSpace(res.Text))
		if chars >= l.minTextChars {
			res.Diagnostics = diags
			return res
		}
		diags = append(diags, fmt.Sprintf("%s: only %d characters", p.Name(), chars))
		if chars > len(strings.TrimSpace(best.Text)) {
			best = res
		}
	}

	if best.Text != "" {
		best.Diagnostics = diags
		best.Confidence *= 0.5
		return best
	}
	failure := "no extraction method produced text"
	if tried == 0 {
		failure = "unsupported mime type " + mimeType
	}
	return Result{MIMEType: mimeType, Method: MethodNone, Failure: failure, Diagnostics: diags}
}

// runParser bounds the rung with the ladder timeout and turns a parser
// panic into an error.
func (l *Ladder) runParser(ctx context.Context, p Parser, data []byte, mimeType string) (pages []string, meta map[string]string, err error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()
	return p.Parse(ctx, data, mimeType)
}

func newResult(m Method, mimeType string, pages []string, meta map[string]string) Result {
	res := Result{
		MIMEType:   mimeType,
		Method:     m,
		Confidence: methodConfidence[m],
		Metadata:   meta,
		PageCount:  len(pages),
		Pages:      make([]Page, len(pages)),
	}
	for i, t := range pages {
		res.Pages[i] = Page{Number: i + 1, Text: t}
	}
	res.Text = JoinPages(pages)
	return res
}

// IsPDF reports whether the MIME type is a PDF.
func IsPDF(mimeType string) bool {
	return mimeType == domain.MIMEPDF
}

// New builds the standard ladder from configuration: native, then the
// alternate subprocess when configured, then OCR when configured.
func New(cfg config.ExtractionConfig) *Ladder {
	parsers := []Parser{NewNative()}
	if cfg.AlternateCommand != "" {
		parsers = append(parsers, NewAlternate(cfg.AlternateCommand, cfg.AlternateArgs, nil))
	}
	if cfg.OCRBinary != "" {
		parsers = append(parsers, NewOCR(cfg.OCRBinary, cfg.RasterizeBinary, nil))
	}
	return NewLadder(cfg.MinTextChars, cfg.Timeout(), parsers...)
}

// Alternate returns a ladder holding only the out-of-process rung, used by
// the splitter when native paging is unusable.
func (l *Ladder) Alternate() *Ladder {
	var ps []Parser
	for _, p := range l.parsers {
		if p.Name() == MethodAlternate {
			ps = append(ps, p)
		}
	}
	return &Ladder{parsers: ps, minTextChars: l.minTextChars, timeout: l.timeout}
}
