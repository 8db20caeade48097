package splitter

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFTool is the structural PDF capability: count pages and copy a page
// range into a standalone PDF.
type PDFTool interface {
	PageCount(data []byte) (int, error)
	ExtractRange(data []byte, start, end int) ([]byte, error)
}

var disableConfigDir sync.Once

// PDFCPU implements PDFTool with pdfcpu in relaxed validation mode, which
// tolerates the slightly malformed output of common e-signature tools.
type PDFCPU struct {
	conf *model.Configuration
}

// NewPDFCPU returns a pdfcpu-backed PDFTool.
func NewPDFCPU() *PDFCPU {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFCPU{conf: conf}
}

// PageCount implements PDFTool.
func (p *PDFCPU) PageCount(data []byte) (n int, err error) {
	defer recoverInto(&err)
	n, err = api.PageCount(bytes.NewReader(data), p.conf)
	if err != nil {
		return 0, fmt.Errorf("pdf page count: %w", err)
	}
	return n, nil
}

// ExtractRange implements PDFTool. Pages are 1-based and inclusive.
func (p *PDFCPU) ExtractRange(data []byte, start, end int) (out []byte, err error) {
	defer recoverInto(&err)
	var buf bytes.Buffer
	sel := []string{fmt.Sprintf("%d-%d", start, end)}
	if err := api.Trim(bytes.NewReader(data), &buf, sel, p.conf); err != nil {
		return nil, fmt.Errorf("pdf trim %s: %w", sel[0], err)
	}
	return buf.Bytes(), nil
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("pdf library panic: %v", r)
	}
}
