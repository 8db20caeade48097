package extraction

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
)

// ErrEncrypted is returned when a PDF cannot be read without a password.
var ErrEncrypted = errors.New("pdf is encrypted")

// Native parses PDF, Word (.docx) and plain text in process.
type Native struct{}

// NewNative returns the in-process parser.
func NewNative() *Native { return &Native{} }

// Name implements Parser.
func (n *Native) Name() Method { return MethodNative }

// Supports implements Parser.
func (n *Native) Supports(mimeType string) bool {
	switch mimeType {
	case domain.MIMEPDF, domain.MIMEDocx, domain.MIMEText:
		return true
	}
	return false
}

// Parse implements Parser.
func (n *Native) Parse(ctx context.Context, data []byte, mimeType string) ([]string, map[string]string, error) {
	switch mimeType {
	case domain.MIMEPDF:
		return parsePDF(ctx, data)
	case domain.MIMEDocx:
		return parseDocx(data)
	case domain.MIMEText:
		if !utf8.Valid(data) {
			return nil, nil, errors.New("text is not valid utf-8")
		}
		return SplitPages(string(data)), nil, nil
	}
	return nil, nil, fmt.Errorf("native: unsupported mime type %s", mimeType)
}

func parsePDF(ctx context.Context, data []byte) ([]string, map[string]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "encrypt") {
			return nil, nil, ErrEncrypted
		}
		return nil, nil, fmt.Errorf("open pdf: %w", err)
	}

	n := r.NumPage()
	if n == 0 {
		return nil, nil, errors.New("pdf has no pages")
	}
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages, map[string]string{"page_count": strconv.Itoa(n), "parser": "ledongthuc/pdf"}, nil
}

// parseDocx reads word/document.xml and renders paragraphs as lines. Explicit
// page breaks split pages.
func parseDocx(data []byte) ([]string, map[string]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("open docx: %w", err)
	}
	var doc io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc, err = f.Open()
			if err != nil {
				return nil, nil, fmt.Errorf("open document.xml: %w", err)
			}
			break
		}
	}
	if doc == nil {
		return nil, nil, errors.New("docx has no word/document.xml")
	}
	defer doc.Close()

	var pages []string
	var cur strings.Builder
	inText := false
	dec := xml.NewDecoder(doc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				cur.WriteByte('\t')
			case "br":
				if attr(t, "type") == "page" {
					pages = append(pages, strings.TrimSpace(cur.String()))
					cur.Reset()
				} else {
					cur.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				cur.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	pages = append(pages, strings.TrimSpace(cur.String()))
	return pages, map[string]string{"parser": "docx"}, nil
}

func attr(e xml.StartElement, local string) string {
	for _, a := range e.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
