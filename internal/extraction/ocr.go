package extraction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// OCR recognizes text in images, and in PDFs after rasterizing each page.
type OCR struct {
	tesseract string
	rasterize string
	run       CommandRunner
}

// NewOCR configures the OCR rung. An empty rasterize binary limits it to images.
func NewOCR(tesseract, rasterize string, run CommandRunner) *OCR {
	if run == nil {
		run = ExecRunner
	}
	return &OCR{tesseract: tesseract, rasterize: rasterize, run: run}
}

// Name implements Parser.
func (o *OCR) Name() Method { return MethodOCR }

// Supports implements Parser.
func (o *OCR) Supports(mimeType string) bool {
	if strings.HasPrefix(mimeType, "image/") {
		return true
	}
	return IsPDF(mimeType) && o.rasterize != ""
}

// Parse implements Parser.
func (o *OCR) Parse(ctx context.Context, data []byte, mimeType string) ([]string, map[string]string, error) {
	dir, err := os.MkdirTemp("", "ocr-*")
	if err != nil {
		return nil, nil, fmt.Errorf("ocr temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	var images []string
	if IsPDF(mimeType) {
		src := filepath.Join(dir, "input.pdf")
		if err := os.WriteFile(src, data, 0o600); err != nil {
			return nil, nil, err
		}
		prefix := filepath.Join(dir, "page")
		if _, err := o.run(ctx, o.rasterize, []string{"-r", "300", "-png", src, prefix}, nil); err != nil {
			return nil, nil, fmt.Errorf("rasterize: %w", err)
		}
		images, err = filepath.Glob(prefix + "-*.png")
		if err != nil {
			return nil, nil, err
		}
		sortPageImages(images)
	} else {
		src := filepath.Join(dir, "input"+imageExt(mimeType))
		if err := os.WriteFile(src, data, 0o600); err != nil {
			return nil, nil, err
		}
		images = []string{src}
	}
	if len(images) == 0 {
		return nil, nil, fmt.Errorf("ocr: no page images produced")
	}

	pages := make([]string, 0, len(images))
	for _, img := range images {
		out, err := o.run(ctx, o.tesseract, []string{img, "stdout"}, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("tesseract: %w", err)
		}
		pages = append(pages, strings.TrimSpace(string(out)))
	}
	return pages, map[string]string{"parser": o.tesseract}, nil
}

// sortPageImages orders page-N.png numerically.
func sortPageImages(paths []string) {
	num := func(p string) int {
		base := strings.TrimSuffix(filepath.Base(p), ".png")
		i := strings.LastIndex(base, "-")
		n := 0
		fmt.Sscanf(base[i+1:], "%d", &n)
		return n
	}
	sort.Slice(paths, func(i, j int) bool { return num(paths[i]) < num(paths[j]) })
}

func imageExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/tiff":
		return ".tif"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	}
	return ".img"
}
