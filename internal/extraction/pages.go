package extraction

import "strings"

// PageSeparator delimits pages in a linear text rendering.
const PageSeparator = "\n\f\n"

// JoinPages renders pages as one text, separated by form feeds.
func JoinPages(pages []string) string {
	return strings.Join(pages, PageSeparator)
}

// SplitPages recovers pages from text produced by JoinPages or by tools
// that emit a bare form feed between pages. Text without separators is a
// single page.
func SplitPages(text string) []string {
	if !strings.Contains(text, "\f") {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}
	parts := strings.Split(text, "\f")
	pages := make([]string, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimPrefix(p, "\n")
		p = strings.TrimSuffix(p, "\n")
		// A trailing form feed does not open a page.
		if i == len(parts)-1 && strings.TrimSpace(p) == "" {
			continue
		}
		pages = append(pages, p)
	}
	return pages
}

// EstimatePageCount counts pages from text-level separators.
func EstimatePageCount(text string) int {
	return len(SplitPages(text))
}
