package splitter

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	bundleFilename = regexp.MustCompile(`(?i)(docusign|dotloop|skyslope|zipform|transaction ?desk|packet|bundle|combined|merged|package|scan)`)
	pageOfPattern  = regexp.MustCompile(`(?i)\bpage\s+(\d{1,3})\s+of\s+(\d{1,3})\b`)
)

// Detection explains why a PDF was treated as a bundle.
type Detection struct {
	Multi   bool
	Reasons []string
}

// detect applies the multi-document triggers. Any one trigger is enough.
func (s *Splitter) detect(filename string, pages []string, pageCount int) Detection {
	var d Detection
	if bundleFilename.MatchString(filename) {
		d.Reasons = append(d.Reasons, "filename suggests a bundle")
	}
	if pageCount > s.cfg.PageThreshold {
		d.Reasons = append(d.Reasons, "page count "+strconv.Itoa(pageCount)+" above threshold")
	}

	probe := pages
	if len(probe) > s.cfg.ProbePages {
		probe = probe[:s.cfg.ProbePages]
	}
	distinct := map[string]bool{}
	for i, text := range probe {
		for _, sg := range s.catalog.Signatures(header(text, headerChars)) {
			distinct[sg] = true
		}
		for _, m := range pageOfPattern.FindAllStringSubmatch(text, -1) {
			x, _ := strconv.Atoi(m[1])
			y, _ := strconv.Atoi(m[2])
			if x == 1 && i > 0 {
				d.Reasons = append(d.Reasons, "page numbering restarts on page "+strconv.Itoa(i+1))
			}
			if y > 0 && y < pageCount {
				d.Reasons = append(d.Reasons, "page "+strconv.Itoa(i+1)+" declares "+m[2]+" of "+strconv.Itoa(pageCount)+" pages")
			}
		}
	}
	if len(distinct) >= 2 {
		d.Reasons = append(d.Reasons, strconv.Itoa(len(distinct))+" document types in the first pages")
	}

	d.Reasons = dedupe(d.Reasons)
	d.Multi = len(d.Reasons) > 0
	return d
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// firstLines returns up to n non-empty trimmed lines of text.
func firstLines(text string, n int) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
			if len(out) == n {
				break
			}
		}
	}
	return out
}
