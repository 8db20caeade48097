package splitter

import (
	"sort"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
)

// Repair turns any boundary list into a partition of pages 1..n: ranges are
// clamped, sorted, overlaps trimmed, interior gaps absorbed by the preceding
// boundary, and the first and last boundaries stretched to the edges.
// An empty or unusable list becomes one boundary over the whole document.
func Repair(bounds []domain.DocumentBoundary, n int) []domain.DocumentBoundary {
	if n <= 0 {
		return nil
	}

	valid := make([]domain.DocumentBoundary, 0, len(bounds))
	for _, b := range bounds {
		if b.StartPage < 1 {
			b.StartPage = 1
		}
		if b.EndPage > n {
			b.EndPage = n
		}
		if b.StartPage > b.EndPage {
			continue
		}
		if b.Type == "" {
			b.Type = domain.DocUnknown
		}
		b.Confidence = clamp01(b.Confidence)
		valid = append(valid, b)
	}
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].StartPage != valid[j].StartPage {
			return valid[i].StartPage < valid[j].StartPage
		}
		return valid[i].EndPage > valid[j].EndPage
	})

	out := make([]domain.DocumentBoundary, 0, len(valid))
	next := 1
	for _, b := range valid {
		if b.EndPage < next {
			continue
		}
		if b.StartPage > next {
			if len(out) > 0 {
				out[len(out)-1].EndPage = b.StartPage - 1
			} else {
				b.StartPage = 1
			}
		}
		if b.StartPage < next {
			b.StartPage = next
		}
		out = append(out, b)
		next = b.EndPage + 1
	}

	if len(out) == 0 {
		return []domain.DocumentBoundary{{
			StartPage: 1, EndPage: n, Type: domain.DocUnknown, Reasoning: "whole document",
		}}
	}
	out[len(out)-1].EndPage = n
	return out
}

// Covers reports whether bounds partition 1..n contiguously without overlap.
func Covers(bounds []domain.DocumentBoundary, n int) bool {
	next := 1
	for _, b := range bounds {
		if b.StartPage != next || b.EndPage < b.StartPage {
			return false
		}
		next = b.EndPage + 1
	}
	return next == n+1
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
