// Package matching resolves extracted evidence to a stored property. Each
// strategy proposes calibrated candidates independently; the engine merges
// them by property, keeps the best confidence per property and ranks.
package matching

import (
	"context"
	"fmt"
	"sort"

	"github.com/nickimizell/property-dashboard-sub000/internal/config"
	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/logger"
)

// Evidence is what the strategies search with.
type Evidence struct {
	Email domain.InboundEmail
	Facts domain.ExtractedFacts
}

// Strategy produces candidates from evidence. A strategy error skips only
// that strategy.
type Strategy struct {
	Name string
	Run  func(ctx context.Context, ev Evidence) ([]domain.MatchCandidate, error)
}

// Engine runs the strategies against a Store.
type Engine struct {
	store      Store
	cfg        config.MatchingConfig
	strategies []Strategy
}

// New creates an engine with the default strategy set, in decreasing order
// of fixed confidence.
func New(store Store, cfg config.MatchingConfig) *Engine {
	e := &Engine{store: store, cfg: cfg}
	e.strategies = []Strategy{
		{Name: "identifier", Run: e.identifierStrategy},
		{Name: "exact_address", Run: e.exactAddressStrategy},
		{Name: "client_name", Run: e.clientNameStrategy},
		{Name: "fuzzy_address", Run: e.fuzzyAddressStrategy},
		{Name: "combined_signals", Run: e.combinedStrategy},
	}
	return e
}

// WithStrategies replaces the strategy set.
func (e *Engine) WithStrategies(s ...Strategy) *Engine {
	e.strategies = s
	return e
}

// FindMatch returns the best-ranked match, or nil when no strategy found a
// candidate. The store is only read.
func (e *Engine) FindMatch(ctx context.Context, email domain.InboundEmail, facts domain.ExtractedFacts) *domain.MatchResult {
	ev := Evidence{Email: email, Facts: facts}

	var all []domain.MatchCandidate
	for _, s := range e.strategies {
		cands, err := e.run(ctx, s, ev)
		if err != nil {
			logger.Warn("match strategy failed", "strategy", s.Name, "email_id", email.ExternalID(),
				"kept_candidates", len(cands), "error", err)
		}
		all = append(all, cands...)
	}

	ranked := Merge(all)
	if len(ranked) == 0 {
		return nil
	}

	top := ranked[0]
	res := &domain.MatchResult{
		Property:             top.Property,
		Confidence:           top.Confidence,
		Method:               top.Method,
		Details:              top.Details,
		RequiresManualReview: top.Confidence < e.cfg.AutoMatchThreshold,
		Evidence:             EvidenceSummary(facts),
	}
	rest := ranked[1:]
	if len(rest) > e.cfg.MaxAlternates {
		rest = rest[:e.cfg.MaxAlternates]
	}
	if len(rest) > 0 {
		res.Alternates = rest
	}
	return res
}

// run isolates one strategy: a panic becomes an error.
func (e *Engine) run(ctx context.Context, s Strategy, ev Evidence) (cands []domain.MatchCandidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Run(ctx, ev)
}

// Merge deduplicates candidates by property, keeping the highest confidence,
// and sorts them by descending confidence. Confidences are clamped to [0,1];
// candidates without a property id are dropped.
func Merge(cands []domain.MatchCandidate) []domain.MatchCandidate {
	best := make(map[string]int)
	var out []domain.MatchCandidate
	for _, c := range cands {
		if c.Property.ID == "" {
			continue
		}
		c.Confidence = clamp01(c.Confidence)
		if i, ok := best[c.Property.ID]; ok {
			if c.Confidence > out[i].Confidence {
				out[i] = c
			}
			continue
		}
		best[c.Property.ID] = len(out)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// EvidenceSummary lists the evidence searched, for manual-review records.
func EvidenceSummary(f domain.ExtractedFacts) []string {
	var out []string
	for _, v := range f.MLSNumbers {
		out = append(out, "mls:"+v)
	}
	for _, v := range f.LoanNumbers {
		out = append(out, "loan:"+v)
	}
	for _, v := range f.Addresses {
		out = append(out, "address:"+v)
	}
	for _, v := range f.ClientNames {
		out = append(out, "client:"+v)
	}
	for _, v := range f.AgentNames {
		out = append(out, "agent:"+v)
	}
	return out
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
