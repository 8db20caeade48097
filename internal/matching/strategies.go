package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/facts"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/logger"
)

// identifierStrategy matches MLS and loan numbers after stripping non-digits.
// A malformed identifier, or one whose lookup fails, is skipped; the rest
// are still tried.
func (e *Engine) identifierStrategy(ctx context.Context, ev Evidence) ([]domain.MatchCandidate, error) {
	var out []domain.MatchCandidate
	var errs []error
	lookup := func(kind IdentifierKind, raw string, minDigits int, conf float64, method domain.MatchMethod) {
		digits := facts.DigitsOnly(raw)
		if len(digits) < minDigits {
			logger.Debug("skipping malformed identifier", "kind", string(kind), "value", raw)
			return
		}
		props, err := e.store.FindByIdentifier(ctx, kind, digits)
		if err != nil {
			logger.Warn("identifier lookup failed", "kind", string(kind), "value", digits, "error", err)
			errs = append(errs, fmt.Errorf("find by %s %s: %w", kind, digits, err))
			return
		}
		for _, p := range props {
			out = append(out, domain.MatchCandidate{
				Property:   p,
				Confidence: conf,
				Method:     method,
				Details:    map[string]string{string(kind) + "_number": digits},
			})
		}
	}

	for _, v := range ev.Facts.MLSNumbers {
		lookup(IdentifierMLS, v, facts.MinMLSDigits, e.cfg.MLSConfidence, domain.MatchMLSNumber)
	}
	for _, v := range ev.Facts.LoanNumbers {
		lookup(IdentifierLoan, v, facts.MinLoanDigits, e.cfg.LoanConfidence, domain.MatchLoanNumber)
	}
	return out, errors.Join(errs...)
}

// exactAddressStrategy compares normalized street lines against every
// property sharing the house number. Equality is decided here.
func (e *Engine) exactAddressStrategy(ctx context.Context, ev Evidence) ([]domain.MatchCandidate, error) {
	var out []domain.MatchCandidate
	for _, addr := range ev.Facts.Addresses {
		norm := NormalizeAddress(StreetLine(addr))
		num := StreetNumber(norm)
		if num == "" {
			continue
		}
		props, err := e.store.FindByStreetNumber(ctx, num)
		if err != nil {
			return out, fmt.Errorf("address lookup: %w", err)
		}
		for _, p := range props {
			if NormalizeAddress(StreetLine(p.Address)) == norm {
				out = append(out, domain.MatchCandidate{
					Property:   p,
					Confidence: e.cfg.ExactAddressConf,
					Method:     domain.MatchExactAddress,
					Details:    map[string]string{"address": addr},
				})
			}
		}
	}
	return out, nil
}

// clientNameStrategy tries an exact name match first, then a fuzzy one
// scaled by the name ceiling.
func (e *Engine) clientNameStrategy(ctx context.Context, ev Evidence) ([]domain.MatchCandidate, error) {
	var out []domain.MatchCandidate
	for _, name := range ev.Facts.ClientNames {
		name = strings.TrimSpace(name)
		if NormalizeName(name) == "" {
			continue
		}
		exact, err := e.store.FindByClientName(ctx, name)
		if err != nil {
			return out, fmt.Errorf("client name lookup: %w", err)
		}
		for _, p := range exact {
			out = append(out, domain.MatchCandidate{
				Property:   p,
				Confidence: e.cfg.ExactClientNameConf,
				Method:     domain.MatchExactClientName,
				Details:    map[string]string{"client_name": name},
			})
		}
		if len(exact) > 0 {
			continue
		}

		scored, err := e.similar(ctx, FieldClientName, name, NormalizeName)
		if err != nil {
			return out, err
		}
		out = append(out, e.fuzzyCandidates(scored, e.cfg.FuzzyNameCeiling, domain.MatchFuzzyClientName, "client_name", name)...)
	}
	return out, nil
}

// fuzzyAddressStrategy ranks stored addresses by similarity; confidence is
// similarity times the address ceiling.
func (e *Engine) fuzzyAddressStrategy(ctx context.Context, ev Evidence) ([]domain.MatchCandidate, error) {
	var out []domain.MatchCandidate
	for _, addr := range ev.Facts.Addresses {
		query := NormalizeAddress(StreetLine(addr))
		if query == "" {
			continue
		}
		scored, err := e.similar(ctx, FieldAddress, query, func(s string) string {
			return NormalizeAddress(StreetLine(s))
		})
		if err != nil {
			return out, err
		}
		out = append(out, e.fuzzyCandidates(scored, e.cfg.FuzzyAddressCeiling, domain.MatchFuzzyAddress, "address", addr)...)
	}
	return out, nil
}

func (e *Engine) fuzzyCandidates(scored []Scored, ceiling float64, method domain.MatchMethod, key, query string) []domain.MatchCandidate {
	var out []domain.MatchCandidate
	for _, s := range scored {
		if s.Similarity < e.cfg.MinSimilarity {
			continue
		}
		out = append(out, domain.MatchCandidate{
			Property:   s.Property,
			Confidence: clamp01(s.Similarity) * ceiling,
			Method:     method,
			Details: map[string]string{
				key:          query,
				"similarity": fmt.Sprintf("%.3f", s.Similarity),
			},
		})
	}
	return out
}

// similar asks the store for a similarity ranking and degrades to substring
// search ranked by the local trigram similarity when the store cannot rank.
// normalize maps a stored value into the query's form.
func (e *Engine) similar(ctx context.Context, field Field, query string, normalize func(string) string) ([]Scored, error) {
	limit := e.cfg.SimilarityCandidates
	scored, err := e.store.Similar(ctx, field, query, limit)
	if err == nil {
		return scored, nil
	}
	if !errors.Is(err, ErrSimilarityUnavailable) {
		return nil, fmt.Errorf("similar %s: %w", field, err)
	}

	seen := make(map[string]bool)
	for _, frag := range substringFragments(field, query) {
		props, err := e.store.Substring(ctx, field, frag, limit*3)
		if err != nil {
			return nil, fmt.Errorf("substring %s: %w", field, err)
		}
		for _, p := range props {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			scored = append(scored, Scored{Property: p, Similarity: Similarity(query, normalize(fieldValue(p, field)))})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// substringFragments picks the search fragments for the degraded path: the
// house number and the longest street word for addresses, the longest word
// for names.
func substringFragments(field Field, query string) []string {
	var frags []string
	words := strings.Fields(query)
	if field == FieldAddress {
		if num := StreetNumber(query); num != "" {
			frags = append(frags, num)
		}
		words = StreetNameTokens(query)
	}
	longest := ""
	for _, w := range words {
		if len(w) > len(longest) {
			longest = w
		}
	}
	if longest != "" {
		frags = append(frags, longest)
	}
	return frags
}

func fieldValue(p domain.Property, f Field) string {
	if f == FieldClientName {
		return p.ClientName
	}
	return p.Address
}

// combinedStrategy fires only when at least two independent weak signals
// from weakSignals point at the same property.
func (e *Engine) combinedStrategy(ctx context.Context, ev Evidence) ([]domain.MatchCandidate, error) {
	var numbers, streetWords, surnames []string
	for _, a := range ev.Facts.Addresses {
		norm := NormalizeAddress(StreetLine(a))
		if n := StreetNumber(norm); n != "" {
			numbers = append(numbers, n)
		}
		streetWords = append(streetWords, StreetNameTokens(norm)...)
	}
	for _, n := range ev.Facts.ClientNames {
		if parts := strings.Fields(NormalizeName(n)); len(parts) > 0 {
			surnames = append(surnames, parts[len(parts)-1])
		}
	}

	pool := make(map[string]domain.Property)
	var order []string
	add := func(props []domain.Property) {
		for _, p := range props {
			if _, ok := pool[p.ID]; !ok {
				pool[p.ID] = p
				order = append(order, p.ID)
			}
		}
	}
	for _, agent := range ev.Facts.AgentNames {
		props, err := e.store.FindByAgent(ctx, agent)
		if err != nil {
			return nil, fmt.Errorf("agent lookup: %w", err)
		}
		add(props)
	}
	for _, frag := range append(append([]string{}, numbers...), streetWords...) {
		props, err := e.store.Substring(ctx, FieldAddress, frag, 5*e.cfg.SimilarityCandidates)
		if err != nil {
			return nil, fmt.Errorf("address fragment lookup: %w", err)
		}
		add(props)
	}

	var out []domain.MatchCandidate
	for _, id := range order {
		p := pool[id]
		signals := weakSignals(p, ev.Facts.AgentNames, numbers, streetWords, surnames)
		if len(signals) < 2 {
			continue
		}
		out = append(out, domain.MatchCandidate{
			Property:   p,
			Confidence: e.cfg.CombinedSignalsConf,
			Method:     domain.MatchCombinedSignals,
			Details:    map[string]string{"signals": strings.Join(signals, ",")},
		})
	}
	return out, nil
}

func weakSignals(p domain.Property, agents, numbers, streetWords, surnames []string) []string {
	var signals []string
	agent := NormalizeName(p.SellingAgent)
	for _, a := range agents {
		if agent != "" && NormalizeName(a) == agent {
			signals = append(signals, "agent")
			break
		}
	}

	// House number and street word come from the same address, so together
	// they are one signal.
	norm := NormalizeAddress(StreetLine(p.Address))
	partial := false
	if num := StreetNumber(norm); num != "" && contains(numbers, num) {
		partial = true
	}
	for _, w := range StreetNameTokens(norm) {
		if contains(streetWords, w) {
			partial = true
			break
		}
	}
	if partial {
		signals = append(signals, "partial_address")
	}

	clientWords := strings.Fields(NormalizeName(p.ClientName))
	for _, s := range surnames {
		if contains(clientWords, s) {
			signals = append(signals, "client_surname")
			break
		}
	}
	return signals
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
