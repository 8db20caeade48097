package domain

// MatchMethod tags the strategy that produced a candidate.
type MatchMethod string

const (
	MatchMLSNumber       MatchMethod = "mls_number"
	MatchLoanNumber      MatchMethod = "loan_number"
	MatchExactAddress    MatchMethod = "exact_address"
	MatchExactClientName MatchMethod = "exact_client_name"
	MatchFuzzyClientName MatchMethod = "fuzzy_client_name"
	MatchFuzzyAddress    MatchMethod = "fuzzy_address"
	MatchCombinedSignals MatchMethod = "combined_signals"
)

// MatchCandidate is one property proposed by one strategy.
type MatchCandidate struct {
	Property   Property          `json:"property"`
	Confidence float64           `json:"confidence"`
	Method     MatchMethod       `json:"method"`
	Details    map[string]string `json:"details,omitempty"`
}

// MatchResult wraps the highest-confidence candidate plus ranked alternates.
type MatchResult struct {
	Property             Property          `json:"property"`
	Confidence           float64           `json:"confidence"`
	Method               MatchMethod       `json:"method"`
	Details              map[string]string `json:"details,omitempty"`
	Alternates           []MatchCandidate  `json:"alternates,omitempty"`
	RequiresManualReview bool              `json:"requires_manual_review"`
	Evidence             []string          `json:"evidence,omitempty"`
}
