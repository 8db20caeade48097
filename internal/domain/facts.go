package domain

import "time"

// Classification is the property-relatedness verdict for an email.
type Classification struct {
	IsPropertyRelated bool    `json:"is_property_related"`
	Confidence        float64 `json:"confidence"`
	Category          string  `json:"category"`
	Reasoning         string  `json:"reasoning"`
	Method            string  `json:"method"`
}

// Classification methods.
const (
	ClassifiedByOracle  = "oracle"
	ClassifiedByKeyword = "keyword"
)

// PriceChange is a requested change to a listing or sales price.
type PriceChange struct {
	Field  string  `json:"field"`
	Amount float64 `json:"amount"`
	Raw    string  `json:"raw"`
}

// StatusChange is a requested change to a property's listing status.
type StatusChange struct {
	NewStatus PropertyStatus `json:"new_status"`
	Raw       string         `json:"raw"`
}

// KeyDate is a dated milestone mentioned in correspondence.
type KeyDate struct {
	Label string    `json:"label"`
	Date  time.Time `json:"date"`
	Raw   string    `json:"raw"`
}

// TaskHint is a follow-up the correspondence asks for.
type TaskHint struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// ExtractedFacts is the structured evidence recovered from an email and its
// documents. Every field may be empty.
type ExtractedFacts struct {
	Addresses     []string       `json:"addresses"`
	MLSNumbers    []string       `json:"mls_numbers"`
	LoanNumbers   []string       `json:"loan_numbers"`
	ClientNames   []string       `json:"client_names"`
	AgentNames    []string       `json:"agent_names"`
	PriceChanges  []PriceChange  `json:"price_changes"`
	StatusChanges []StatusChange `json:"status_changes"`
	KeyDates      []KeyDate      `json:"key_dates"`
	Tasks         []TaskHint     `json:"tasks"`
	Summary       string         `json:"summary"`
	Source        string         `json:"source"`
}

// IsEmpty reports whether no evidence at all was recovered.
func (f ExtractedFacts) IsEmpty() bool {
	return len(f.Addresses) == 0 && len(f.MLSNumbers) == 0 && len(f.LoanNumbers) == 0 &&
		len(f.ClientNames) == 0 && len(f.AgentNames) == 0 && len(f.PriceChanges) == 0 &&
		len(f.StatusChanges) == 0 && len(f.KeyDates) == 0 && len(f.Tasks) == 0
}
