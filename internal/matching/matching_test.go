package matching

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/nickimizell/property-dashboard-sub000/internal/config"
	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/facts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store. With rank set it computes similarity the
// way pg_trgm would; canned results override it per field.
type memStore struct {
	mu       sync.Mutex
	props    []domain.Property
	rank     bool
	canned   map[Field][]Scored
	idErr    error
	failOnID map[string]error
	lookups  int
}

func (s *memStore) FindByIdentifier(ctx context.Context, kind IdentifierKind, digits string) ([]domain.Property, error) {
	s.count()
	if s.idErr != nil {
		return nil, s.idErr
	}
	if err := s.failOnID[digits]; err != nil {
		return nil, err
	}
	var out []domain.Property
	for _, p := range s.props {
		switch kind {
		case IdentifierMLS:
			if (p.MLSNumber != "" && facts.DigitsOnly(p.MLSNumber) == digits) || strings.Contains(p.Address, digits) {
				out = append(out, p)
			}
		case IdentifierLoan:
			if p.LoanNumber != "" && facts.DigitsOnly(p.LoanNumber) == digits {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (s *memStore) FindByClientName(ctx context.Context, name string) ([]domain.Property, error) {
	s.count()
	var out []domain.Property
	for _, p := range s.props {
		if strings.EqualFold(strings.TrimSpace(p.ClientName), name) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) FindByAgent(ctx context.Context, agent string) ([]domain.Property, error) {
	s.count()
	var out []domain.Property
	for _, p := range s.props {
		if strings.EqualFold(p.SellingAgent, agent) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) FindByStreetNumber(ctx context.Context, number string) ([]domain.Property, error) {
	s.count()
	var out []domain.Property
	for _, p := range s.props {
		if StreetNumber(NormalizeAddress(p.Address)) == number {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) Similar(ctx context.Context, field Field, value string, limit int) ([]Scored, error) {
	s.count()
	if c, ok := s.canned[field]; ok {
		return c, nil
	}
	if !s.rank {
		return nil, ErrSimilarityUnavailable
	}
	var out []Scored
	for _, p := range s.props {
		if sim := Similarity(value, fieldValue(p, field)); sim > 0 {
			out = append(out, Scored{Property: p, Similarity: sim})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) Substring(ctx context.Context, field Field, fragment string, limit int) ([]domain.Property, error) {
	s.count()
	var out []domain.Property
	for _, p := range s.props {
		if strings.Contains(strings.ToLower(fieldValue(p, field)), strings.ToLower(fragment)) {
			out = append(out, p)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) count() {
	s.mu.Lock()
	s.lookups++
	s.mu.Unlock()
}

func testConfig() config.MatchingConfig {
	return config.Default().Matching
}

func TestMLSNumberMatchesAddressDigits(t *testing.T) {
	store := &memStore{props: []domain.Property{
		{ID: "p1", Address: "Lot 123456 Ridge Road"},
		{ID: "p2", Address: "9 Elm St"},
	}}
	f := facts.Extract(`Offer received for MLS# 123-456`, refTime)

	res := New(store, testConfig()).FindMatch(context.Background(), domain.InboundEmail{ID: "m"}, f)

	require.NotNil(t, res)
	assert.Equal(t, "p1", res.Property.ID)
	assert.Equal(t, domain.MatchMLSNumber, res.Method)
	assert.GreaterOrEqual(t, res.Confidence, 0.99)
	assert.False(t, res.RequiresManualReview)
	assert.Equal(t, "123456", res.Details["mls_number"])
	assert.Equal(t, []string{"mls:123456"}, res.Evidence)
}

func TestFuzzyAddressIsScaledAndFlagged(t *testing.T) {
	target := domain.Property{ID: "p7", Address: "740 Evergreen Pl"}
	store := &memStore{
		props:  []domain.Property{target},
		canned: map[Field][]Scored{FieldAddress: {{Property: target, Similarity: 0.4}}},
	}
	f := domain.ExtractedFacts{Addresses: []string{"742 Evergreen Terrace"}}

	res := New(store, testConfig()).FindMatch(context.Background(), domain.InboundEmail{ID: "m"}, f)

	require.NotNil(t, res)
	assert.Equal(t, domain.MatchFuzzyAddress, res.Method)
	assert.InDelta(t, 0.6*0.4, res.Confidence, 1e-9)
	assert.True(t, res.RequiresManualReview)
	assert.Equal(t, "0.400", res.Details["similarity"])
}

func TestFuzzyBelowMinimumSimilarityIsDropped(t *testing.T) {
	target := domain.Property{ID: "p7", Address: "1 Somewhere Else"}
	store := &memStore{canned: map[Field][]Scored{FieldAddress: {{Property: target, Similarity: 0.2}}}}
	f := domain.ExtractedFacts{Addresses: []string{"742 Evergreen Terrace"}}

	assert.Nil(t, New(store, testConfig()).FindMatch(context.Background(), domain.InboundEmail{}, f))
}

func TestExactAddressCanonicalizesSuffixes(t *testing.T) {
	store := &memStore{rank: true, props: []domain.Property{
		{ID: "a", Address: "12 North Oak Street, Springfield, IL 62704"},
		{ID: "b", Address: "12 Oak Ave"},
	}}
	f := domain.ExtractedFacts{Addresses: []string{"12 N. Oak St. Apt 4"}}

	res := New(store, testConfig()).FindMatch(context.Background(), domain.InboundEmail{}, f)

	require.NotNil(t, res)
	assert.Equal(t, "a", res.Property.ID)
	assert.Equal(t, domain.MatchExactAddress, res.Method)
	assert.Equal(t, 0.95, res.Confidence)
	require.NotEmpty(t, res.Alternates)
	assert.Equal(t, "b", res.Alternates[0].Property.ID)
	assert.Equal(t, domain.MatchFuzzyAddress, res.Alternates[0].Method)
}

func TestMergeKeepsMaximumPerProperty(t *testing.T) {
	p := domain.Property{ID: "x", Address: "5 Bay Rd", MLSNumber: "55501", ClientName: "Ann Gray"}
	store := &memStore{rank: true, props: []domain.Property{p, {ID: "y", Address: "6 Bay Rd"}}}
	f := domain.ExtractedFacts{
		MLSNumbers:  []string{"55501"},
		Addresses:   []string{"5 Bay Road"},
		ClientNames: []string{"Ann Gray"},
	}

	res := New(store, testConfig()).FindMatch(context.Background(), domain.InboundEmail{}, f)

	require.NotNil(t, res)
	assert.Equal(t, "x", res.Property.ID)
	assert.Equal(t, 0.99, res.Confidence)
	for _, alt := range res.Alternates {
		assert.NotEqual(t, "x", alt.Property.ID)
	}
}

func TestClientNameExactThenFuzzy(t *testing.T) {
	store := &memStore{rank: true, props: []domain.Property{
		{ID: "c1", Address: "1 A St", ClientName: "John Smith"},
	}}
	engine := New(store, testConfig())

	exact := engine.FindMatch(context.Background(), domain.InboundEmail{}, domain.ExtractedFacts{ClientNames: []string{"john smith"}})
	require.NotNil(t, exact)
	assert.Equal(t, domain.MatchExactClientName, exact.Method)
	assert.Equal(t, 0.85, exact.Confidence)

	fuzzy := engine.FindMatch(context.Background(), domain.InboundEmail{}, domain.ExtractedFacts{ClientNames: []string{"Jon Smith"}})
	require.NotNil(t, fuzzy)
	assert.Equal(t, domain.MatchFuzzyClientName, fuzzy.Method)
	assert.InDelta(t, 8.0/13.0*0.7, fuzzy.Confidence, 1e-9)
	assert.LessOrEqual(t, fuzzy.Confidence, 0.7)
}

func TestDegradedSimilarityPreservesRanking(t *testing.T) {
	props := []domain.Property{
		{ID: "ln", Address: "15 Oak Ln"},
		{ID: "wood", Address: "12 Oakwood Dr"},
		{ID: "ave", Address: "12 Oak Ave"},
		{ID: "far", Address: "300 Pine Ct"},
	}
	query := NormalizeAddress("12 Oak St")
	normalize := func(s string) string { return NormalizeAddress(StreetLine(s)) }

	ranked, err := New(&memStore{rank: true, props: props}, testConfig()).similar(context.Background(), FieldAddress, query, normalize)
	require.NoError(t, err)
	degraded, err := New(&memStore{props: props}, testConfig()).similar(context.Background(), FieldAddress, query, normalize)
	require.NoError(t, err)

	ids := func(s []Scored) []string {
		var out []string
		for _, x := range s {
			out = append(out, x.Property.ID)
		}
		return out
	}
	require.NotEmpty(t, degraded)
	assert.Equal(t, "ave", degraded[0].Property.ID)
	assert.Equal(t, ranked[0].Property.ID, degraded[0].Property.ID)
	assert.ElementsMatch(t, []string{"ln", "wood", "ave"}, ids(degraded))
	for i := 1; i < len(degraded); i++ {
		assert.GreaterOrEqual(t, degraded[i-1].Similarity, degraded[i].Similarity)
	}
}

func TestCombinedWeakSignals(t *testing.T) {
	store := &memStore{props: []domain.Property{
		{ID: "h", Address: "88 Harbor View Rd", SellingAgent: "Sarah Lee"},
		{ID: "other", Address: "88 Main St", SellingAgent: "Tom Park"},
	}}
	f := domain.ExtractedFacts{
		Addresses:  []string{"88 Harbour View"},
		AgentNames: []string{"sarah lee"},
	}

	res := New(store, testConfig()).FindMatch(context.Background(), domain.InboundEmail{}, f)

	require.NotNil(t, res)
	assert.Equal(t, "h", res.Property.ID)
	assert.Equal(t, domain.MatchCombinedSignals, res.Method)
	assert.Equal(t, 0.65, res.Confidence)
	assert.Equal(t, "agent,partial_address", res.Details["signals"])
	assert.True(t, res.RequiresManualReview)
}

func TestSingleWeakSignalDoesNotFire(t *testing.T) {
	store := &memStore{props: []domain.Property{{ID: "h", Address: "1 Quiet Ln", SellingAgent: "Sarah Lee"}}}
	f := domain.ExtractedFacts{AgentNames: []string{"Sarah Lee"}}
	assert.Nil(t, New(store, testConfig()).FindMatch(context.Background(), domain.InboundEmail{}, f))
}

func TestFailingStrategyIsSkipped(t *testing.T) {
	store := &memStore{
		idErr: errors.New("connection reset"),
		props: []domain.Property{{ID: "a", Address: "4 Lake Dr", MLSNumber: "777777"}},
		rank:  true,
	}
	f := domain.ExtractedFacts{MLSNumbers: []string{"777777"}, Addresses: []string{"4 Lake Drive"}}

	engine := New(store, testConfig())
	engine.strategies = append([]Strategy{{Name: "boom", Run: func(ctx context.Context, ev Evidence) ([]domain.MatchCandidate, error) {
		panic("nil map")
	}}}, engine.strategies...)

	res := engine.FindMatch(context.Background(), domain.InboundEmail{}, f)
	require.NotNil(t, res)
	assert.Equal(t, domain.MatchExactAddress, res.Method)
}

func TestIdentifierLookupFailureSkipsOnlyThatIdentifier(t *testing.T) {
	store := &memStore{
		failOnID: map[string]error{"999999": errors.New("statement timeout")},
		props:    []domain.Property{{ID: "a", Address: "4 Lake Dr", MLSNumber: "555-123"}},
	}
	f := domain.ExtractedFacts{MLSNumbers: []string{"999999", "555123"}}

	res := New(store, testConfig()).FindMatch(context.Background(), domain.InboundEmail{}, f)

	require.NotNil(t, res)
	assert.Equal(t, "a", res.Property.ID)
	assert.Equal(t, domain.MatchMLSNumber, res.Method)
}

func TestShortLoanNumberIsMatched(t *testing.T) {
	store := &memStore{props: []domain.Property{{ID: "b", Address: "8 Pine Ct", LoanNumber: "LN-812"}}}
	f := facts.Extract("Payoff letter for loan # 812 attached", refTime)
	require.Equal(t, []string{"812"}, f.LoanNumbers)

	res := New(store, testConfig()).FindMatch(context.Background(), domain.InboundEmail{}, f)

	require.NotNil(t, res)
	assert.Equal(t, "b", res.Property.ID)
	assert.Equal(t, domain.MatchLoanNumber, res.Method)
}

func TestExactAddressAmongManySharedHouseNumbers(t *testing.T) {
	var props []domain.Property
	for i := 0; i < 200; i++ {
		props = append(props, domain.Property{ID: fmt.Sprintf("n%03d", i), Address: fmt.Sprintf("100 Aspen%03d Ave", i)})
	}
	props = append(props, domain.Property{ID: "target", Address: "100 Willow Lane, Austin, TX"})
	f := domain.ExtractedFacts{Addresses: []string{"100 Willow Ln"}}

	res := New(&memStore{props: props}, testConfig()).FindMatch(context.Background(), domain.InboundEmail{}, f)

	require.NotNil(t, res)
	assert.Equal(t, "target", res.Property.ID)
	assert.Equal(t, domain.MatchExactAddress, res.Method)
}

func TestMalformedIdentifierIsIgnored(t *testing.T) {
	store := &memStore{props: []domain.Property{{ID: "a", Address: "12 Elm St"}}}
	f := domain.ExtractedFacts{MLSNumbers: []string{"12"}, LoanNumbers: []string{"n/a"}}
	assert.Nil(t, New(store, testConfig()).FindMatch(context.Background(), domain.InboundEmail{}, f))
}

func TestAlternatesAreCapped(t *testing.T) {
	var props []domain.Property
	for i := 0; i < 8; i++ {
		props = append(props, domain.Property{ID: fmt.Sprintf("p%d", i), Address: "Lot 424242 unit " + fmt.Sprint(i)})
	}
	f := domain.ExtractedFacts{MLSNumbers: []string{"424242"}}

	res := New(&memStore{props: props}, testConfig()).FindMatch(context.Background(), domain.InboundEmail{}, f)
	require.NotNil(t, res)
	assert.Len(t, res.Alternates, 5)
}

func TestConfidenceCalibration(t *testing.T) {
	streets := []string{"Oak St", "Maple Ave", "Harbor View Rd", "Pine Ct", "Elm Dr"}
	agents := []string{"Sarah Lee", "Tom Park", "Ana Ruiz"}
	clients := []string{"John Smith", "Mary Jones", "Wei Chen"}
	rng := rand.New(rand.NewSource(3))

	var props []domain.Property
	for i := 0; i < 40; i++ {
		props = append(props, domain.Property{
			ID:           fmt.Sprintf("p%d", i),
			Address:      fmt.Sprintf("%d %s", 1+rng.Intn(30), streets[rng.Intn(len(streets))]),
			SellingAgent: agents[rng.Intn(len(agents))],
			ClientName:   clients[rng.Intn(len(clients))],
			MLSNumber:    fmt.Sprintf("%06d", rng.Intn(1000000)),
		})
	}
	cfg := testConfig()
	for _, rank := range []bool{true, false} {
		engine := New(&memStore{props: props, rank: rank}, cfg)
		for i := 0; i < 200; i++ {
			p := props[rng.Intn(len(props))]
			f := domain.ExtractedFacts{
				Addresses:   []string{fmt.Sprintf("%d %s", 1+rng.Intn(30), streets[rng.Intn(len(streets))])},
				AgentNames:  []string{p.SellingAgent},
				ClientNames: []string{clients[rng.Intn(len(clients))]},
			}
			if rng.Intn(3) == 0 {
				f.MLSNumbers = []string{p.MLSNumber}
			}
			res := engine.FindMatch(context.Background(), domain.InboundEmail{}, f)
			if res == nil {
				continue
			}
			assert.GreaterOrEqual(t, res.Confidence, 0.0)
			assert.LessOrEqual(t, res.Confidence, 1.0)
			assert.Equal(t, res.Confidence < cfg.AutoMatchThreshold, res.RequiresManualReview)
			for _, alt := range res.Alternates {
				assert.LessOrEqual(t, alt.Confidence, res.Confidence)
				assert.GreaterOrEqual(t, alt.Confidence, 0.0)
			}
		}
	}
}
