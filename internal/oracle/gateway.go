package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/facts"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/httpretry"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/logger"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/ratelimit"
)

// Fact sources beyond facts.SourceHeuristic.
const (
	SourceOracle     = "oracle"
	SourceOracleText = "oracle_text"
)

// Gateway is the single entry point to the oracle. All calls share one limiter.
type Gateway struct {
	provider Provider
	limiter  ratelimit.Limiter
	timeout  time.Duration
	retries  int
	backoff  httpretry.Backoff
	now      func() time.Time

	calls    atomic.Int64
	failures atomic.Int64
}

// NewGateway creates a gateway. A nil provider makes every capability use
// its local fallback; a nil limiter gets the default 5-per-minute window.
func NewGateway(provider Provider, limiter ratelimit.Limiter, timeout time.Duration) *Gateway {
	if limiter == nil {
		limiter = ratelimit.NewSlidingWindow(5, time.Minute)
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Gateway{
		provider: provider,
		limiter:  limiter,
		timeout:  timeout,
		backoff:  httpretry.DefaultBackoff(),
		now:      time.Now,
	}
}

// WithRetries allows up to n more attempts after a transient provider
// failure. Each attempt takes its own slot from the limiter.
func (g *Gateway) WithRetries(n int, backoff httpretry.Backoff) *Gateway {
	if n < 0 {
		n = 0
	}
	g.retries = n
	g.backoff = backoff
	return g
}

// WithClock sets the reference clock used to resolve dates without a year.
func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	return g
}

// Available reports whether a provider is configured.
func (g *Gateway) Available() bool { return g.provider != nil }

// Counts returns the number of calls issued and how many failed.
func (g *Gateway) Counts() (calls, failures int64) {
	return g.calls.Load(), g.failures.Load()
}

// Call sends messages to the provider. Every attempt, retries included,
// first waits for budget and then runs under the per-call timeout. The
// limiter wait is not bounded by that timeout.
func (g *Gateway) Call(ctx context.Context, messages []Message) (string, error) {
	if g.provider == nil {
		return "", ErrOracleUnavailable
	}

	var lastErr error
	var retryAfter time.Duration
	for attempt := 0; attempt <= g.retries; attempt++ {
		if attempt > 0 {
			delay := g.backoff.Delay(attempt, retryAfter)
			logger.Warn("oracle call retrying",
				"provider", g.provider.Name(),
				"attempt", attempt, "max_retries", g.retries,
				"delay", delay.String())
			if err := sleepCtx(ctx, delay); err != nil {
				break
			}
		}
		if err := g.limiter.Acquire(ctx); err != nil {
			return "", fmt.Errorf("oracle budget wait: %w", err)
		}

		text, err := g.attempt(ctx, messages)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var te *TransientError
		if !errors.As(err, &te) || ctx.Err() != nil {
			break
		}
		retryAfter = te.RetryAfter
	}
	return "", fmt.Errorf("%w: %s: %w", ErrOracleUnavailable, g.provider.Name(), lastErr)
}

func (g *Gateway) attempt(ctx context.Context, messages []Message) (string, error) {
	g.calls.Add(1)
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.provider.ChatComplete(callCtx, messages)
	if err != nil {
		g.failures.Add(1)
		logger.Warn("oracle call failed",
			"provider", g.provider.Name(),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return "", err
	}
	logger.Debug("oracle call completed",
		"provider", g.provider.Name(),
		"duration_ms", time.Since(start).Milliseconds(),
		"response_chars", len(text))
	return text, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping sends a minimal prompt to prove the provider is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	_, err := g.Call(ctx, []Message{
		{Role: RoleSystem, Content: "Health check."},
		{Role: RoleUser, Content: "Reply with the single word OK."},
	})
	return err
}

type classificationPayload struct {
	IsPropertyRelated *bool   `json:"is_property_related"`
	Confidence        float64 `json:"confidence"`
	Category          string  `json:"category"`
	Reasoning         string  `json:"reasoning"`
}

var errMissingVerdict = errors.New("classification without is_property_related")

// Classify decides whether an email is property correspondence. It never
// fails: without a usable oracle answer it falls back to keyword scoring.
func (g *Gateway) Classify(ctx context.Context, email domain.InboundEmail) domain.Classification {
	text, err := g.Call(ctx, classifyPrompt(email))
	if err == nil {
		var p classificationPayload
		if _, err = RecoverJSON(text, &p); err == nil && p.IsPropertyRelated == nil {
			err = errMissingVerdict
		}
		if err == nil {
			return domain.Classification{
				IsPropertyRelated: *p.IsPropertyRelated,
				Confidence:        clamp01(p.Confidence),
				Category:          p.Category,
				Reasoning:         p.Reasoning,
				Method:            domain.ClassifiedByOracle,
			}
		}
	}
	logger.Info("classification falling back to keywords", "email_id", email.ExternalID(), "error", err)
	return KeywordClassify(email)
}

type factsPayload struct {
	Addresses    []string `json:"addresses"`
	MLSNumbers   []string `json:"mls_numbers"`
	LoanNumbers  []string `json:"loan_numbers"`
	ClientNames  []string `json:"client_names"`
	AgentNames   []string `json:"agent_names"`
	PriceChanges []struct {
		Field  string       `json:"field"`
		Amount facts.Amount `json:"amount"`
	} `json:"price_changes"`
	StatusChanges []struct {
		NewStatus string `json:"new_status"`
	} `json:"status_changes"`
	KeyDates []struct {
		Label string `json:"label"`
		Date  string `json:"date"`
	} `json:"key_dates"`
	Tasks []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
		DueDate     string `json:"due_date"`
	} `json:"tasks"`
	Summary string `json:"summary"`
}

func (p factsPayload) toDomain(ref time.Time) domain.ExtractedFacts {
	f := domain.ExtractedFacts{
		Summary: strings.TrimSpace(p.Summary),
		Source:  SourceOracle,
	}
	f = facts.Merge(f, domain.ExtractedFacts{
		Addresses:   p.Addresses,
		ClientNames: p.ClientNames,
		AgentNames:  p.AgentNames,
	})
	for _, v := range p.MLSNumbers {
		if d := facts.DigitsOnly(v); d != "" {
			f.MLSNumbers = append(f.MLSNumbers, d)
		}
	}
	for _, v := range p.LoanNumbers {
		if d := facts.DigitsOnly(v); d != "" {
			f.LoanNumbers = append(f.LoanNumbers, d)
		}
	}
	for _, pc := range p.PriceChanges {
		if pc.Amount > 0 {
			f.PriceChanges = append(f.PriceChanges, domain.PriceChange{
				Field:  facts.PriceField(strings.TrimSuffix(pc.Field, "_price")),
				Amount: float64(pc.Amount),
				Raw:    facts.FormatPrice(float64(pc.Amount)),
			})
		}
	}
	for _, sc := range p.StatusChanges {
		if st, ok := facts.ParseStatus(sc.NewStatus); ok {
			f.StatusChanges = append(f.StatusChanges, domain.StatusChange{NewStatus: st, Raw: sc.NewStatus})
		}
	}
	for _, kd := range p.KeyDates {
		if d, ok := facts.ParseDate(kd.Date, ref); ok {
			f.KeyDates = append(f.KeyDates, domain.KeyDate{Label: strings.ToLower(kd.Label), Date: d, Raw: kd.Date})
		}
	}
	for _, t := range p.Tasks {
		if strings.TrimSpace(t.Title) == "" {
			continue
		}
		hint := domain.TaskHint{Title: t.Title, Description: t.Description, Priority: t.Priority}
		if d, ok := facts.ParseDate(t.DueDate, ref); ok {
			hint.DueDate = &d
		}
		f.Tasks = append(f.Tasks, hint)
	}
	return f
}

// ExtractFacts recovers structured evidence from text. Local identifier
// heuristics are always merged in, so an oracle omission or outage never
// loses hard identifiers. When the oracle answers without usable JSON, its
// prose is scanned with the same heuristics.
func (g *Gateway) ExtractFacts(ctx context.Context, text string) domain.ExtractedFacts {
	ref := g.now()
	local := facts.Extract(text, ref)

	resp, err := g.Call(ctx, factsPrompt(text))
	if err != nil {
		return local
	}

	var p factsPayload
	if parser, perr := RecoverJSON(resp, &p); perr == nil {
		logger.Debug("facts recovered from oracle response", "parser", parser)
		return facts.Merge(p.toDomain(ref), local)
	}

	fromProse := facts.Extract(resp, ref)
	fromProse.Source = SourceOracleText
	return facts.Merge(fromProse, local)
}

type boundaryPayload struct {
	StartPage  int     `json:"start_page"`
	EndPage    int     `json:"end_page"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ProposeBoundaries asks the oracle to group pages into documents. The
// proposal is returned as-is apart from type normalization; coverage repair
// is the splitter's job. An unusable answer is an error so the caller can
// fall back to its rule scan.
func (g *Gateway) ProposeBoundaries(ctx context.Context, summaries []domain.PageSummary, pageCount int) ([]domain.DocumentBoundary, error) {
	resp, err := g.Call(ctx, boundaryPrompt(summaries, pageCount))
	if err != nil {
		return nil, err
	}
	var payload []boundaryPayload
	if _, err := RecoverJSON(resp, &payload); err != nil {
		return nil, fmt.Errorf("boundary proposal: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("boundary proposal: empty")
	}
	out := make([]domain.DocumentBoundary, len(payload))
	for i, b := range payload {
		out[i] = domain.DocumentBoundary{
			StartPage:  b.StartPage,
			EndPage:    b.EndPage,
			Type:       domain.ParseDocumentType(b.Type),
			Confidence: clamp01(b.Confidence),
			Reasoning:  b.Reasoning,
		}
	}
	return out, nil
}

type identifyPayload struct {
	DocumentType string  `json:"document_type"`
	Confidence   float64 `json:"confidence"`
}

// IdentifyDocumentType asks the oracle for a document label.
func (g *Gateway) IdentifyDocumentType(ctx context.Context, text string) (domain.DocumentType, float64, error) {
	resp, err := g.Call(ctx, identifyPrompt(text))
	if err != nil {
		return domain.DocUnknown, 0, err
	}
	var p identifyPayload
	if _, err := RecoverJSON(resp, &p); err != nil {
		return domain.DocUnknown, 0, fmt.Errorf("identify document type: %w", err)
	}
	return domain.ParseDocumentType(p.DocumentType), clamp01(p.Confidence), nil
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
