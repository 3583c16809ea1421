package intent

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrUnknownIntent is returned when the requested intent id does not
// match a registered, active intent.
var ErrUnknownIntent = eris.New("intent: unknown intent")

// Ceilings are the system-wide hard limits no run may exceed,
// regardless of what an intent or its overrides ask for.
type Ceilings struct {
	MaxCompanies int
	MaxLeads     int
	MaxQueries   int
	TimeBudgetMs int64

	// DefaultTimeBudgetMs applies when neither the intent nor the
	// overrides specify a budget.
	DefaultTimeBudgetMs int64
}

// Resolver expands intents into concrete run configurations.
type Resolver struct {
	registry *Registry
	ceilings Ceilings
}

// NewResolver creates a Resolver bound to a registry and ceilings.
func NewResolver(registry *Registry, ceilings Ceilings) *Resolver {
	return &Resolver{registry: registry, ceilings: ceilings}
}

// Resolve expands the named intent plus optional overrides into a
// ResolvedConfig. Overrides that exceed a system ceiling are clamped,
// not rejected; each clamp is recorded on the returned config.
func (r *Resolver) Resolve(intentID string, ov *Overrides) (*ResolvedConfig, error) {
	it, ok := r.registry.Get(intentID)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownIntent, "%q", intentID)
	}

	cfg := &ResolvedConfig{
		IntentID:        it.ID,
		IntentName:      it.Name,
		Countries:       cloneStrings(it.Countries),
		Channels:        cloneStrings(it.Channels),
		Queries:         cloneStrings(it.Queries),
		IncludeKeywords: cloneStrings(it.IncludeKeywords),
		ExcludeKeywords: cloneStrings(it.ExcludeKeywords),
		Limits:          it.Limits,
	}

	if ov != nil {
		if len(ov.Queries) > 0 {
			cfg.Queries = cloneStrings(ov.Queries)
		}
		if len(ov.Channels) > 0 {
			cfg.Channels = cloneStrings(ov.Channels)
		}
		if len(ov.IncludeKeywords) > 0 {
			cfg.IncludeKeywords = cloneStrings(ov.IncludeKeywords)
		}
		if len(ov.ExcludeKeywords) > 0 {
			cfg.ExcludeKeywords = cloneStrings(ov.ExcludeKeywords)
		}
		if ov.MaxCompanies > 0 {
			cfg.Limits.MaxCompanies = ov.MaxCompanies
		}
		if ov.MaxLeads > 0 {
			cfg.Limits.MaxLeads = ov.MaxLeads
		}
		if ov.TimeBudgetMs > 0 {
			cfg.Limits.TimeBudgetMs = ov.TimeBudgetMs
		}
	}

	r.clamp(cfg)

	if cfg.Limits.TimeBudgetMs <= 0 {
		cfg.Limits.TimeBudgetMs = r.ceilings.DefaultTimeBudgetMs
	}

	cfg.QueriesCount = len(cfg.Queries)
	cfg.IncludeKeywordsCount = len(cfg.IncludeKeywords)
	cfg.ExcludeKeywordsCount = len(cfg.ExcludeKeywords)

	return cfg, nil
}

func (r *Resolver) clamp(cfg *ResolvedConfig) {
	if max := r.ceilings.MaxCompanies; max > 0 && cfg.Limits.MaxCompanies > max {
		cfg.Clamped = append(cfg.Clamped, fmt.Sprintf("max_companies %d -> %d", cfg.Limits.MaxCompanies, max))
		cfg.Limits.MaxCompanies = max
	}
	if max := r.ceilings.MaxLeads; max > 0 && cfg.Limits.MaxLeads > max {
		cfg.Clamped = append(cfg.Clamped, fmt.Sprintf("max_leads %d -> %d", cfg.Limits.MaxLeads, max))
		cfg.Limits.MaxLeads = max
	}
	if max := r.ceilings.TimeBudgetMs; max > 0 && cfg.Limits.TimeBudgetMs > max {
		cfg.Clamped = append(cfg.Clamped, fmt.Sprintf("time_budget_ms %d -> %d", cfg.Limits.TimeBudgetMs, max))
		cfg.Limits.TimeBudgetMs = max
	}
	if max := r.ceilings.MaxQueries; max > 0 && len(cfg.Queries) > max {
		cfg.Clamped = append(cfg.Clamped, fmt.Sprintf("queries %d -> %d", len(cfg.Queries), max))
		cfg.Queries = cfg.Queries[:max]
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
