// Package intent defines reusable discovery templates and resolves them,
// with caller overrides, into the frozen configuration a run executes.
package intent

// Limits bounds a single discovery run.
type Limits struct {
	MaxCompanies int   `json:"max_companies" yaml:"max_companies"`
	MaxLeads     int   `json:"max_leads" yaml:"max_leads"`
	TimeBudgetMs int64 `json:"time_budget_ms" yaml:"time_budget_ms"`
}

// Intent is an immutable discovery template. Defined at deploy time,
// resolved at run-request time, never mutated.
type Intent struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	Description     string   `json:"description,omitempty" yaml:"description"`
	Category        string   `json:"category,omitempty" yaml:"category"`
	Countries       []string `json:"countries,omitempty" yaml:"countries"`
	Channels        []string `json:"channels" yaml:"channels"`
	Queries         []string `json:"queries" yaml:"queries"`
	IncludeKeywords []string `json:"include_keywords,omitempty" yaml:"include_keywords"`
	ExcludeKeywords []string `json:"exclude_keywords,omitempty" yaml:"exclude_keywords"`
	Limits          Limits   `json:"limits" yaml:"limits"`
	Disabled        bool     `json:"disabled,omitempty" yaml:"disabled"`
}

// Overrides narrows or replaces parts of an intent at run-request time.
// Zero values leave the intent's own settings in place.
type Overrides struct {
	Queries         []string `json:"queries,omitempty"`
	Channels        []string `json:"channels,omitempty"`
	IncludeKeywords []string `json:"include_keywords,omitempty"`
	ExcludeKeywords []string `json:"exclude_keywords,omitempty"`
	MaxCompanies    int      `json:"max_companies,omitempty"`
	MaxLeads        int      `json:"max_leads,omitempty"`
	TimeBudgetMs    int64    `json:"time_budget_ms,omitempty"`
}

// ResolvedConfig is the frozen configuration snapshot a run executes.
// Clamped records every override that was reduced to a system ceiling,
// for transparency in the persisted run record.
type ResolvedConfig struct {
	IntentID        string   `json:"intent_id"`
	IntentName      string   `json:"intent_name"`
	Countries       []string `json:"countries,omitempty"`
	Channels        []string `json:"channels"`
	Queries         []string `json:"queries"`
	IncludeKeywords []string `json:"include_keywords,omitempty"`
	ExcludeKeywords []string `json:"exclude_keywords,omitempty"`
	Limits          Limits   `json:"limits"`
	Clamped         []string `json:"clamped,omitempty"`

	// Deterministic summary counts for audit logging, independent of
	// the full query text.
	QueriesCount         int `json:"queries_count"`
	IncludeKeywordsCount int `json:"include_keywords_count"`
	ExcludeKeywordsCount int `json:"exclude_keywords_count"`
}
