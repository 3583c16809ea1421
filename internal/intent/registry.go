package intent

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/prospect-cli/internal/db"
)

// Registry holds the registered intents, keyed by id. It is populated
// once at process start and read-only afterwards.
type Registry struct {
	intents map[string]Intent
}

// NewRegistry builds a registry from the given intents. Later entries
// with a duplicate id replace earlier ones, so file-defined intents can
// shadow built-in defaults.
func NewRegistry(intents ...Intent) *Registry {
	m := make(map[string]Intent, len(intents))
	for _, it := range intents {
		if it.ID == "" {
			continue
		}
		m[it.ID] = it
	}
	return &Registry{intents: m}
}

// LoadRegistry loads intents from a YAML file merged over the built-in
// defaults. A missing file is not an error; the defaults apply.
func LoadRegistry(path string) (*Registry, error) {
	intents := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			zap.L().Debug("no intent file, using built-in defaults", zap.String("path", path))
			return NewRegistry(intents...), nil
		}
		return nil, eris.Wrapf(err, "intent: read %s", path)
	}

	var file struct {
		Intents []Intent `yaml:"intents"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "intent: parse %s", path)
	}

	intents = append(intents, file.Intents...)
	zap.L().Info("loaded intents",
		zap.String("path", path),
		zap.Int("from_file", len(file.Intents)),
	)
	return NewRegistry(intents...), nil
}

// Get returns the intent with the given id. Disabled intents are not
// returned.
func (r *Registry) Get(id string) (Intent, bool) {
	it, ok := r.intents[id]
	if !ok || it.Disabled {
		return Intent{}, false
	}
	return it, true
}

// All returns every active intent ordered by id.
func (r *Registry) All() []Intent {
	out := make([]Intent, 0, len(r.intents))
	for _, it := range r.intents {
		if !it.Disabled {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Seed upserts the registry's intents into the intents table so
// reporting queries can join run records against their templates.
func (r *Registry) Seed(ctx context.Context, pool db.Pool) (int64, error) {
	all := r.All()
	if len(all) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(all))
	now := time.Now().UTC()
	for _, it := range all {
		cfg, err := yaml.Marshal(it)
		if err != nil {
			return 0, eris.Wrapf(err, "intent: marshal %s", it.ID)
		}
		rows = append(rows, []any{it.ID, it.Name, it.Category, string(cfg), now})
	}

	return db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        "intents",
		Columns:      []string{"id", "name", "category", "definition", "updated_at"},
		ConflictKeys: []string{"id"},
	}, rows)
}

// Defaults returns the built-in intent templates.
func Defaults() []Intent {
	return []Intent{
		{
			ID:          "marketing-agencies",
			Name:        "Marketing agencies",
			Description: "Independent marketing and advertising agencies",
			Category:    "professional-services",
			Countries:   []string{"US"},
			Channels:    []string{"places", "websearch"},
			Queries: []string{
				"marketing agency",
				"digital marketing agency",
				"advertising agency",
			},
			IncludeKeywords: []string{"marketing", "advertising", "agency"},
			ExcludeKeywords: []string{"franchise", "jobs"},
			Limits:          Limits{MaxCompanies: 100, MaxLeads: 50, TimeBudgetMs: 120000},
		},
		{
			ID:          "hvac-contractors",
			Name:        "HVAC contractors",
			Description: "Residential and commercial HVAC service companies",
			Category:    "home-services",
			Countries:   []string{"US"},
			Channels:    []string{"places"},
			Queries: []string{
				"hvac contractor",
				"air conditioning repair",
				"furnace installation",
			},
			ExcludeKeywords: []string{"supply", "wholesale"},
			Limits:          Limits{MaxCompanies: 150, MaxLeads: 75, TimeBudgetMs: 180000},
		},
	}
}
