package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/intent"
)

func testResolver(intents ...intent.Intent) *intent.Resolver {
	return intent.NewResolver(intent.NewRegistry(intents...), intent.Ceilings{
		MaxCompanies:        500,
		MaxLeads:            500,
		MaxQueries:          50,
		TimeBudgetMs:        600_000,
		DefaultTimeBudgetMs: 120_000,
	})
}

func testIntent() intent.Intent {
	return intent.Intent{
		ID:       "test-intent",
		Name:     "Test Intent",
		Channels: []string{"places", "websearch"},
		Queries:  []string{"roofers in austin"},
		Limits:   intent.Limits{MaxCompanies: 10, MaxLeads: 5},
	}
}

func newTestEngine(store *mockRunStore, sources *SourceRegistry, companies *mockCompanyStore, intents ...intent.Intent) *Engine {
	mat := NewMaterializer(store, companies)
	return NewEngine(store, sources, testResolver(intents...), mat)
}

// slowSearcher delays each call so short time budgets expire mid-run.
type slowSearcher struct {
	inner Searcher
}

func (s *slowSearcher) Search(ctx context.Context, query string) ([]Candidate, error) {
	time.Sleep(5 * time.Millisecond)
	return s.inner.Search(ctx, query)
}

func TestStartUnknownIntent(t *testing.T) {
	store := newMockRunStore()
	e := newTestEngine(store, NewSourceRegistry(), &mockCompanyStore{}, testIntent())

	_, err := e.Start(context.Background(), StartRequest{IntentID: "nope", DryRun: true})
	require.Error(t, err)
	assert.True(t, eris.Is(err, intent.ErrUnknownIntent))
	// Config errors surface before any run record exists.
	assert.Empty(t, store.runs)
}

func TestStartDryRunCompletes(t *testing.T) {
	store := newMockRunStore()
	sources := NewSourceRegistry()
	sources.Register("places", &mockSearcher{results: map[string][]Candidate{
		"roofers in austin": {
			{Name: "Acme Roofing", Website: "acme.com", RelevanceScore: 0.9},
			{Name: "Best Roofs", Website: "bestroofs.com", RelevanceScore: 0.7},
		},
	}})
	sources.Register("websearch", &mockSearcher{results: map[string][]Candidate{
		"roofers in austin": {
			// Duplicate of Acme via a different website spelling.
			{Name: "Acme Roofing LLC", Website: "https://www.acme.com/", RelevanceScore: 0.8},
			{Name: "Third Roofer", Website: "third.com", RelevanceScore: 0.5},
		},
	}})

	companies := &mockCompanyStore{}
	e := newTestEngine(store, sources, companies, testIntent())

	run, err := e.Start(context.Background(), StartRequest{
		IntentID:    "test-intent",
		DryRun:      true,
		TriggeredBy: "user",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, SourceManual, run.SourceClass)
	assert.True(t, run.DryRun)

	// Four gathered, one duplicate collapsed.
	require.Len(t, run.Results, 3)
	assert.Equal(t, 4, run.Stats["gathered"])
	assert.Equal(t, 3, run.Stats["total_after_dedupe"])

	// Dry run creates nothing.
	assert.Empty(t, companies.companies)

	// Results are ordered by descending relevance.
	assert.Equal(t, "Acme Roofing", run.Results[0].Name)

	// Every candidate is stamped with its channel.
	for _, c := range run.Results {
		assert.NotEmpty(t, c.Channel)
	}

	// The audit trail got the final candidate set.
	assert.Len(t, store.auditByRun[run.ID], 3)
}

func TestStartCapsAtMaxCompanies(t *testing.T) {
	it := testIntent()
	it.Limits.MaxCompanies = 2

	store := newMockRunStore()
	sources := NewSourceRegistry()
	sources.Register("places", &mockSearcher{results: map[string][]Candidate{
		"roofers in austin": {
			{Name: "A", Website: "a.com", RelevanceScore: 0.9},
			{Name: "B", Website: "b.com", RelevanceScore: 0.3},
		},
	}})
	sources.Register("websearch", &mockSearcher{results: map[string][]Candidate{
		"roofers in austin": {
			{Name: "C", Website: "c.com", RelevanceScore: 0.6},
		},
	}})

	e := newTestEngine(store, sources, &mockCompanyStore{}, it)

	run, err := e.Start(context.Background(), StartRequest{IntentID: "test-intent", DryRun: true})
	require.NoError(t, err)
	require.Len(t, run.Results, 2)
	assert.Equal(t, "A", run.Results[0].Name)
	assert.Equal(t, "C", run.Results[1].Name)
	// Stats still report the full pre-cap pool.
	assert.Equal(t, 3, run.Stats["total_after_dedupe"])
}

func TestStartLiveRunMaterializes(t *testing.T) {
	store := newMockRunStore()
	sources := NewSourceRegistry()
	sources.Register("places", &mockSearcher{results: map[string][]Candidate{
		"roofers in austin": {
			{Name: "Acme Roofing", Website: "acme.com", Email: "info@acme.com", RelevanceScore: 0.9},
		},
	}})
	sources.Register("websearch", &mockSearcher{})

	companies := &mockCompanyStore{}
	e := newTestEngine(store, sources, companies, testIntent())

	run, err := e.Start(context.Background(), StartRequest{IntentID: "test-intent", DryRun: false})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 1, run.CreatedCompaniesCount)
	assert.Equal(t, 1, run.CreatedContactsCount)
	assert.Equal(t, 1, run.CreatedLeadsCount)

	require.Len(t, companies.companies, 1)
	assert.Equal(t, run.ID, companies.companies[0].DiscoveredByRun)
	assert.Equal(t, "places", companies.companies[0].SourceChannel)
}

func TestStartSourceErrorsAreNonFatal(t *testing.T) {
	store := newMockRunStore()
	sources := NewSourceRegistry()
	sources.Register("places", &mockSearcher{err: eris.New("quota exceeded")})
	sources.Register("websearch", &mockSearcher{results: map[string][]Candidate{
		"roofers in austin": {
			{Name: "Survivor", Website: "survivor.com", RelevanceScore: 0.4},
		},
	}})

	e := newTestEngine(store, sources, &mockCompanyStore{}, testIntent())

	run, err := e.Start(context.Background(), StartRequest{IntentID: "test-intent", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, StatusCompletedWithErrors, run.Status)
	require.Len(t, run.Results, 1)
	assert.Equal(t, "Survivor", run.Results[0].Name)
	assert.Equal(t, 1, run.Stats["source_errors"])
}

func TestStartCancellationAtCheckpoint(t *testing.T) {
	store := newMockRunStore()
	// First poll observes the request: the run stops before any search.
	store.cancelAfterPolls = 1

	sources := NewSourceRegistry()
	sources.Register("places", &mockSearcher{results: map[string][]Candidate{
		"roofers in austin": {{Name: "Never Seen", Website: "never.com"}},
	}})
	sources.Register("websearch", &mockSearcher{})

	companies := &mockCompanyStore{}
	e := newTestEngine(store, sources, companies, testIntent())

	run, err := e.Start(context.Background(), StartRequest{IntentID: "test-intent", DryRun: false})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, run.Status)
	assert.Empty(t, run.Results)
	// A cancelled run never materializes, even when dry_run is false.
	assert.Empty(t, companies.companies)
}

func TestStartCancellationMidway(t *testing.T) {
	store := newMockRunStore()
	// One checkpoint per channel plus one per query: with two channels
	// and one query the polls go channel, query, channel, query. The
	// third poll lands before the second channel's query runs.
	store.cancelAfterPolls = 3

	first := &mockSearcher{results: map[string][]Candidate{
		"roofers in austin": {{Name: "Partial", Website: "partial.com", RelevanceScore: 0.5}},
	}}
	second := &mockSearcher{results: map[string][]Candidate{
		"roofers in austin": {{Name: "Late", Website: "late.com", RelevanceScore: 0.9}},
	}}

	it := testIntent()
	it.Channels = []string{"first", "second"}
	sources := NewSourceRegistry()
	sources.Register("first", first)
	sources.Register("second", second)

	e := newTestEngine(store, sources, &mockCompanyStore{}, it)

	run, err := e.Start(context.Background(), StartRequest{IntentID: "test-intent", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, run.Status)
	// Partial results gathered before the checkpoint are preserved.
	require.Len(t, run.Results, 1)
	assert.Equal(t, "Partial", run.Results[0].Name)
	assert.Empty(t, second.calls)
}

func TestStartContextCancellation(t *testing.T) {
	store := newMockRunStore()
	sources := NewSourceRegistry()
	sources.Register("places", &mockSearcher{})
	sources.Register("websearch", &mockSearcher{})

	e := newTestEngine(store, sources, &mockCompanyStore{}, testIntent())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := e.Start(ctx, StartRequest{IntentID: "test-intent", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, run.Status)
}

func TestStartTimeBudgetExhaustion(t *testing.T) {
	it := testIntent()
	it.Limits.TimeBudgetMs = 1

	store := newMockRunStore()
	slow := &mockSearcher{results: map[string][]Candidate{
		"roofers in austin": {{Name: "Quick", Website: "quick.com", RelevanceScore: 0.5}},
	}}
	sources := NewSourceRegistry()
	sources.Register("places", &slowSearcher{inner: slow})
	sources.Register("websearch", &mockSearcher{})

	e := newTestEngine(store, sources, &mockCompanyStore{}, it)

	run, err := e.Start(context.Background(), StartRequest{IntentID: "test-intent", DryRun: true})
	require.NoError(t, err)
	// Budget exhaustion is normal completion, not failure.
	assert.Contains(t, []Status{StatusCompleted, StatusCompletedWithErrors}, run.Status)
	assert.Equal(t, true, run.Stats["budget_exhausted"])
}

func TestStartAutomatedSourceClass(t *testing.T) {
	store := newMockRunStore()
	sources := NewSourceRegistry()
	sources.Register("places", &mockSearcher{})
	sources.Register("websearch", &mockSearcher{})

	e := newTestEngine(store, sources, &mockCompanyStore{}, testIntent())

	run, err := e.Start(context.Background(), StartRequest{
		IntentID:    "test-intent",
		DryRun:      true,
		Mode:        ModeDaily,
		TriggeredBy: "cron",
	})
	require.NoError(t, err)
	assert.Equal(t, SourceAutomated, run.SourceClass)
}

func TestStartUnknownChannelRecordedAsSourceError(t *testing.T) {
	it := testIntent()
	it.Channels = []string{"nonexistent"}

	store := newMockRunStore()
	e := newTestEngine(store, NewSourceRegistry(), &mockCompanyStore{}, it)

	run, err := e.Start(context.Background(), StartRequest{IntentID: "test-intent", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, StatusCompletedWithErrors, run.Status)
	assert.Equal(t, 1, run.Stats["source_errors"])
}
