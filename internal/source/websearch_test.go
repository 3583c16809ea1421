package source

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/pkg/websearch"
)

type mockWebSearchClient struct {
	resp *websearch.SearchResponse
	err  error
}

func (m *mockWebSearchClient) Search(_ context.Context, _ string, _ ...websearch.SearchOption) (*websearch.SearchResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func TestWebSearch(t *testing.T) {
	client := &mockWebSearchClient{resp: &websearch.SearchResponse{
		Code: 200,
		Data: []websearch.SearchResult{
			{
				Title:       "Acme Marketing | Denver's Best Agency",
				URL:         "https://acmemarketing.com/services",
				Description: "Full service marketing agency.",
			},
			{
				Title:   "Beta Digital - Home",
				URL:     "https://betadigital.io",
				Content: "Beta Digital builds brands.",
			},
		},
	}}

	src := NewWebSearchSource(client, 0, nil)
	cands, err := src.Search(context.Background(), "marketing agencies in denver")
	require.NoError(t, err)
	require.Len(t, cands, 2)

	// Titles are cleaned of taglines; URLs reduce to the site host.
	assert.Equal(t, "Acme Marketing", cands[0].Name)
	assert.Equal(t, "acmemarketing.com", cands[0].Website)
	assert.Equal(t, "Full service marketing agency.", cands[0].Description)

	assert.Equal(t, "Beta Digital", cands[1].Name)
	// Content fills in when no description is present.
	assert.Equal(t, "Beta Digital builds brands.", cands[1].Description)

	// Relevance decays with rank.
	assert.Greater(t, cands[0].RelevanceScore, cands[1].RelevanceScore)
}

func TestWebSearchBlocklist(t *testing.T) {
	client := &mockWebSearchClient{resp: &websearch.SearchResponse{
		Code: 200,
		Data: []websearch.SearchResult{
			{Title: "Top 10 Agencies", URL: "https://www.clutch.co/agencies"},
			{Title: "Real Agency", URL: "https://realagency.com"},
		},
	}}

	src := NewWebSearchSource(client, 0, []string{"clutch.co"})
	cands, err := src.Search(context.Background(), "agencies")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "Real Agency", cands[0].Name)
}

func TestWebSearchEmptyResults(t *testing.T) {
	client := &mockWebSearchClient{resp: &websearch.SearchResponse{Code: 422}}
	src := NewWebSearchSource(client, 0, nil)

	cands, err := src.Search(context.Background(), "no matches")
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestRankScoreFloor(t *testing.T) {
	assert.Equal(t, 0.6, rankScore(0))
	assert.Equal(t, 0.05, rankScore(50))
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Acme", cleanTitle("Acme | Best in Town"))
	assert.Equal(t, "Acme", cleanTitle("Acme - Best in Town"))
	assert.Equal(t, "Plain Title", cleanTitle("Plain Title"))
}

func TestSnippet(t *testing.T) {
	long := strings.Repeat("word ", 100)
	s := snippet(long, 240)
	assert.LessOrEqual(t, len(s), 240)
	assert.False(t, strings.HasSuffix(s, " "))
	assert.Equal(t, "short", snippet("  short  ", 240))
}
