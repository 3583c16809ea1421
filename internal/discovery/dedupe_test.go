package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeWebsite(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain domain", "acme.com", "acme.com"},
		{"https scheme", "https://acme.com", "acme.com"},
		{"http scheme", "http://acme.com", "acme.com"},
		{"www prefix", "http://www.acme.com", "acme.com"},
		{"trailing slash", "https://Acme.com/", "acme.com"},
		{"mixed case", "HTTPS://WWW.ACME.COM", "acme.com"},
		{"whitespace", "  acme.com  ", "acme.com"},
		{"path preserved", "acme.com/contact", "acme.com/contact"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeWebsite(tt.in))
		})
	}
}

func TestNormalizeWebsiteEquivalence(t *testing.T) {
	// All spellings of the same site must collapse to one key.
	forms := []string{"https://Acme.com/", "acme.com", "http://www.acme.com"}
	for _, f := range forms {
		assert.Equal(t, "acme.com", NormalizeWebsite(f), f)
	}
}

func TestKeyFor(t *testing.T) {
	k, ok := KeyFor(Candidate{Name: " Acme Roofing ", Website: "https://www.acme.com/"})
	require.True(t, ok)
	assert.Equal(t, "acme.com", k.Website)
	assert.Equal(t, "acme roofing", k.Name)

	_, ok = KeyFor(Candidate{Description: "no identity"})
	assert.False(t, ok)
}

func TestDedupeWebsiteBeforeName(t *testing.T) {
	cands := []Candidate{
		{Name: "Acme Roofing", Website: "https://acme.com", RelevanceScore: 0.5},
		{Name: "ACME Roofing Inc", Website: "www.acme.com/", RelevanceScore: 0.4},
		{Name: "acme roofing", Website: "", RelevanceScore: 0.9},
	}

	out := Dedupe(cands)
	require.Len(t, out, 1)
	// Third candidate has no website but its name matches the
	// representative's registered name key; highest score wins.
	assert.Equal(t, 0.9, out[0].RelevanceScore)
}

func TestDedupeHigherScoreKeepsPosition(t *testing.T) {
	cands := []Candidate{
		{Name: "First", Website: "first.com", RelevanceScore: 0.3},
		{Name: "Second", Website: "second.com", RelevanceScore: 0.8},
		{Name: "First Inc", Website: "first.com", RelevanceScore: 0.7},
	}

	out := Dedupe(cands)
	require.Len(t, out, 2)
	// The higher-scoring duplicate replaced the representative in its
	// original first-seen slot.
	assert.Equal(t, "First Inc", out[0].Name)
	assert.Equal(t, "Second", out[1].Name)
}

func TestDedupeTieKeepsFirstSeen(t *testing.T) {
	cands := []Candidate{
		{Name: "Original", Website: "tie.com", RelevanceScore: 0.5},
		{Name: "Duplicate", Website: "tie.com", RelevanceScore: 0.5},
	}

	out := Dedupe(cands)
	require.Len(t, out, 1)
	assert.Equal(t, "Original", out[0].Name)
}

func TestDedupeIdempotent(t *testing.T) {
	cands := []Candidate{
		{Name: "A", Website: "a.com", RelevanceScore: 0.2},
		{Name: "A Corp", Website: "a.com", RelevanceScore: 0.6},
		{Name: "B", RelevanceScore: 0.4},
		{Name: "b", RelevanceScore: 0.4},
		{Name: "C", Website: "c.com", RelevanceScore: 0.1},
	}

	once := Dedupe(cands)
	twice := Dedupe(once)
	assert.Equal(t, once, twice)
}

func TestDedupeKeylessCandidatesPassThrough(t *testing.T) {
	cands := []Candidate{
		{Description: "anonymous one"},
		{Description: "anonymous two"},
	}
	out := Dedupe(cands)
	assert.Len(t, out, 2)
}

func TestTopByScore(t *testing.T) {
	cands := []Candidate{
		{Name: "low", RelevanceScore: 0.1},
		{Name: "high", RelevanceScore: 0.9},
		{Name: "mid-a", RelevanceScore: 0.5},
		{Name: "mid-b", RelevanceScore: 0.5},
	}

	out := TopByScore(cands, 3)
	require.Len(t, out, 3)
	assert.Equal(t, "high", out[0].Name)
	// Stable sort keeps equal scores in first-seen order.
	assert.Equal(t, "mid-a", out[1].Name)
	assert.Equal(t, "mid-b", out[2].Name)

	// max <= 0 means no truncation.
	assert.Len(t, TopByScore(cands, 0), 4)

	// Input is not mutated.
	assert.Equal(t, "low", cands[0].Name)
}

func TestFilterKeywords(t *testing.T) {
	cands := []Candidate{
		{Name: "Acme Marketing", Description: "full service agency"},
		{Name: "Bob's HVAC", Industry: "heating and cooling"},
		{Name: "Directory Listings", Website: "yelp.com/biz/acme"},
	}

	t.Run("include requires a match", func(t *testing.T) {
		out := FilterKeywords(cands, []string{"marketing", "agency"}, nil)
		require.Len(t, out, 1)
		assert.Equal(t, "Acme Marketing", out[0].Name)
	})

	t.Run("exclude drops on any match", func(t *testing.T) {
		out := FilterKeywords(cands, nil, []string{"yelp"})
		assert.Len(t, out, 2)
	})

	t.Run("no keywords passes everything", func(t *testing.T) {
		assert.Len(t, FilterKeywords(cands, nil, nil), 3)
	})

	t.Run("case insensitive", func(t *testing.T) {
		out := FilterKeywords(cands, []string{"HVAC"}, nil)
		require.Len(t, out, 1)
		assert.Equal(t, "Bob's HVAC", out[0].Name)
	})
}
