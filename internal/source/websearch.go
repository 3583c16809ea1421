package source

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/pkg/websearch"
)

// ChannelWebSearch identifies the web search adapter in intent channel
// lists.
const ChannelWebSearch = "websearch"

// WebSearchSource adapts the web search API to the discovery engine's
// Searcher contract.
type WebSearchSource struct {
	client    websearch.Client
	limiter   *rate.Limiter
	blocklist []string
}

// NewWebSearchSource creates a WebSearchSource. rps caps upstream calls
// per second; rps <= 0 disables limiting.
func NewWebSearchSource(client websearch.Client, rps float64, blocklist []string) *WebSearchSource {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &WebSearchSource{
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		blocklist: blocklist,
	}
}

// Search runs one query and converts results into candidates. Search
// results are rank-ordered, so relevance decays with position.
func (s *WebSearchSource) Search(ctx context.Context, query string) ([]discovery.Candidate, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "source: websearch rate limit")
	}

	resp, err := s.client.Search(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "source: websearch")
	}

	cands := make([]discovery.Candidate, 0, len(resp.Data))
	for i, r := range resp.Data {
		site := resultWebsite(r.URL)
		if site == "" && r.Title == "" {
			continue
		}
		if blocked(site, s.blocklist) {
			continue
		}

		desc := r.Description
		if desc == "" {
			desc = snippet(r.Content, 240)
		}

		raw, _ := json.Marshal(r)
		cands = append(cands, discovery.Candidate{
			Name:           cleanTitle(r.Title),
			Website:        site,
			Description:    desc,
			RelevanceScore: rankScore(i),
			RawMetadata:    raw,
		})
	}
	return cands, nil
}

// rankScore decays relevance with result position: the first result
// scores 0.6, each following one slightly less.
func rankScore(position int) float64 {
	score := 0.6 - float64(position)*0.05
	if score < 0.05 {
		score = 0.05
	}
	return score
}

// resultWebsite reduces a result URL to its site root, dropping the
// path so candidates dedupe against the company's domain.
func resultWebsite(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}

// cleanTitle strips common "Name | Tagline" and "Name - Tagline"
// suffixes from page titles.
func cleanTitle(title string) string {
	for _, sep := range []string{" | ", " - ", " – "} {
		if i := strings.Index(title, sep); i > 0 {
			title = title[:i]
			break
		}
	}
	return strings.TrimSpace(title)
}

func snippet(content string, max int) string {
	content = strings.TrimSpace(content)
	if len(content) <= max {
		return content
	}
	cut := content[:max]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut
}
