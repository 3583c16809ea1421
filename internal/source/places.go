// Package source adapts external search APIs into discovery channels.
// Each adapter rate-limits its upstream, filters directory sites, and
// scores results so the engine can rank candidates across channels.
package source

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/pkg/places"
)

// ChannelPlaces identifies the Places adapter in intent channel lists.
const ChannelPlaces = "places"

// PlacesSource adapts the Places text search API to the discovery
// engine's Searcher contract.
type PlacesSource struct {
	client    places.Client
	limiter   *rate.Limiter
	blocklist []string
}

// NewPlacesSource creates a PlacesSource. rps caps upstream calls per
// second; rps <= 0 disables limiting. blocklist domains are dropped
// from results.
func NewPlacesSource(client places.Client, rps float64, blocklist []string) *PlacesSource {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &PlacesSource{
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		blocklist: blocklist,
	}
}

// Search runs one text query and converts places into candidates.
func (s *PlacesSource) Search(ctx context.Context, query string) ([]discovery.Candidate, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "source: places rate limit")
	}

	resp, err := s.client.TextSearch(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "source: places search")
	}

	cands := make([]discovery.Candidate, 0, len(resp.Places))
	for _, p := range resp.Places {
		if p.DisplayName.Text == "" && p.WebsiteURI == "" {
			continue
		}
		if blocked(p.WebsiteURI, s.blocklist) {
			continue
		}

		raw, _ := json.Marshal(p)
		cands = append(cands, discovery.Candidate{
			Name:           p.DisplayName.Text,
			Website:        p.WebsiteURI,
			Phone:          p.NationalPhoneNumber,
			Description:    p.EditorialSummary.Text,
			Industry:       p.PrimaryTypeDisplayName.Text,
			RelevanceScore: placeScore(p),
			RawMetadata:    raw,
		})
	}
	return cands, nil
}

// placeScore maps a place's rating signal onto [0, 1]. Rating carries
// most of the weight; the review count breaks ties between similarly
// rated places, saturating at 250 reviews.
func placeScore(p places.Place) float64 {
	score := p.Rating / 5.0 * 0.8

	count := float64(p.UserRatingCount)
	if count > 250 {
		count = 250
	}
	score += count / 250 * 0.2

	if score > 1 {
		score = 1
	}
	return score
}

func blocked(website string, blocklist []string) bool {
	if website == "" {
		return false
	}
	domain := discovery.NormalizeWebsite(website)
	for _, b := range blocklist {
		b = strings.ToLower(strings.TrimSpace(b))
		if b != "" && strings.Contains(domain, b) {
			return true
		}
	}
	return false
}
