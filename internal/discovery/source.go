package discovery

import (
	"context"

	"github.com/rotisserie/eris"
)

// Searcher is a single candidate source channel. Implementations must
// return an empty slice (not an error) for "no results"; an error means
// the call itself failed.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
}

// SourceRegistry maps channel identifiers to searchers.
type SourceRegistry struct {
	channels map[string]Searcher
}

// NewSourceRegistry creates an empty registry.
func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{channels: make(map[string]Searcher)}
}

// Register binds a channel identifier to a searcher, replacing any
// previous binding.
func (r *SourceRegistry) Register(channel string, s Searcher) {
	r.channels[channel] = s
}

// Channels returns the registered channel identifiers.
func (r *SourceRegistry) Channels() []string {
	out := make([]string, 0, len(r.channels))
	for ch := range r.channels {
		out = append(out, ch)
	}
	return out
}

// Search runs one query against one channel, stamping the channel onto
// each returned candidate.
func (r *SourceRegistry) Search(ctx context.Context, channel, query string) ([]Candidate, error) {
	s, ok := r.channels[channel]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownChannel, "%q", channel)
	}

	cands, err := s.Search(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: search channel %s", channel)
	}
	for i := range cands {
		cands[i].Channel = channel
	}
	return cands, nil
}
