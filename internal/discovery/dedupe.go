package discovery

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

var nameFolder = cases.Fold()

// NormalizeWebsite reduces a website value to its dedupe form:
// lowercase, scheme stripped, leading "www." stripped, one trailing
// slash stripped. Returns "" when no usable value remains.
func NormalizeWebsite(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimSuffix(s, "/")
	return s
}

// NormalizeName reduces a name to its case-insensitive dedupe form.
func NormalizeName(raw string) string {
	return nameFolder.String(strings.TrimSpace(raw))
}

// Key is the two-stage dedupe identity of a candidate or record.
// Website matching is evaluated first; name matching applies only when
// no website match is possible.
type Key struct {
	Website string
	Name    string
}

// KeyFor computes the dedupe key for a candidate. ok is false when the
// candidate carries neither a usable website nor a name; such a
// candidate is unique by definition but invalid for materialization.
func KeyFor(c Candidate) (Key, bool) {
	k := Key{
		Website: NormalizeWebsite(c.Website),
		Name:    NormalizeName(c.Name),
	}
	return k, k.Website != "" || k.Name != ""
}

// Dedupe collapses duplicates in first-seen order, keeping one
// representative per key. Among duplicates the highest relevance score
// wins; ties keep the first-seen candidate. Running Dedupe on its own
// output yields the same sequence.
func Dedupe(cands []Candidate) []Candidate {
	reps := make([]Candidate, 0, len(cands))
	byWebsite := make(map[string]int)
	byName := make(map[string]int)

	for _, c := range cands {
		k, ok := KeyFor(c)
		if !ok {
			reps = append(reps, c)
			continue
		}

		slot := -1
		if k.Website != "" {
			if i, hit := byWebsite[k.Website]; hit {
				slot = i
			}
		}
		if slot < 0 && k.Name != "" {
			if i, hit := byName[k.Name]; hit {
				slot = i
			}
		}

		if slot < 0 {
			reps = append(reps, c)
			slot = len(reps) - 1
		} else if c.RelevanceScore > reps[slot].RelevanceScore {
			// Higher-scoring duplicate replaces the representative but
			// keeps its first-seen position.
			reps[slot] = c
		}

		// Register both keys so later variants of either identity
		// collapse into the same slot.
		if k.Website != "" {
			if _, hit := byWebsite[k.Website]; !hit {
				byWebsite[k.Website] = slot
			}
		}
		if k.Name != "" {
			if _, hit := byName[k.Name]; !hit {
				byName[k.Name] = slot
			}
		}
	}

	return reps
}

// TopByScore orders candidates by descending relevance score (stable,
// so equal scores keep first-seen order) and truncates to max when
// max > 0.
func TopByScore(cands []Candidate, max int) []Candidate {
	out := make([]Candidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// FilterKeywords applies include/exclude keyword filters. A candidate
// is dropped when include terms are non-empty and none match, or when
// any exclude term matches. Matching is case-insensitive over the
// candidate's name, description, industry and website.
func FilterKeywords(cands []Candidate, include, exclude []string) []Candidate {
	if len(include) == 0 && len(exclude) == 0 {
		return cands
	}

	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		text := strings.ToLower(c.Name + " " + c.Description + " " + c.Industry + " " + c.Website)

		if len(include) > 0 && !matchesAny(text, include) {
			continue
		}
		if matchesAny(text, exclude) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func matchesAny(text string, terms []string) bool {
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(text, term) {
			return true
		}
	}
	return false
}
