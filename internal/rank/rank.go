// Package rank orders memory claims by source trust, model capability,
// textual relevance and recency. It has no I/O and no shared state, so the
// same code serves the native process and embedded bindings.
package rank

import (
	"sort"

	"github.com/k0sti/snowclaw-memory/internal/model"
)

// DefaultTrustWeight applies to sources matching no configured preference.
const DefaultTrustWeight = 0.5

// Scored is a claim with the relevance assigned by the search stage.
type Scored struct {
	Memory    model.Memory `json:"memory"`
	Relevance float64      `json:"relevance"`
}

// SourceWeight returns the trust weight for m. The first preference whose
// npub equals the source, or whose group equals the claim's group, wins.
func SourceWeight(cfg *model.MemoryConfig, m *model.Memory) float64 {
	if cfg == nil {
		return DefaultTrustWeight
	}
	for _, p := range cfg.Sources {
		if p.ForNpub != "" && p.ForNpub == m.Source {
			return p.Weight
		}
		if p.ForGroup != "" && m.Tier.IsGroup() && p.ForGroup == m.Tier.Group {
			return p.Weight
		}
	}
	return DefaultTrustWeight
}

// ModelTier classifies a model name against cfg's tier lists.
func ModelTier(cfg *model.MemoryConfig, name string) int {
	if cfg == nil {
		return model.UnrankedTier
	}
	return cfg.CompileTiers().Classify(name)
}

type entry struct {
	res        model.SearchResult
	superseded bool
}

// Rank returns in ordered best first. Precedence, strongest first:
//
//  1. claims superseded by another claim of the input sink below the rest
//  2. source trust weight
//  3. model tier (tier 1 best, unranked last)
//  4. relevance
//  5. created_at, newer first
//  6. id, ascending
//
// Rank fields are 1-based positions.
func Rank(cfg *model.MemoryConfig, in []Scored) []model.SearchResult {
	out := make([]model.SearchResult, 0, len(in))
	if len(in) == 0 {
		return out
	}

	var tiers model.TierMatchers
	if cfg != nil {
		tiers = cfg.CompileTiers()
	}

	supersededIDs := make(map[string]bool, len(in))
	for i := range in {
		if s := in[i].Memory.Supersedes; s != "" {
			supersededIDs[s] = true
		}
	}

	entries := make([]entry, len(in))
	for i := range in {
		m := in[i].Memory
		entries[i] = entry{
			res: model.SearchResult{
				Memory:    m,
				Score:     in[i].Relevance,
				Trust:     SourceWeight(cfg, &m),
				ModelTier: tiers.Classify(m.Model),
			},
			superseded: supersededIDs[m.ID],
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return less(&entries[i], &entries[j])
	})

	for i := range entries {
		entries[i].res.Rank = i + 1
		out = append(out, entries[i].res)
	}
	return out
}

func less(a, b *entry) bool {
	if a.superseded != b.superseded {
		return !a.superseded
	}
	if a.res.Trust != b.res.Trust {
		return a.res.Trust > b.res.Trust
	}
	if a.res.ModelTier != b.res.ModelTier {
		return a.res.ModelTier < b.res.ModelTier
	}
	if a.res.Score != b.res.Score {
		return a.res.Score > b.res.Score
	}
	if a.res.Memory.CreatedAt != b.res.Memory.CreatedAt {
		return a.res.Memory.CreatedAt > b.res.Memory.CreatedAt
	}
	return a.res.Memory.ID < b.res.Memory.ID
}
