// Package conflict detects and arbitrates disagreeing claims.
//
// Claims linked through supersedes are versions of one claim, not a
// disagreement, so chains are collapsed to their newest member before
// grouping by topic.
package conflict

import (
	"sort"

	"github.com/k0sti/snowclaw-memory/internal/model"
	"github.com/k0sti/snowclaw-memory/internal/rank"
)

// unionFind over claim indexes.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}

// Heads collapses every supersedes chain in memories to its most
// superseding member and returns those heads plus the unchained claims,
// in input order. Duplicate ids keep the first occurrence.
func Heads(memories []model.Memory) []model.Memory {
	index := make(map[string]int, len(memories))
	uniq := make([]model.Memory, 0, len(memories))
	for _, m := range memories {
		if _, dup := index[m.ID]; dup {
			continue
		}
		index[m.ID] = len(uniq)
		uniq = append(uniq, m)
	}

	uf := newUnionFind(len(uniq))
	superseded := make(map[string]bool)
	for i, m := range uniq {
		if m.Supersedes == "" {
			continue
		}
		if j, ok := index[m.Supersedes]; ok {
			uf.union(i, j)
			superseded[m.Supersedes] = true
		}
	}

	best := make(map[int]int)
	for i := range uniq {
		root := uf.find(i)
		cur, ok := best[root]
		if !ok || betterHead(&uniq[i], &uniq[cur], superseded) {
			best[root] = i
		}
	}

	heads := make([]model.Memory, 0, len(best))
	for i := range uniq {
		if best[uf.find(i)] == i {
			heads = append(heads, uniq[i])
		}
	}
	return heads
}

func betterHead(a, b *model.Memory, superseded map[string]bool) bool {
	if a.Version != b.Version {
		return a.Version > b.Version
	}
	if superseded[a.ID] != superseded[b.ID] {
		return !superseded[a.ID]
	}
	return a.ID < b.ID
}

// Detect returns one Conflict per topic holding two or more independent
// claims. Topics are sorted, as are the claims inside each conflict (by id).
func Detect(memories []model.Memory) []model.Conflict {
	byTopic := make(map[string][]model.Memory)
	for _, h := range Heads(memories) {
		byTopic[h.Topic] = append(byTopic[h.Topic], h)
	}

	topics := make([]string, 0, len(byTopic))
	for topic, members := range byTopic {
		if len(members) >= 2 {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)

	conflicts := make([]model.Conflict, 0, len(topics))
	for _, topic := range topics {
		members := byTopic[topic]
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
		conflicts = append(conflicts, model.Conflict{Topic: topic, Memories: members})
	}
	return conflicts
}

// Resolve picks the preferred claim of c using the ranking precedence with
// relevance ignored. It reports false for an empty conflict.
func Resolve(c model.Conflict, cfg *model.MemoryConfig) (model.Memory, bool) {
	if len(c.Memories) == 0 {
		return model.Memory{}, false
	}
	scored := make([]rank.Scored, len(c.Memories))
	for i, m := range c.Memories {
		scored[i] = rank.Scored{Memory: m}
	}
	return rank.Rank(cfg, scored)[0].Memory, true
}
