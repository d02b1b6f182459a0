package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k0sti/snowclaw-memory/internal/model"
)

func mem(id, source, modelName string, createdAt int64) model.Memory {
	return model.Memory{
		ID: id, Tier: model.Public(), Topic: "t", Source: source,
		Model: modelName, Confidence: 0.5, Version: 1, CreatedAt: createdAt,
	}
}

func ids(results []model.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Memory.ID
	}
	return out
}

func TestRankEmptyAndSingle(t *testing.T) {
	cfg := model.DefaultMemoryConfig()
	assert.Empty(t, Rank(&cfg, nil))

	one := []Scored{{Memory: mem("a", "s", "m", 1), Relevance: 3}}
	got := Rank(&cfg, one)
	require.Len(t, got, 1)
	assert.Equal(t, one[0].Memory, got[0].Memory)
	assert.Equal(t, 3.0, got[0].Score)
	assert.Equal(t, 1, got[0].Rank)
}

func TestTier1BeatsUnlistedAtEqualRelevance(t *testing.T) {
	cfg := model.MemoryConfig{Tier1: []string{"anthropic/claude-opus-*"}}
	got := Rank(&cfg, []Scored{
		{Memory: mem("unlisted", "s", "someone/tiny-model", 10), Relevance: 1},
		{Memory: mem("opus", "s", "anthropic/claude-opus-4", 1), Relevance: 1},
	})
	assert.Equal(t, []string{"opus", "unlisted"}, ids(got))
	assert.Equal(t, 1, got[0].ModelTier)
	assert.Equal(t, model.UnrankedTier, got[1].ModelTier)
}

func TestPrecedence(t *testing.T) {
	cfg := model.MemoryConfig{
		Sources: []model.SourcePreference{
			{ForNpub: "trusted", Weight: 0.9},
			{ForNpub: "shady", Weight: 0.1},
		},
		Tier1: []string{"big"},
		Tier4: []string{"small"},
	}

	tests := []struct {
		name string
		in   []Scored
		want []string
	}{
		{
			name: "trust dominates tier and relevance",
			in: []Scored{
				{Memory: mem("a", "shady", "big", 5), Relevance: 100},
				{Memory: mem("b", "trusted", "small", 1), Relevance: 0.1},
			},
			want: []string{"b", "a"},
		},
		{
			name: "tier dominates relevance",
			in: []Scored{
				{Memory: mem("a", "x", "small", 5), Relevance: 100},
				{Memory: mem("b", "x", "big", 1), Relevance: 0.1},
			},
			want: []string{"b", "a"},
		},
		{
			name: "relevance dominates recency",
			in: []Scored{
				{Memory: mem("a", "x", "big", 500), Relevance: 1},
				{Memory: mem("b", "x", "big", 1), Relevance: 2},
			},
			want: []string{"b", "a"},
		},
		{
			name: "recency breaks ties",
			in: []Scored{
				{Memory: mem("a", "x", "big", 1), Relevance: 1},
				{Memory: mem("b", "x", "big", 2), Relevance: 1},
			},
			want: []string{"b", "a"},
		},
		{
			name: "id breaks full ties",
			in: []Scored{
				{Memory: mem("c", "x", "big", 1), Relevance: 1},
				{Memory: mem("a", "x", "big", 1), Relevance: 1},
				{Memory: mem("b", "x", "big", 1), Relevance: 1},
			},
			want: []string{"a", "b", "c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rank(&cfg, tt.in)
			assert.Equal(t, tt.want, ids(got))
			for i, r := range got {
				assert.Equal(t, i+1, r.Rank)
			}
		})
	}
}

func TestSupersedingOutranksSuperseded(t *testing.T) {
	cfg := model.MemoryConfig{
		Sources: []model.SourcePreference{{ForNpub: "old-author", Weight: 1}},
	}
	v1 := mem("v1", "old-author", "m", 1)
	v2 := mem("v2", "new-author", "m", 2)
	v2.Supersedes = "v1"
	v2.Version = 2

	got := Rank(&cfg, []Scored{{Memory: v1, Relevance: 5}, {Memory: v2, Relevance: 1}})
	assert.Equal(t, []string{"v2", "v1"}, ids(got))
}

func TestSourceWeight(t *testing.T) {
	cfg := model.MemoryConfig{
		Sources: []model.SourcePreference{
			{ForGroup: "devs", Weight: 0.8},
			{ForNpub: "alice", Weight: 0.3},
		},
	}
	groupClaim := mem("g", "alice", "m", 1)
	groupClaim.Tier = model.Group("devs")
	publicClaim := mem("p", "alice", "m", 1)
	stranger := mem("s", "bob", "m", 1)

	assert.Equal(t, 0.8, SourceWeight(&cfg, &groupClaim), "first matching entry wins")
	assert.Equal(t, 0.3, SourceWeight(&cfg, &publicClaim), "group entries ignore public claims")
	assert.Equal(t, DefaultTrustWeight, SourceWeight(&cfg, &stranger))
	assert.Equal(t, DefaultTrustWeight, SourceWeight(nil, &stranger))
}

func TestRankDoesNotMutateInput(t *testing.T) {
	cfg := model.DefaultMemoryConfig()
	in := []Scored{
		{Memory: mem("b", "x", "m", 1), Relevance: 1},
		{Memory: mem("a", "x", "m", 1), Relevance: 2},
	}
	Rank(&cfg, in)
	assert.Equal(t, "b", in[0].Memory.ID)
	assert.Equal(t, "a", in[1].Memory.ID)
}

func TestModelTier(t *testing.T) {
	cfg := model.DefaultMemoryConfig()
	assert.Equal(t, 1, ModelTier(&cfg, "anthropic/claude-opus-4"))
	assert.Equal(t, model.UnrankedTier, ModelTier(nil, "anthropic/claude-opus-4"))
}
