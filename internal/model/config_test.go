package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populatedConfig() MemoryConfig {
	return MemoryConfig{
		Sources: []SourcePreference{
			{ForNpub: "npub1alice", Weight: 0.9},
			{ForGroup: "devs", Weight: 0.7},
		},
		Tier1:        []string{"anthropic/claude-opus-*"},
		Tier2:        []string{"anthropic/claude-sonnet-4"},
		Tier3:        []string{"openai/gpt-4o-mini"},
		Tier4:        []string{"meta-llama/*"},
		PublicRelays: []string{"wss://relay.example"},
		GroupRelays:  []string{"wss://groups.example"},
	}
}

func TestMemoryConfigTOMLRoundTrip(t *testing.T) {
	cfg := populatedConfig()
	data, err := cfg.EncodeTOML()
	require.NoError(t, err)

	back, err := ParseMemoryConfigTOML(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestMemoryConfigJSONRoundTrip(t *testing.T) {
	cfg := populatedConfig()
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	back, err := ParseMemoryConfigJSON(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

// An empty document must resolve every field to empty, not to the built-in
// tier lists of DefaultMemoryConfig.
func TestEmptyDocumentYieldsEmptyLists(t *testing.T) {
	for name, parse := range map[string]func([]byte) (MemoryConfig, error){
		"toml": ParseMemoryConfigTOML,
		"json": ParseMemoryConfigJSON,
	} {
		t.Run(name, func(t *testing.T) {
			doc := []byte("")
			if name == "json" {
				doc = []byte("{}")
			}
			cfg, err := parse(doc)
			require.NoError(t, err)
			assert.Empty(t, cfg.Sources)
			assert.Empty(t, cfg.Tier1)
			assert.Empty(t, cfg.Tier2)
			assert.Empty(t, cfg.Tier3)
			assert.Empty(t, cfg.Tier4)
			assert.Empty(t, cfg.PublicRelays)
			assert.Empty(t, cfg.GroupRelays)
		})
	}

	assert.NotEmpty(t, DefaultMemoryConfig().Tier1)
}

func TestPartialDocumentKeepsOtherFieldsEmpty(t *testing.T) {
	cfg, err := ParseMemoryConfigTOML([]byte(`tier1 = ["x/*"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"x/*"}, cfg.Tier1)
	assert.Empty(t, cfg.Tier2)
	assert.Empty(t, cfg.Sources)
}

func TestParseMemoryConfigErrors(t *testing.T) {
	_, err := ParseMemoryConfigTOML([]byte(`tier1 = [`))
	assert.Error(t, err)
	_, err = ParseMemoryConfigJSON([]byte(`{"tier1": 3}`))
	assert.Error(t, err)

	for _, w := range []string{"nan", "inf", "-inf"} {
		_, err = ParseMemoryConfigTOML([]byte("[[sources]]\nfor_npub = \"x\"\nweight = " + w + "\n"))
		assert.Error(t, err, w)
	}
}

func TestMemoryConfigValidate(t *testing.T) {
	ok := MemoryConfig{Sources: []SourcePreference{{ForNpub: "a", Weight: 1.5}}}
	assert.NoError(t, ok.Validate())

	bad := MemoryConfig{Sources: []SourcePreference{{ForNpub: "a", Weight: math.NaN()}}}
	assert.Error(t, bad.Validate())
	assert.NoError(t, MemoryConfig{}.Validate())
}

func TestModelMatcher(t *testing.T) {
	tests := []struct {
		pattern string
		model   string
		want    bool
	}{
		{"anthropic/claude-opus-4", "anthropic/claude-opus-4", true},
		{"anthropic/claude-opus-4", "anthropic/claude-opus-4.1", false},
		{"anthropic/claude-opus-*", "anthropic/claude-opus-4.1", true},
		{"anthropic/claude-opus-*", "anthropic/claude-sonnet-4", false},
		{"a*b", "a*b", true},
		{"a*b", "axxb", false},
		{"*", "anything", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewModelMatcher(tt.pattern).Match(tt.model), "%s vs %s", tt.pattern, tt.model)
	}
}

func TestClassify(t *testing.T) {
	cfg := MemoryConfig{
		Tier1: []string{"anthropic/claude-opus-*"},
		Tier2: []string{"anthropic/*"},
		Tier4: []string{"meta-llama/llama-3"},
	}
	tiers := cfg.CompileTiers()
	assert.Equal(t, 1, tiers.Classify("anthropic/claude-opus-4"))
	assert.Equal(t, 2, tiers.Classify("anthropic/claude-haiku-3"))
	assert.Equal(t, 4, tiers.Classify("meta-llama/llama-3"))
	assert.Equal(t, UnrankedTier, tiers.Classify("unknown/model"))
	assert.Equal(t, UnrankedTier, MemoryConfig{}.CompileTiers().Classify("anthropic/claude-opus-4"))
}
