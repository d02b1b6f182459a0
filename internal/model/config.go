package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/BurntSushi/toml"
)

// UnrankedTier is the model tier of a model named in no tier list.
const UnrankedTier = 5

// SourcePreference attaches a trust weight to one contributor or one group.
// Higher weight means more trusted.
type SourcePreference struct {
	ForNpub  string  `json:"for_npub,omitempty" toml:"for_npub,omitempty" koanf:"for_npub"`
	ForGroup string  `json:"for_group,omitempty" toml:"for_group,omitempty" koanf:"for_group"`
	Weight   float64 `json:"weight" toml:"weight" koanf:"weight"`
}

// MemoryConfig is the static trust and capability configuration.
// Tier1 is the most capable model list, Tier4 the least.
type MemoryConfig struct {
	Sources      []SourcePreference `json:"sources,omitempty" toml:"sources,omitempty" koanf:"sources"`
	Tier1        []string           `json:"tier1,omitempty" toml:"tier1,omitempty" koanf:"tier1"`
	Tier2        []string           `json:"tier2,omitempty" toml:"tier2,omitempty" koanf:"tier2"`
	Tier3        []string           `json:"tier3,omitempty" toml:"tier3,omitempty" koanf:"tier3"`
	Tier4        []string           `json:"tier4,omitempty" toml:"tier4,omitempty" koanf:"tier4"`
	PublicRelays []string           `json:"public_relays,omitempty" toml:"public_relays,omitempty" koanf:"public_relays"`
	GroupRelays  []string           `json:"group_relays,omitempty" toml:"group_relays,omitempty" koanf:"group_relays"`
}

// DefaultMemoryConfig returns the built-in tier lists and relays.
// Parsing a document never falls back to these values.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Tier1: []string{"anthropic/claude-opus-*", "openai/gpt-5*", "google/gemini-2.5-pro*"},
		Tier2: []string{"anthropic/claude-sonnet-*", "openai/gpt-4.1*", "openai/o3*"},
		Tier3: []string{"anthropic/claude-haiku-*", "google/gemini-2.5-flash*", "deepseek/*"},
		Tier4: []string{"meta-llama/*", "mistralai/*", "qwen/*"},
		PublicRelays: []string{
			"wss://relay.damus.io",
			"wss://nos.lol",
		},
		GroupRelays: []string{
			"wss://groups.fiatjaf.com",
		},
	}
}

// ParseMemoryConfigTOML parses a TOML trust document. Absent fields stay empty.
func ParseMemoryConfigTOML(data []byte) (MemoryConfig, error) {
	var cfg MemoryConfig
	if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
		return MemoryConfig{}, fmt.Errorf("parse memory config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return MemoryConfig{}, fmt.Errorf("parse memory config: %w", err)
	}
	return cfg, nil
}

// Validate rejects trust weights that cannot be ordered (NaN, ±Inf).
func (c MemoryConfig) Validate() error {
	for i, p := range c.Sources {
		if math.IsNaN(p.Weight) || math.IsInf(p.Weight, 0) {
			return fmt.Errorf("sources[%d].weight: %v is not a finite number", i, p.Weight)
		}
	}
	return nil
}

// ParseMemoryConfigJSON parses a JSON trust document. Absent fields stay empty.
func ParseMemoryConfigJSON(data []byte) (MemoryConfig, error) {
	var cfg MemoryConfig
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return MemoryConfig{}, fmt.Errorf("parse memory config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return MemoryConfig{}, fmt.Errorf("parse memory config: %w", err)
	}
	return cfg, nil
}

// EncodeTOML renders the config in the format ParseMemoryConfigTOML reads.
func (c MemoryConfig) EncodeTOML() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("encode memory config: %w", err)
	}
	return buf.Bytes(), nil
}

// ModelMatcher matches a model name exactly or, when built from a pattern
// ending in "*", by prefix.
type ModelMatcher struct {
	Value  string
	Prefix bool
}

// NewModelMatcher compiles one tier list entry. Only a single trailing "*"
// is special; a "*" anywhere else is literal.
func NewModelMatcher(pattern string) ModelMatcher {
	if p, ok := strings.CutSuffix(pattern, "*"); ok {
		return ModelMatcher{Value: p, Prefix: true}
	}
	return ModelMatcher{Value: pattern}
}

// Match reports whether model satisfies the matcher.
func (mm ModelMatcher) Match(model string) bool {
	if mm.Prefix {
		return strings.HasPrefix(model, mm.Value)
	}
	return model == mm.Value
}

// TierMatchers holds the compiled tier lists, index 0 being tier 1.
type TierMatchers [4][]ModelMatcher

// CompileTiers compiles the four tier lists in order.
func (c MemoryConfig) CompileTiers() TierMatchers {
	var out TierMatchers
	for i, list := range [4][]string{c.Tier1, c.Tier2, c.Tier3, c.Tier4} {
		out[i] = make([]ModelMatcher, 0, len(list))
		for _, p := range list {
			out[i] = append(out[i], NewModelMatcher(p))
		}
	}
	return out
}

// Classify returns the tier (1-4) of model, or UnrankedTier.
func (t TierMatchers) Classify(model string) int {
	for i, list := range t {
		for _, mm := range list {
			if mm.Match(model) {
				return i + 1
			}
		}
	}
	return UnrankedTier
}
