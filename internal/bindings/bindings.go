// Package bindings exposes ranking, conflict handling and event decoding as
// JSON-in, JSON-out calls for front ends that cannot link Go types.
package bindings

import (
	"encoding/json"
	"fmt"

	"github.com/k0sti/snowclaw-memory/internal/codec"
	"github.com/k0sti/snowclaw-memory/internal/conflict"
	"github.com/k0sti/snowclaw-memory/internal/model"
	"github.com/k0sti/snowclaw-memory/internal/rank"
)

// InputError reports a malformed argument.
type InputError struct {
	Arg string
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Arg, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// RankJSON ranks a JSON array of {"memory", "relevance"} pairs against a JSON
// trust document and returns the ranked results. An empty config document
// means no trust preferences.
func RankJSON(scoredJSON, configJSON []byte) ([]byte, error) {
	var scored []rank.Scored
	if err := unmarshal("scored memories", scoredJSON, &scored); err != nil {
		return nil, err
	}
	for i := range scored {
		if err := validate("scored memories", &scored[i].Memory); err != nil {
			return nil, err
		}
	}
	cfg, err := parseConfig(configJSON)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rank.Rank(&cfg, scored))
}

// DetectConflictsJSON finds conflicts in a JSON array of memories.
func DetectConflictsJSON(memoriesJSON []byte) ([]byte, error) {
	var memories []model.Memory
	if err := unmarshal("memories", memoriesJSON, &memories); err != nil {
		return nil, err
	}
	for i := range memories {
		if err := validate("memories", &memories[i]); err != nil {
			return nil, err
		}
	}
	return json.Marshal(conflict.Detect(memories))
}

// ResolveConflictJSON picks the winning memory of a JSON conflict. The result
// is JSON null when the conflict has no members.
func ResolveConflictJSON(conflictJSON, configJSON []byte) ([]byte, error) {
	var c model.Conflict
	if err := unmarshal("conflict", conflictJSON, &c); err != nil {
		return nil, err
	}
	for i := range c.Memories {
		if err := validate("conflict", &c.Memories[i]); err != nil {
			return nil, err
		}
	}
	cfg, err := parseConfig(configJSON)
	if err != nil {
		return nil, err
	}
	winner, ok := conflict.Resolve(c, &cfg)
	if !ok {
		return []byte("null"), nil
	}
	return json.Marshal(winner)
}

// DecodeEventJSON decodes a raw transport event into memory JSON. Decode
// failures wrap codec.ErrDecode.
func DecodeEventJSON(eventJSON []byte) ([]byte, error) {
	m, err := codec.DecodeJSON(eventJSON)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func unmarshal(arg string, data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &InputError{Arg: arg, Err: err}
	}
	return nil
}

func validate(arg string, m *model.Memory) error {
	if err := m.Validate(); err != nil {
		return &InputError{Arg: arg, Err: err}
	}
	return nil
}

func parseConfig(data []byte) (model.MemoryConfig, error) {
	cfg, err := model.ParseMemoryConfigJSON(data)
	if err != nil {
		return cfg, &InputError{Arg: "config", Err: err}
	}
	return cfg, nil
}
