package bindings

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k0sti/snowclaw-memory/internal/codec"
	"github.com/k0sti/snowclaw-memory/internal/model"
)

func memoryJSON(id, topic, source, mdl string) string {
	return `{"id":"` + id + `","tier":"public","topic":"` + topic + `","summary":"s","detail":"d",` +
		`"source":"` + source + `","model":"` + mdl + `","confidence":0.8,"version":1,"created_at":100}`
}

func TestRankJSON(t *testing.T) {
	in := `[{"memory":` + memoryJSON("low", "t", "npub1x", "local/llama") + `,"relevance":9},` +
		`{"memory":` + memoryJSON("high", "t", "npub1x", "anthropic/claude-opus-4") + `,"relevance":1}]`
	cfg := `{"tier1":["anthropic/*"]}`

	out, err := RankJSON([]byte(in), []byte(cfg))
	require.NoError(t, err)

	var results []model.SearchResult
	require.NoError(t, json.Unmarshal(out, &results))
	require.Len(t, results, 2)
	assert.Equal(t, "high", results[0].Memory.ID)
	assert.Equal(t, 1, results[0].ModelTier)
	assert.Equal(t, model.UnrankedTier, results[1].ModelTier)
}

func TestRankJSONEmpty(t *testing.T) {
	out, err := RankJSON([]byte(`[]`), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(out))
}

func TestDetectConflictsJSON(t *testing.T) {
	in := `[` + memoryJSON("a", "nostr/nip44", "npub1a", "m") + `,` +
		memoryJSON("b", "nostr/nip44", "npub1b", "m") + `,` +
		memoryJSON("c", "other", "npub1c", "m") + `]`

	out, err := DetectConflictsJSON([]byte(in))
	require.NoError(t, err)

	var conflicts []model.Conflict
	require.NoError(t, json.Unmarshal(out, &conflicts))
	require.Len(t, conflicts, 1)
	assert.Equal(t, "nostr/nip44", conflicts[0].Topic)
	assert.Len(t, conflicts[0].Memories, 2)

	out, err = DetectConflictsJSON([]byte(`[]`))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(out))
}

func TestResolveConflictJSON(t *testing.T) {
	c := `{"topic":"t","memories":[` + memoryJSON("a", "t", "npub1a", "m") + `,` +
		memoryJSON("b", "t", "npub1b", "m") + `]}`
	cfg := `{"sources":[{"for_npub":"npub1b","weight":0.9}]}`

	out, err := ResolveConflictJSON([]byte(c), []byte(cfg))
	require.NoError(t, err)

	var winner model.Memory
	require.NoError(t, json.Unmarshal(out, &winner))
	assert.Equal(t, "b", winner.ID)

	out, err = ResolveConflictJSON([]byte(`{"topic":"t","memories":[]}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}

func TestDecodeEventJSON(t *testing.T) {
	m := model.Memory{
		ID: "abc", Tier: model.Group("devs"), Topic: "t", Summary: "s", Detail: "d",
		Source: "npub1a", Model: "m", Confidence: 0.5, Version: 1, CreatedAt: 42,
	}
	ev, err := codec.Encode(m)
	require.NoError(t, err)
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	out, err := DecodeEventJSON(raw)
	require.NoError(t, err)
	var got model.Memory
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, m, got)

	_, err = DecodeEventJSON([]byte(`{"kind":1}`))
	assert.ErrorIs(t, err, codec.ErrDecode)
}

func TestMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		call func() error
		arg  string
	}{
		{"rank body", func() error { _, err := RankJSON([]byte(`{`), nil); return err }, "scored memories"},
		{"rank config", func() error { _, err := RankJSON([]byte(`[]`), []byte(`[1]`)); return err }, "config"},
		{"rank invalid claim", func() error {
			_, err := RankJSON([]byte(`[{"memory":{"id":"","tier":"public"}}]`), nil)
			return err
		}, "scored memories"},
		{"detect body", func() error { _, err := DetectConflictsJSON([]byte(`nope`)); return err }, "memories"},
		{"resolve body", func() error { _, err := ResolveConflictJSON([]byte(`[]`), nil); return err }, "conflict"},
		{"unknown tier", func() error {
			_, err := DetectConflictsJSON([]byte(`[{"id":"a","tier":"private"}]`))
			return err
		}, "memories"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var ie *InputError
			require.True(t, errors.As(err, &ie), "got %v", err)
			assert.Equal(t, tt.arg, ie.Arg)
		})
	}
}
