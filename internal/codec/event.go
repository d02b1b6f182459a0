// Package codec maps memory claims to and from relay transport events.
//
// Filterable attributes travel as tags so relays can select on them without
// parsing the body:
//
//	["d", id]
//	["tier", "public"] or ["tier", "group", name]
//	["topic", topic]
//	["model", model]
//	["supersedes", id]   (optional)
//
// Everything else is carried in a JSON body. The event pubkey is the claim
// source and the event created_at is the claim timestamp.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/k0sti/snowclaw-memory/internal/model"
)

// KindMemory is the parameterized replaceable event kind for memory claims.
const KindMemory = 30078

const (
	tagID         = "d"
	tagTier       = "tier"
	tagTopic      = "topic"
	tagModel      = "model"
	tagSupersedes = "supersedes"
)

// ErrDecode is the root of every decoding failure.
var ErrDecode = errors.New("decode memory event")

// DecodeError names the event field that could not be decoded.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode memory event: %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// Event is a transport event as delivered by the relay layer. Signature
// checks happen upstream; Sig is carried through untouched.
type Event struct {
	ID        string     `json:"id,omitempty"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig,omitempty"`
}

// body is the JSON content of a memory event. Pointers distinguish absent
// required fields from zero values.
type body struct {
	Summary    string   `json:"summary"`
	Detail     string   `json:"detail"`
	Context    string   `json:"context,omitempty"`
	Confidence *float64 `json:"confidence"`
	Tags       []string `json:"tags"`
	Version    *int     `json:"version"`
}

// Encode converts a memory into an unsigned transport event.
func Encode(m model.Memory) (Event, error) {
	if err := m.Validate(); err != nil {
		return Event{}, err
	}

	tier := []string{tagTier, model.ScopePublic}
	if m.Tier.IsGroup() {
		tier = []string{tagTier, model.ScopeGroup, m.Tier.Group}
	}
	tags := [][]string{
		{tagID, m.ID},
		tier,
		{tagTopic, m.Topic},
		{tagModel, m.Model},
	}
	if m.Supersedes != "" {
		tags = append(tags, []string{tagSupersedes, m.Supersedes})
	}

	conf, version := m.Confidence, m.Version
	content, err := json.Marshal(body{
		Summary:    m.Summary,
		Detail:     m.Detail,
		Context:    m.Context,
		Confidence: &conf,
		Tags:       m.Tags,
		Version:    &version,
	})
	if err != nil {
		return Event{}, fmt.Errorf("encode memory body: %w", err)
	}

	return Event{
		PubKey:    m.Source,
		CreatedAt: m.CreatedAt,
		Kind:      KindMemory,
		Tags:      tags,
		Content:   string(content),
	}, nil
}

// Decode converts a transport event back into a validated memory. No partial
// memory is returned on error.
func Decode(ev Event) (model.Memory, error) {
	if ev.Kind != KindMemory {
		return model.Memory{}, &DecodeError{Field: "kind", Err: fmt.Errorf("got %d, want %d", ev.Kind, KindMemory)}
	}

	var m model.Memory
	var haveID, haveTier, haveTopic, haveModel bool
	for _, tag := range ev.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case tagID:
			m.ID, haveID = tag[1], true
		case tagTier:
			tier, err := decodeTier(tag)
			if err != nil {
				return model.Memory{}, &DecodeError{Field: "tier", Err: err}
			}
			m.Tier, haveTier = tier, true
		case tagTopic:
			m.Topic, haveTopic = tag[1], true
		case tagModel:
			m.Model, haveModel = tag[1], true
		case tagSupersedes:
			m.Supersedes = tag[1]
		}
	}
	switch {
	case !haveID:
		return model.Memory{}, &DecodeError{Field: "d", Err: errors.New("missing tag")}
	case !haveTier:
		return model.Memory{}, &DecodeError{Field: "tier", Err: errors.New("missing tag")}
	case !haveTopic:
		return model.Memory{}, &DecodeError{Field: "topic", Err: errors.New("missing tag")}
	case !haveModel:
		return model.Memory{}, &DecodeError{Field: "model", Err: errors.New("missing tag")}
	}

	var b body
	if err := json.Unmarshal([]byte(ev.Content), &b); err != nil {
		return model.Memory{}, &DecodeError{Field: "content", Err: err}
	}
	if b.Confidence == nil {
		return model.Memory{}, &DecodeError{Field: "confidence", Err: errors.New("missing")}
	}
	if b.Version == nil {
		return model.Memory{}, &DecodeError{Field: "version", Err: errors.New("missing")}
	}

	m.Summary = b.Summary
	m.Detail = b.Detail
	m.Context = b.Context
	m.Confidence = *b.Confidence
	m.Tags = b.Tags
	m.Version = *b.Version
	m.Source = ev.PubKey
	m.CreatedAt = ev.CreatedAt

	if err := m.Validate(); err != nil {
		var ve *model.ValidationError
		field := "memory"
		if errors.As(err, &ve) {
			field = ve.Field
		}
		return model.Memory{}, &DecodeError{Field: field, Err: err}
	}
	return m, nil
}

// ParseEvent decodes raw event JSON.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, &DecodeError{Field: "event", Err: err}
	}
	return ev, nil
}

// DecodeJSON parses raw event JSON and decodes the memory it carries.
func DecodeJSON(data []byte) (model.Memory, error) {
	ev, err := ParseEvent(data)
	if err != nil {
		return model.Memory{}, err
	}
	return Decode(ev)
}

func decodeTier(tag []string) (model.Tier, error) {
	switch tag[1] {
	case model.ScopePublic:
		return model.Public(), nil
	case model.ScopeGroup:
		if len(tag) < 3 || tag[2] == "" {
			return model.Tier{}, errors.New("group tier without a name")
		}
		return model.Group(tag[2]), nil
	}
	return model.Tier{}, fmt.Errorf("unknown tier %q", tag[1])
}
