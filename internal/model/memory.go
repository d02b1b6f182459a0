// Package model defines the core memory data types.
package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidMemory is the root of every validation failure.
var ErrInvalidMemory = errors.New("invalid memory")

// ValidationError reports which field broke an invariant.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid memory: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidMemory }

// TierKind is the visibility scope of a claim.
type TierKind int

const (
	TierPublic TierKind = iota
	TierGroup
)

// Scope names accepted by search tier filters.
const (
	ScopePublic = "public"
	ScopeGroup  = "group"
)

// Tier scopes a claim to everyone or to one named group.
type Tier struct {
	Kind  TierKind
	Group string
}

// Public returns the public tier.
func Public() Tier { return Tier{Kind: TierPublic} }

// Group returns the tier for the named group.
func Group(name string) Tier { return Tier{Kind: TierGroup, Group: name} }

// IsGroup reports whether the tier is group-scoped.
func (t Tier) IsGroup() bool { return t.Kind == TierGroup }

// Scope returns "public" or "group".
func (t Tier) Scope() string {
	if t.Kind == TierGroup {
		return ScopeGroup
	}
	return ScopePublic
}

// String returns "public" or "group:<name>".
func (t Tier) String() string {
	if t.Kind == TierGroup {
		return ScopeGroup + ":" + t.Group
	}
	return ScopePublic
}

// ParseTier parses the text form produced by String.
func ParseTier(s string) (Tier, error) {
	if s == ScopePublic {
		return Public(), nil
	}
	if name, ok := strings.CutPrefix(s, ScopeGroup+":"); ok && name != "" {
		return Group(name), nil
	}
	return Tier{}, fmt.Errorf("unknown tier %q (use public or group:<name>)", s)
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Memory is a single claim contributed by an agent.
type Memory struct {
	ID         string   `json:"id"`
	Tier       Tier     `json:"tier"`
	Topic      string   `json:"topic"`
	Summary    string   `json:"summary"`
	Detail     string   `json:"detail"`
	Context    string   `json:"context,omitempty"`
	Source     string   `json:"source"`
	Model      string   `json:"model"`
	Confidence float64  `json:"confidence"`
	Supersedes string   `json:"supersedes,omitempty"`
	Version    int      `json:"version"`
	Tags       []string `json:"tags,omitempty"`
	CreatedAt  int64    `json:"created_at"`
}

// Validate checks the per-claim invariants. Chain ordering against other
// claims is checked by the store on upsert.
func (m *Memory) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if math.IsNaN(m.Confidence) || m.Confidence < 0 || m.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("%v outside [0,1]", m.Confidence)}
	}
	if m.Version < 1 {
		return &ValidationError{Field: "version", Reason: fmt.Sprintf("%d is not positive", m.Version)}
	}
	if m.Supersedes != "" && m.Supersedes == m.ID {
		return &ValidationError{Field: "supersedes", Reason: "claim cannot supersede itself"}
	}
	if m.Tier.Kind == TierGroup && m.Tier.Group == "" {
		return &ValidationError{Field: "tier", Reason: "group tier needs a name"}
	}
	if m.Tier.Kind != TierPublic && m.Tier.Kind != TierGroup {
		return &ValidationError{Field: "tier", Reason: "unknown tier kind"}
	}
	seen := make(map[string]bool, len(m.Tags))
	for _, t := range m.Tags {
		if seen[t] {
			return &ValidationError{Field: "tags", Reason: fmt.Sprintf("duplicate tag %q", t)}
		}
		seen[t] = true
	}
	return nil
}

// Conflict groups independent claims that share a topic.
type Conflict struct {
	Topic    string   `json:"topic"`
	Memories []Memory `json:"memories"`
}

// SearchResult is a ranked claim.
type SearchResult struct {
	Memory    Memory  `json:"memory"`
	Score     float64 `json:"score"`
	Trust     float64 `json:"trust"`
	ModelTier int     `json:"model_tier"`
	Rank      int     `json:"rank"`
}
