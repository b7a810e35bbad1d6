package orchestrator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Artifact is a single named text payload.
type Artifact struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ArtifactSet maps artifact names to content, iterating in insertion order.
// The zero value is an empty set. Sets are never modified in place; With
// returns a new set.
type ArtifactSet struct {
	items []Artifact
}

// NewArtifactSet builds a set from artifacts in order. Duplicate names are an error.
func NewArtifactSet(artifacts ...Artifact) (ArtifactSet, error) {
	seen := make(map[string]struct{}, len(artifacts))
	items := make([]Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		if a.Name == "" {
			return ArtifactSet{}, fmt.Errorf("artifact name cannot be empty")
		}
		if _, dup := seen[a.Name]; dup {
			return ArtifactSet{}, fmt.Errorf("duplicate artifact name %q", a.Name)
		}
		seen[a.Name] = struct{}{}
		items = append(items, a)
	}
	return ArtifactSet{items: items}, nil
}

// MustArtifactSet is like NewArtifactSet but panics on error.
func MustArtifactSet(artifacts ...Artifact) ArtifactSet {
	s, err := NewArtifactSet(artifacts...)
	if err != nil {
		panic(err)
	}
	return s
}

// With returns a copy of the set with name set to content. An existing name
// keeps its position.
func (s ArtifactSet) With(name, content string) ArtifactSet {
	items := make([]Artifact, len(s.items), len(s.items)+1)
	copy(items, s.items)
	for i := range items {
		if items[i].Name == name {
			items[i].Content = content
			return ArtifactSet{items: items}
		}
	}
	return ArtifactSet{items: append(items, Artifact{Name: name, Content: content})}
}

// Get returns the content stored under name.
func (s ArtifactSet) Get(name string) (string, bool) {
	for _, a := range s.items {
		if a.Name == name {
			return a.Content, true
		}
	}
	return "", false
}

// Has reports whether name is present.
func (s ArtifactSet) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Len returns the number of artifacts.
func (s ArtifactSet) Len() int { return len(s.items) }

// Names returns artifact names in insertion order.
func (s ArtifactSet) Names() []string {
	names := make([]string, len(s.items))
	for i, a := range s.items {
		names[i] = a.Name
	}
	return names
}

// Artifacts returns a copy of the artifacts in insertion order.
func (s ArtifactSet) Artifacts() []Artifact {
	out := make([]Artifact, len(s.items))
	copy(out, s.items)
	return out
}

// Clone returns an independent copy. Artifact values are immutable strings,
// so copying the backing slice is sufficient.
func (s ArtifactSet) Clone() ArtifactSet {
	return ArtifactSet{items: s.Artifacts()}
}

// Equal reports whether both sets hold the same artifacts in the same order.
func (s ArtifactSet) Equal(o ArtifactSet) bool {
	if len(s.items) != len(o.items) {
		return false
	}
	for i := range s.items {
		if s.items[i] != o.items[i] {
			return false
		}
	}
	return true
}

// SameKeys reports whether both sets contain exactly the same names,
// regardless of order.
func (s ArtifactSet) SameKeys(o ArtifactSet) bool {
	if len(s.items) != len(o.items) {
		return false
	}
	for _, a := range s.items {
		if !o.Has(a.Name) {
			return false
		}
	}
	return true
}

// String renders the set as a name → content mapping in insertion order.
func (s ArtifactSet) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, a := range s.items {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %q", a.Name, a.Content)
	}
	b.WriteByte('}')
	return b.String()
}

// MarshalJSON encodes the set as a JSON object preserving insertion order.
func (s ArtifactSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, a := range s.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(a.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(a.Content)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the document's key order.
func (s *ArtifactSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = ArtifactSet{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("artifact set must be a JSON object")
	}

	var items []Artifact
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("artifact name must be a string")
		}
		var content string
		if err := dec.Decode(&content); err != nil {
			return fmt.Errorf("artifact %q: %w", name, err)
		}
		items = append(items, Artifact{Name: name, Content: content})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	set, err := NewArtifactSet(items...)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

// MarshalLogArray logs names, sizes and a short content digest, never full content.
func (s ArtifactSet) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, a := range s.items {
		if err := enc.AppendObject(artifactSummary(a)); err != nil {
			return err
		}
	}
	return nil
}

type artifactSummary Artifact

func (a artifactSummary) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	sum := sha256.Sum256([]byte(a.Content))
	enc.AddString("name", a.Name)
	enc.AddInt("bytes", len(a.Content))
	enc.AddString("sha256", hex.EncodeToString(sum[:6]))
	return nil
}
