package script

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Fragment is the original JSON object a node was parsed from. The bytes are
// never modified; extension resolvers read their own fields from it.
type Fragment struct {
	raw    json.RawMessage
	fields map[string]json.RawMessage
}

// NewFragment validates that data is a JSON object and keeps a private copy.
func NewFragment(data []byte) (Fragment, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Fragment{}, fmt.Errorf("%w: document is not a JSON object", ErrParse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Fragment{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	raw := make(json.RawMessage, len(trimmed))
	copy(raw, trimmed)
	return Fragment{raw: raw, fields: fields}, nil
}

// IsZero reports whether the fragment holds no document.
func (f Fragment) IsZero() bool {
	return f.raw == nil
}

// Raw returns a copy of the original bytes.
func (f Fragment) Raw() json.RawMessage {
	if f.raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(f.raw))
	copy(out, f.raw)
	return out
}

// Has reports whether the object has a field named key.
func (f Fragment) Has(key string) bool {
	_, ok := f.fields[key]
	return ok
}

// Keys returns the field names in sorted order.
func (f Fragment) Keys() []string {
	keys := make([]string, 0, len(f.fields))
	for k := range f.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Field returns the raw bytes of a single field.
func (f Fragment) Field(key string) (json.RawMessage, bool) {
	v, ok := f.fields[key]
	return v, ok
}

// Value decodes a single field. Numbers are returned as json.Number.
func (f Fragment) Value(key string) (any, bool) {
	raw, ok := f.fields[key]
	if !ok {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// Decode unmarshals the whole fragment into v.
func (f Fragment) Decode(v any) error {
	if f.raw == nil {
		return fmt.Errorf("%w: empty fragment", ErrParse)
	}
	return json.Unmarshal(f.raw, v)
}

// Clone returns a deep copy.
func (f Fragment) Clone() Fragment {
	if f.raw == nil {
		return Fragment{}
	}
	fields := make(map[string]json.RawMessage, len(f.fields))
	for k, v := range f.fields {
		c := make(json.RawMessage, len(v))
		copy(c, v)
		fields[k] = c
	}
	return Fragment{raw: f.Raw(), fields: fields}
}

func (f Fragment) String() string {
	return string(f.raw)
}

// MarshalJSON emits the original bytes unchanged.
func (f Fragment) MarshalJSON() ([]byte, error) {
	if f.raw == nil {
		return []byte("null"), nil
	}
	return f.Raw(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Fragment) UnmarshalJSON(data []byte) error {
	parsed, err := NewFragment(data)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
