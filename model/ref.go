// Package model defines the page and block entities shared by the transport,
// the entity stores and the use-case layer.
package model

import (
	"bytes"
	"encoding/json"
)

// NullSentinel is the literal used on the wire for a null grouping key.
const NullSentinel = "null"

// Ref is a nullable reference to another entity. The zero value is null.
//
// Ref marshals to JSON null when empty, so a page at the root of the forest
// serializes as "parentId": null rather than "parentId": "".
type Ref string

// Null is the null reference.
const Null Ref = ""

// RefTo returns a reference to id.
func RefTo(id string) Ref { return Ref(id) }

// IsNull reports whether r references nothing.
func (r Ref) IsNull() bool { return r == "" }

// ID returns the referenced id, or "" when null.
func (r Ref) ID() string { return string(r) }

// QueryValue returns the value used in a grouping-key query parameter.
func (r Ref) QueryValue() string {
	if r.IsNull() {
		return NullSentinel
	}
	return string(r)
}

// String implements fmt.Stringer.
func (r Ref) String() string {
	if r.IsNull() {
		return NullSentinel
	}
	return string(r)
}

// MarshalJSON implements json.Marshaler.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r.IsNull() {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Ref) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = Null
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = Ref(s)
	return nil
}

// ParseRef converts a grouping-key query value back to a Ref.
func ParseRef(v string) Ref {
	if v == NullSentinel {
		return Null
	}
	return Ref(v)
}
