package meta

import (
	"context"
	"strings"
)

// Meta is a single typed key/value entry attached to an owning record. The
// Value field always holds the serialized form of the last assigned value
// and Type always names the handler that produced it.
type Meta struct {
	Owner OwnerRef `json:"owner"`
	Key   string   `json:"key"`
	Type  TypeTag  `json:"type"`
	Value string   `json:"value"`
}

// NormalizeKey lower-cases a meta key. Applied at every boundary so lookups
// are case-insensitive; storage only ever sees the normalized form.
func NormalizeKey(key string) string {
	return strings.ToLower(key)
}

// New constructs an empty Meta for the owner under the normalized key.
func New(owner OwnerRef, key string) *Meta {
	return &Meta{Owner: owner, Key: NormalizeKey(key), Type: TypeNull}
}

// RawValue returns the serialized storage form.
func (m *Meta) RawValue() string {
	return m.Value
}

// SetValue selects a handler for the value and rewrites both the type tag
// and the serialized payload. Unacceptable values propagate
// ErrUnsupportedType and leave the record untouched.
func (m *Meta) SetValue(reg *Registry, value any) error {
	h, err := reg.ResolveFor(value)
	if err != nil {
		return err
	}
	raw, err := h.Serialize(value)
	if err != nil {
		return err
	}
	m.Type = h.Tag()
	m.Value = raw
	return nil
}

// DecodedValue resolves the stored tag and deserializes the payload. Entity
// handlers perform store reads through the registry's resolver.
func (m *Meta) DecodedValue(ctx context.Context, reg *Registry) (any, error) {
	h, err := reg.ResolveTag(m.Type)
	if err != nil {
		return nil, err
	}
	return h.Deserialize(ctx, m.Value)
}
