// Package meta implements the typed value system behind polymorphic
// key/value attributes. Every stored value is reduced to a single string
// column plus a type tag; a fixed, ordered catalog of handlers converts
// native values to and from that form. Entity references are resolved
// through an injected EntityResolver so decoding stays store-agnostic.
package meta

import (
	"context"
	"errors"
)

// TypeTag names the handler that serialized a stored value. Tags are written
// to storage next to the payload, so their values must remain stable.
type TypeTag string

// Catalog of type tags. The order of the matching handlers in the registry
// is significant; see NewRegistry.
const (
	TypeNull       TypeTag = "null"
	TypeModel      TypeTag = "model"
	TypeCollection TypeTag = "collection"
	TypeDateTime   TypeTag = "datetime"
	TypeBoolean    TypeTag = "boolean"
	TypeInteger    TypeTag = "integer"
	TypeDouble     TypeTag = "double"
	TypeString     TypeTag = "string"
	TypeArray      TypeTag = "array"
	TypeObject     TypeTag = "object"
)

// ErrUnsupportedType indicates no registered handler accepts a value.
var ErrUnsupportedType = errors.New("meta: no handler accepts value")

// ErrUnknownTypeTag indicates a stored type tag names no registered handler.
// This is only reachable through data written by a different catalog.
var ErrUnknownTypeTag = errors.New("meta: unknown type tag")

// ErrDanglingReference indicates a stored entity reference points at an
// entity that no longer exists. Surfaced to the caller, never silently nil.
var ErrDanglingReference = errors.New("meta: referenced entity no longer exists")

// ErrNoResolver indicates an entity-typed value was decoded through a
// registry constructed without an EntityResolver.
var ErrNoResolver = errors.New("meta: entity resolver not configured")

// OwnerRef identifies the record a meta entry is attached to. Kind
// disambiguates owners across tables sharing an id space.
type OwnerRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Entity is implemented by domain records that can be stored by reference.
type Entity interface {
	EntityKind() string
	EntityID() string
}

// EntityResolver re-fetches entities referenced by stored values. The bool
// result reports existence; errors are reserved for store failures.
type EntityResolver interface {
	ResolveEntity(ctx context.Context, kind, id string) (Entity, bool, error)
}

// Handler converts values of a single category to and from the storage
// string form. Handlers are stateless apart from injected collaborators and
// must uphold the round-trip law: Deserialize(Serialize(v)) is
// observationally equal to v for every v accepted by CanHandle.
type Handler interface {
	Tag() TypeTag
	CanHandle(value any) bool
	Serialize(value any) (string, error)
	Deserialize(ctx context.Context, raw string) (any, error)
}
