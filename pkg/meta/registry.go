package meta

import "fmt"

// Registry holds the ordered handler catalog. Resolution by value walks the
// list and returns the first handler whose predicate accepts the input, so
// the order encodes the overlap rules: entities before generic structs,
// entity slices before generic sequences, time.Time before generic structs.
type Registry struct {
	handlers []Handler
	byTag    map[TypeTag]Handler
}

// NewRegistry builds the full catalog. The resolver backs the model and
// collection handlers and may be nil, in which case decoding an
// entity-typed value fails with ErrNoResolver.
func NewRegistry(resolver EntityResolver) *Registry {
	handlers := []Handler{
		nullHandler{},
		modelHandler{resolver: resolver},
		collectionHandler{resolver: resolver},
		dateTimeHandler{},
		booleanHandler{},
		integerHandler{},
		doubleHandler{},
		stringHandler{},
		arrayHandler{},
		objectHandler{},
	}
	byTag := make(map[TypeTag]Handler, len(handlers))
	for _, h := range handlers {
		byTag[h.Tag()] = h
	}
	return &Registry{handlers: handlers, byTag: byTag}
}

// ResolveFor returns the first handler accepting the value.
func (r *Registry) ResolveFor(value any) (Handler, error) {
	for _, h := range r.handlers {
		if h.CanHandle(value) {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, value)
}

// ResolveTag returns the handler registered for a stored type tag.
func (r *Registry) ResolveTag(tag TypeTag) (Handler, error) {
	h, ok := r.byTag[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTypeTag, tag)
	}
	return h, nil
}

// Tags lists the registered tags in resolution order.
func (r *Registry) Tags() []TypeTag {
	tags := make([]TypeTag, 0, len(r.handlers))
	for _, h := range r.handlers {
		tags = append(tags, h.Tag())
	}
	return tags
}
