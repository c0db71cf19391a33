package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// dateTimeLayout keeps microsecond precision and an explicit offset so a
// decoded value reconstructs both the instant and the zone offset.
const dateTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

type nullHandler struct{}

func (nullHandler) Tag() TypeTag { return TypeNull }

func (nullHandler) CanHandle(v any) bool { return v == nil }

func (nullHandler) Serialize(any) (string, error) { return "", nil }

func (nullHandler) Deserialize(context.Context, string) (any, error) {
	return nil, nil
}

type modelHandler struct {
	resolver EntityResolver
}

func (modelHandler) Tag() TypeTag { return TypeModel }

func (modelHandler) CanHandle(v any) bool {
	_, ok := v.(Entity)
	return ok
}

func (modelHandler) Serialize(v any) (string, error) {
	ent, ok := v.(Entity)
	if !ok {
		return "", fmt.Errorf("meta: model handler given %T", v)
	}
	return ent.EntityKind() + ":" + ent.EntityID(), nil
}

func (h modelHandler) Deserialize(ctx context.Context, raw string) (any, error) {
	kind, id, ok := strings.Cut(raw, ":")
	if !ok {
		return nil, fmt.Errorf("meta: malformed entity reference %q", raw)
	}
	if h.resolver == nil {
		return nil, ErrNoResolver
	}
	ent, found, err := h.resolver.ResolveEntity(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("resolve %s:%s: %w", kind, id, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s:%s", ErrDanglingReference, kind, id)
	}
	return ent, nil
}

// collectionHandler stores an ordered list of same-kind entity references.
// Members missing at decode time are dropped, preserving the order of the
// survivors.
type collectionHandler struct {
	resolver EntityResolver
}

func (collectionHandler) Tag() TypeTag { return TypeCollection }

func (collectionHandler) CanHandle(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice || rv.Len() == 0 {
		return false
	}
	kind := ""
	for i := 0; i < rv.Len(); i++ {
		ent, ok := rv.Index(i).Interface().(Entity)
		if !ok {
			return false
		}
		if i == 0 {
			kind = ent.EntityKind()
			continue
		}
		if ent.EntityKind() != kind {
			return false
		}
	}
	return true
}

func (collectionHandler) Serialize(v any) (string, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice || rv.Len() == 0 {
		return "", fmt.Errorf("meta: collection handler given %T", v)
	}
	kind := ""
	ids := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		ent, ok := rv.Index(i).Interface().(Entity)
		if !ok {
			return "", fmt.Errorf("meta: collection element %d is %T, not an entity", i, rv.Index(i).Interface())
		}
		if i == 0 {
			kind = ent.EntityKind()
		} else if ent.EntityKind() != kind {
			return "", fmt.Errorf("meta: mixed entity kinds %s and %s in collection", kind, ent.EntityKind())
		}
		id := ent.EntityID()
		if strings.Contains(id, ",") {
			return "", fmt.Errorf("meta: entity id %q contains a comma", id)
		}
		ids = append(ids, id)
	}
	return kind + ":" + strings.Join(ids, ","), nil
}

func (h collectionHandler) Deserialize(ctx context.Context, raw string) (any, error) {
	kind, joined, ok := strings.Cut(raw, ":")
	if !ok {
		return nil, fmt.Errorf("meta: malformed collection reference %q", raw)
	}
	if h.resolver == nil {
		return nil, ErrNoResolver
	}
	var entities []Entity
	for _, id := range strings.Split(joined, ",") {
		if id == "" {
			continue
		}
		ent, found, err := h.resolver.ResolveEntity(ctx, kind, id)
		if err != nil {
			return nil, fmt.Errorf("resolve %s:%s: %w", kind, id, err)
		}
		if !found {
			continue
		}
		entities = append(entities, ent)
	}
	return entities, nil
}

type dateTimeHandler struct{}

func (dateTimeHandler) Tag() TypeTag { return TypeDateTime }

func (dateTimeHandler) CanHandle(v any) bool {
	_, ok := v.(time.Time)
	return ok
}

func (dateTimeHandler) Serialize(v any) (string, error) {
	t, ok := v.(time.Time)
	if !ok {
		return "", fmt.Errorf("meta: datetime handler given %T", v)
	}
	return t.Format(dateTimeLayout), nil
}

func (dateTimeHandler) Deserialize(_ context.Context, raw string) (any, error) {
	t, err := time.Parse(dateTimeLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("parse datetime %q: %w", raw, err)
	}
	return t, nil
}

type booleanHandler struct{}

func (booleanHandler) Tag() TypeTag { return TypeBoolean }

func (booleanHandler) CanHandle(v any) bool {
	_, ok := v.(bool)
	return ok
}

func (booleanHandler) Serialize(v any) (string, error) {
	b, ok := v.(bool)
	if !ok {
		return "", fmt.Errorf("meta: boolean handler given %T", v)
	}
	if b {
		return "1", nil
	}
	return "0", nil
}

func (booleanHandler) Deserialize(_ context.Context, raw string) (any, error) {
	switch raw {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return nil, fmt.Errorf("meta: invalid boolean payload %q", raw)
	}
}

// integerHandler accepts every Go integer kind and decodes to int64.
// Unsigned values above the int64 range decode back to uint64.
type integerHandler struct{}

func (integerHandler) Tag() TypeTag { return TypeInteger }

func (integerHandler) CanHandle(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func (integerHandler) Serialize(v any) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.FormatInt(int64(n), 10), nil
	case int8:
		return strconv.FormatInt(int64(n), 10), nil
	case int16:
		return strconv.FormatInt(int64(n), 10), nil
	case int32:
		return strconv.FormatInt(int64(n), 10), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case uint:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint64:
		return strconv.FormatUint(n, 10), nil
	}
	return "", fmt.Errorf("meta: integer handler given %T", v)
}

func (integerHandler) Deserialize(_ context.Context, raw string) (any, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err == nil {
		return n, nil
	}
	if u, uerr := strconv.ParseUint(raw, 10, 64); uerr == nil {
		return u, nil
	}
	return nil, fmt.Errorf("parse integer %q: %w", raw, err)
}

// doubleHandler accepts native floats only; numeric strings stay strings.
type doubleHandler struct{}

func (doubleHandler) Tag() TypeTag { return TypeDouble }

func (doubleHandler) CanHandle(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return false
}

func (doubleHandler) Serialize(v any) (string, error) {
	switch f := v.(type) {
	case float32:
		return strconv.FormatFloat(float64(f), 'g', -1, 64), nil
	case float64:
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("meta: double handler given %T", v)
}

func (doubleHandler) Deserialize(_ context.Context, raw string) (any, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("parse double %q: %w", raw, err)
	}
	return f, nil
}

type stringHandler struct{}

func (stringHandler) Tag() TypeTag { return TypeString }

func (stringHandler) CanHandle(v any) bool {
	_, ok := v.(string)
	return ok
}

func (stringHandler) Serialize(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("meta: string handler given %T", v)
	}
	return s, nil
}

func (stringHandler) Deserialize(_ context.Context, raw string) (any, error) {
	return raw, nil
}

// arrayHandler stores JSON-compatible sequences and string-keyed maps.
// Byte slices are excluded: JSON would base64 them, breaking the round trip.
type arrayHandler struct{}

func (arrayHandler) Tag() TypeTag { return TypeArray }

func (arrayHandler) CanHandle(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return false
	}
	switch rv.Kind() {
	case reflect.Slice:
		return rv.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return true
	case reflect.Map:
		return rv.Type().Key().Kind() == reflect.String
	}
	return false
}

func (arrayHandler) Serialize(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode array: %w", err)
	}
	return string(data), nil
}

func (arrayHandler) Deserialize(_ context.Context, raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode array: %w", err)
	}
	return v, nil
}

// objectHandler captures the exported fields of generic structs. Decoding is
// structural, not nominal: the result is a map of field names to values.
type objectHandler struct{}

func (objectHandler) Tag() TypeTag { return TypeObject }

func (objectHandler) CanHandle(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return false
	}
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.Struct
}

func (objectHandler) Serialize(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode object: %w", err)
	}
	return string(data), nil
}

func (objectHandler) Deserialize(_ context.Context, raw string) (any, error) {
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return v, nil
}
