package store

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Kind tags the structural shape of a stored value. It is decided once, when
// the entry is written, and travels with the record so that a read restores
// the same shape without guessing.
type Kind string

const (
	KindNull   Kind = "null"
	KindBool   Kind = "bool"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindString Kind = "string"
	KindBytes  Kind = "bytes"
	KindList   Kind = "list"
	KindMap    Kind = "map"
	KindObject Kind = "object"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindNull, KindBool, KindInt, KindFloat, KindString, KindBytes, KindList, KindMap, KindObject:
		return true
	}
	return false
}

// Composite reports whether values of this kind hold references that must be
// copied to avoid aliasing.
func (k Kind) Composite() bool {
	switch k {
	case KindBytes, KindList, KindMap, KindObject:
		return true
	}
	return false
}

// Field is a named member of an Object.
type Field struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Object is an object-like record: a type name plus ordered named fields.
// Values cached as *Object or Object are always copied across the cache
// boundary.
type Object struct {
	Type   string
	Fields []Field
}

// NewObject creates an Object with the given type name.
func NewObject(typ string) *Object {
	return &Object{Type: typ}
}

// Set assigns a field, replacing an existing field of the same name.
func (o *Object) Set(name string, value any) *Object {
	for i := range o.Fields {
		if o.Fields[i].Name == name {
			o.Fields[i].Value = value
			return o
		}
	}
	o.Fields = append(o.Fields, Field{Name: name, Value: value})
	return o
}

// Get returns a field value by name.
func (o *Object) Get(name string) (any, bool) {
	for _, f := range o.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of o.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	out := &Object{Type: o.Type, Fields: make([]Field, len(o.Fields))}
	for i, f := range o.Fields {
		out.Fields[i] = Field{Name: f.Name, Value: Clone(f.Value)}
	}
	return out
}

// Clone deep-copies composite values of the supported shapes. Scalars and
// values of unknown shape are returned unchanged.
func Clone(v any) any {
	switch val := v.(type) {
	case *Object:
		return val.Clone()
	case Object:
		return *val.Clone()
	case []byte:
		if val == nil {
			return val
		}
		out := make([]byte, len(val))
		copy(out, val)
		return out
	case []any:
		if val == nil {
			return val
		}
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = Clone(e)
		}
		return out
	case map[string]any:
		if val == nil {
			return val
		}
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = Clone(e)
		}
		return out
	default:
		return v
	}
}

// KindOf reports the kind of an already-normalized value.
func KindOf(v any) (Kind, error) {
	switch val := v.(type) {
	case nil:
		return KindNull, nil
	case bool:
		return KindBool, nil
	case int64:
		return KindInt, nil
	case float64:
		return KindFloat, nil
	case string:
		return KindString, nil
	case []byte:
		return KindBytes, nil
	case []any:
		return KindList, nil
	case map[string]any:
		return KindMap, nil
	case *Object:
		if val == nil {
			return KindNull, nil
		}
		return KindObject, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// Normalize converts v into the canonical shape used by the codec: int64 for
// every integer type, float64 for floats, []any, map[string]any and *Object
// for composites.
//
// Values of other shapes (structs, typed slices, maps keyed by non-strings)
// go through a JSON round trip and come back as generic maps and lists; lossy
// is true in that case because the Go type is not preserved. An error means
// the value cannot be represented at all.
func Normalize(v any) (out any, kind Kind, lossy bool, err error) {
	out, err = normalizeStrict(v)
	if err == nil {
		kind, err = KindOf(out)
		return out, kind, false, err
	}

	raw, jerr := json.Marshal(v)
	if jerr != nil {
		return nil, "", true, fmt.Errorf("%w: %T: %w", ErrUnsupportedValue, v, jerr)
	}
	var generic any
	if jerr = json.Unmarshal(raw, &generic); jerr != nil {
		return nil, "", true, fmt.Errorf("%w: %T: %w", ErrUnsupportedValue, v, jerr)
	}
	out, err = normalizeStrict(fromJSON(generic))
	if err != nil {
		return nil, "", true, err
	}
	kind, err = KindOf(out)
	return out, kind, true, err
}

func normalizeStrict(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string, int64:
		return val, nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("%w: non-finite float", ErrUnsupportedValue)
		}
		return val, nil
	case float32:
		return normalizeStrict(float64(val))
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("%w: uint overflows int64", ErrUnsupportedValue)
		}
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("%w: uint64 overflows int64", ErrUnsupportedValue)
		}
		return int64(val), nil
	case []byte:
		return Clone(val), nil
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			n, err := normalizeStrict(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			n, err := normalizeStrict(e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case Object:
		return normalizeObject(&val)
	case *Object:
		if val == nil {
			return nil, nil
		}
		return normalizeObject(val)
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, nil
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out, nil
	}

	// Named scalar types (type Status string, type ID int64, ...).
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Float32, reflect.Float64:
		return normalizeStrict(rv.Float())
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

func normalizeObject(o *Object) (*Object, error) {
	out := &Object{Type: o.Type, Fields: make([]Field, len(o.Fields))}
	for i, f := range o.Fields {
		n, err := normalizeStrict(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		out.Fields[i] = Field{Name: f.Name, Value: n}
	}
	return out, nil
}

// fromJSON maps the generic output of encoding/json (float64 numbers) onto
// int64 where the number is integral.
func fromJSON(v any) any {
	switch val := v.(type) {
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
		return val
	case []any:
		for i, e := range val {
			val[i] = fromJSON(e)
		}
		return val
	case map[string]any:
		for k, e := range val {
			val[k] = fromJSON(e)
		}
		return val
	default:
		return v
	}
}
