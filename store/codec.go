package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// FormatVersion identifies the record layout written by this package.
const FormatVersion = 1

// zstdMagic is the frame header of a zstd stream. Records starting with it
// are decompressed before decoding.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// record is the on-disk layout of an Entry.
type record struct {
	Format    int       `json:"format"`
	Group     string    `json:"group"`
	Key       string    `json:"key"`
	Kind      Kind      `json:"kind"`
	ExpiresAt int64     `json:"expiresAt"`
	Value     wireValue `json:"value"`
}

// wireValue carries a kind tag next to every nested value so that an int
// inside a list does not come back as a float, and bytes do not come back as
// a string.
type wireValue struct {
	Kind Kind            `json:"k"`
	V    json.RawMessage `json:"v,omitempty"`
}

type wireObject struct {
	Type   string      `json:"type"`
	Fields []wireField `json:"fields"`
}

type wireField struct {
	Name  string    `json:"name"`
	Value wireValue `json:"value"`
}

var (
	encOnce sync.Once
	encoder *zstd.Encoder
	decOnce sync.Once
	decoder *zstd.Decoder
)

func zstdEncoder() *zstd.Encoder {
	encOnce.Do(func() {
		encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return encoder
}

func zstdDecoder() *zstd.Decoder {
	decOnce.Do(func() {
		decoder, _ = zstd.NewReader(nil)
	})
	return decoder
}

// Marshal encodes e into its record form. When compress is set the JSON
// document is wrapped in a zstd frame.
func Marshal(e *Entry, compress bool) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil entry", ErrUnsupportedValue)
	}
	wv, err := encodeValue(e.Value)
	if err != nil {
		return nil, err
	}
	if e.Kind != "" && e.Kind != wv.Kind {
		return nil, fmt.Errorf("%w: kind %q does not match value kind %q", ErrUnsupportedValue, e.Kind, wv.Kind)
	}

	data, err := json.Marshal(record{
		Format:    FormatVersion,
		Group:     e.Group,
		Key:       e.Key,
		Kind:      wv.Kind,
		ExpiresAt: e.ExpiresAt,
		Value:     wv,
	})
	if err != nil {
		return nil, fmt.Errorf("store: marshal record: %w", err)
	}

	if compress {
		if enc := zstdEncoder(); enc != nil {
			return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
		}
	}
	return data, nil
}

// Unmarshal decodes a record. Anything that is not a complete record of the
// current format is reported as ErrMalformed.
func Unmarshal(data []byte) (*Entry, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		dec := zstdDecoder()
		if dec == nil {
			return nil, fmt.Errorf("%w: zstd decoder unavailable", ErrMalformed)
		}
		plain, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		data = plain
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if rec.Format != FormatVersion {
		return nil, fmt.Errorf("%w: format %d", ErrMalformed, rec.Format)
	}
	if rec.Group == "" || !rec.Kind.Valid() || rec.Kind != rec.Value.Kind || rec.ExpiresAt < 0 {
		return nil, fmt.Errorf("%w: incomplete record", ErrMalformed)
	}

	v, err := decodeValue(rec.Value)
	if err != nil {
		return nil, err
	}
	return &Entry{
		Group:     rec.Group,
		Key:       rec.Key,
		Kind:      rec.Kind,
		ExpiresAt: rec.ExpiresAt,
		Value:     v,
	}, nil
}

func encodeValue(v any) (wireValue, error) {
	kind, err := KindOf(v)
	if err != nil {
		return wireValue{}, err
	}

	var payload any
	switch kind {
	case KindNull:
		return wireValue{Kind: kind}, nil
	case KindList:
		items := v.([]any)
		out := make([]wireValue, len(items))
		for i, item := range items {
			if out[i], err = encodeValue(item); err != nil {
				return wireValue{}, err
			}
		}
		payload = out
	case KindMap:
		m := v.(map[string]any)
		out := make(map[string]wireValue, len(m))
		for k, item := range m {
			if out[k], err = encodeValue(item); err != nil {
				return wireValue{}, err
			}
		}
		payload = out
	case KindObject:
		o := v.(*Object)
		wo := wireObject{Type: o.Type, Fields: make([]wireField, len(o.Fields))}
		for i, f := range o.Fields {
			fv, err := encodeValue(f.Value)
			if err != nil {
				return wireValue{}, fmt.Errorf("field %q: %w", f.Name, err)
			}
			wo.Fields[i] = wireField{Name: f.Name, Value: fv}
		}
		payload = wo
	case KindFloat:
		f := v.(float64)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return wireValue{}, fmt.Errorf("%w: non-finite float", ErrUnsupportedValue)
		}
		payload = f
	default:
		payload = v
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return wireValue{}, fmt.Errorf("%w: %w", ErrUnsupportedValue, err)
	}
	return wireValue{Kind: kind, V: raw}, nil
}

func decodeValue(wv wireValue) (any, error) {
	into := func(dst any) error {
		if len(wv.V) == 0 {
			return fmt.Errorf("%w: missing %s value", ErrMalformed, wv.Kind)
		}
		if err := json.Unmarshal(wv.V, dst); err != nil {
			return fmt.Errorf("%w: %s value: %w", ErrMalformed, wv.Kind, err)
		}
		return nil
	}

	switch wv.Kind {
	case KindNull:
		return nil, nil
	case KindBool:
		var b bool
		err := into(&b)
		return b, err
	case KindInt:
		var n int64
		err := into(&n)
		return n, err
	case KindFloat:
		var f float64
		err := into(&f)
		return f, err
	case KindString:
		var s string
		err := into(&s)
		return s, err
	case KindBytes:
		var b []byte
		err := into(&b)
		return b, err
	case KindList:
		var items []wireValue
		if err := into(&items); err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case KindMap:
		var m map[string]wireValue
		if err := into(&m); err != nil {
			return nil, err
		}
		out := make(map[string]any, len(m))
		for k, item := range m {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case KindObject:
		var wo wireObject
		if err := into(&wo); err != nil {
			return nil, err
		}
		o := &Object{Type: wo.Type, Fields: make([]Field, len(wo.Fields))}
		for i, f := range wo.Fields {
			v, err := decodeValue(f.Value)
			if err != nil {
				return nil, err
			}
			o.Fields[i] = Field{Name: f.Name, Value: v}
		}
		return o, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, wv.Kind)
	}
}
