package metadata

import (
	"fmt"

	"github.com/hupe1980/oriondb/codec"
)

// ErrInvalidTag is a named error type for an unknown value tag on read.
type ErrInvalidTag struct {
	Tag uint8
}

func (e *ErrInvalidTag) Error() string {
	return fmt.Sprintf("metadata: invalid value tag %d", e.Tag)
}

// WriteValue writes a Value as its tag byte followed by the payload:
// i64, f64, or a u64 length-prefixed string.
func WriteValue(w *codec.Writer, v Value) error {
	if err := w.WriteUint8(uint8(v.Kind)); err != nil {
		return err
	}
	switch v.Kind {
	case KindInt:
		return w.WriteInt64(v.I64)
	case KindFloat:
		return w.WriteFloat64(v.F64)
	case KindString:
		return w.WriteString(v.S)
	default:
		return &ErrInvalidTag{Tag: uint8(v.Kind)}
	}
}

// ReadValue reads a tagged Value. Any tag outside {0,1,2} is a hard
// failure.
func ReadValue(r *codec.Reader) (Value, error) {
	tag, err := r.ReadUint8()
	if err != nil {
		return Value{}, err
	}
	switch Kind(tag) {
	case KindInt:
		i, err := r.ReadInt64()
		if err != nil {
			return Value{}, err
		}
		return Int(i), nil
	case KindFloat:
		f, err := r.ReadFloat64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case KindString:
		s, err := r.ReadString()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	default:
		return Value{}, &ErrInvalidTag{Tag: tag}
	}
}

// WriteMetadata writes a record as a u64 pair count followed by
// (string key, Value) pairs in ascending key order.
func WriteMetadata(w *codec.Writer, m Metadata) error {
	if err := w.WriteUint64(uint64(len(m))); err != nil {
		return err
	}
	for _, k := range m.Keys() {
		if err := w.WriteString(k); err != nil {
			return err
		}
		if err := WriteValue(w, m[k]); err != nil {
			return err
		}
	}
	return nil
}

// ReadMetadata reads a record written by WriteMetadata.
func ReadMetadata(r *codec.Reader) (Metadata, error) {
	pairs, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	m := make(Metadata, pairs)
	for range pairs {
		k, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := ReadValue(r)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}
