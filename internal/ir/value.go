package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
)

// IRValue is a sealed interface over the values a block field may hold.
// Only IRNull, IRString, IRInt, IRBool, IRArray and IRObject implement it.
// There is deliberately no float variant.
type IRValue interface {
	irValue()
}

// IRNull marks a cleared field.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString is a text, option or reference value.
type IRString string

func (IRString) irValue() {}

// IRInt is a numeric value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool is a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray is an ordered list of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject maps keys to values. Iterate with SortedKeys for determinism.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// IsNull reports whether v is absent or an explicit IRNull.
func IsNull(v IRValue) bool {
	if v == nil {
		return true
	}
	_, ok := v.(IRNull)
	return ok
}

// SortedKeys returns keys ordered by UTF-16 code units (RFC 8785).
// Go's native string order compares UTF-8 bytes and differs for
// characters outside the BMP.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	for i := 0; i < len(a16) && i < len(b16); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// MarshalJSON writes the object with sorted keys. Not canonical: use
// MarshalCanonical for anything that gets hashed.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalIRValue encodes any IRValue, including IRNull, as JSON.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			eb, err := MarshalIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(eb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// DecodeIRValue parses JSON produced by MarshalIRValue. null decodes to
// IRNull; numbers with a fraction or exponent are rejected.
func DecodeIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}

// FromAny converts decoded JSON/YAML data into an IRValue.
func FromAny(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not allowed in field values: %s", val)
		}
		return IRInt(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not allowed in field values: %v", val)
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			iv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = iv
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			iv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = iv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// EqualValues reports deep equality of two values. nil and IRNull are equal.
func EqualValues(a, b IRValue) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	ab, errA := MarshalIRValue(a)
	bb, errB := MarshalIRValue(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
