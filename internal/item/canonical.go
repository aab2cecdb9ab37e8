package item

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// envelope is the persisted form of a value: {"k":"<kind>","v":<payload>}.
type envelope struct {
	K string          `json:"k"`
	V json.RawMessage `json:"v,omitempty"`
}

// MarshalCanonical produces the canonical encoding of a value.
// This is the ONLY serialization used for persisted values.
//
// Strings are NFC normalized and HTML escaping is disabled, so two values
// that are Equal always encode to identical bytes.
func MarshalCanonical(v Value) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("marshal canonical: no value")
	}

	var payload any
	switch val := v.(type) {
	case Null:
		return []byte(`{"k":"null"}`), nil
	case String:
		payload = norm.NFC.String(string(val))
	case Int:
		payload = int64(val)
	case Long:
		payload = int64(val)
	case Bool:
		payload = bool(val)
	case LongSet:
		payload = nonNilLongs(val)
	case LongList:
		payload = nonNilLongs(val)
	case StringSet:
		payload = nfcAll(val)
	case StringList:
		payload = nfcAll(val)
	default:
		return nil, fmt.Errorf("marshal canonical: unsupported value %T", v)
	}

	body, err := encodeNoEscape(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"k":"`)
	buf.WriteString(v.Kind().String())
	buf.WriteString(`","v":`)
	buf.Write(body)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Normalize returns v with every string in NFC. Values enter the store
// through Normalize so the snapshot holds the bytes that are persisted.
func Normalize(v Value) Value {
	switch val := v.(type) {
	case String:
		return String(norm.NFC.String(string(val)))
	case StringSet:
		if val == nil {
			return v
		}
		return NewStringSet(nfcAll(val)...)
	case StringList:
		if val == nil {
			return v
		}
		return StringList(nfcAll(val))
	}
	return v
}

// UnmarshalCanonical parses the canonical encoding back into a Value.
func UnmarshalCanonical(data []byte) (Value, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal canonical: %w", err)
	}
	kind, err := ParseKind(env.K)
	if err != nil {
		return nil, fmt.Errorf("unmarshal canonical: %w", err)
	}
	if kind == KindNull {
		return Null{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(env.V))
	dec.UseNumber() // int64 precision for values > 2^53

	switch kind {
	case KindString:
		var s string
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("unmarshal canonical string: %w", err)
		}
		return String(s), nil
	case KindInt, KindLong:
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return nil, fmt.Errorf("unmarshal canonical %s: %w", kind, err)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("unmarshal canonical %s: %w", kind, err)
		}
		if kind == KindInt {
			return Int(i), nil
		}
		return Long(i), nil
	case KindBool:
		var b bool
		if err := dec.Decode(&b); err != nil {
			return nil, fmt.Errorf("unmarshal canonical bool: %w", err)
		}
		return Bool(b), nil
	case KindLongSet, KindLongList:
		var nums []json.Number
		if err := dec.Decode(&nums); err != nil {
			return nil, fmt.Errorf("unmarshal canonical %s: %w", kind, err)
		}
		vals := make([]int64, len(nums))
		for i, n := range nums {
			if vals[i], err = n.Int64(); err != nil {
				return nil, fmt.Errorf("unmarshal canonical %s[%d]: %w", kind, i, err)
			}
		}
		if kind == KindLongSet {
			return NewLongSet(vals...), nil
		}
		return LongList(vals), nil
	case KindStringSet, KindStringList:
		var strs []string
		if err := dec.Decode(&strs); err != nil {
			return nil, fmt.Errorf("unmarshal canonical %s: %w", kind, err)
		}
		if kind == KindStringSet {
			return NewStringSet(strs...), nil
		}
		return StringList(strs), nil
	}
	return nil, fmt.Errorf("unmarshal canonical: unsupported kind %s", kind)
}

// Format renders a value for humans (CLI output, golden traces).
func Format(v Value) string {
	switch val := v.(type) {
	case nil:
		return "<none>"
	case Null:
		return "null"
	case String:
		return strconv.Quote(string(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Long:
		return strconv.FormatInt(int64(val), 10)
	case Bool:
		return strconv.FormatBool(bool(val))
	case LongSet:
		return "{" + joinLongs(val) + "}"
	case LongList:
		return "[" + joinLongs(val) + "]"
	case StringSet:
		return "{" + joinStrings(val) + "}"
	case StringList:
		return "[" + joinStrings(val) + "]"
	}
	return fmt.Sprintf("%v", v)
}

// Coerce converts a decoded YAML/JSON/CUE scalar or list into a Value of the
// given kind. A nil input yields Null.
func Coerce(kind Kind, raw any) (Value, error) {
	v, err := coerce(kind, raw)
	if err != nil {
		return nil, err
	}
	return Normalize(v), nil
}

func coerce(kind Kind, raw any) (Value, error) {
	if raw == nil {
		return Null{}, nil
	}
	switch kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return String(s), nil
	case KindInt:
		n, err := toInt64(raw)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("int value %d out of range", n)
		}
		return Int(n), nil
	case KindLong:
		n, err := toInt64(raw)
		if err != nil {
			return nil, err
		}
		return Long(n), nil
	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", raw)
		}
		return Bool(b), nil
	case KindLongSet, KindLongList:
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("expected list, got %T", raw)
		}
		vals := make([]int64, len(list))
		for i, elem := range list {
			n, err := toInt64(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			vals[i] = n
		}
		if kind == KindLongSet {
			return NewLongSet(vals...), nil
		}
		return LongList(vals), nil
	case KindStringSet, KindStringList:
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("expected list, got %T", raw)
		}
		vals := make([]string, len(list))
		for i, elem := range list {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("[%d]: expected string, got %T", i, elem)
			}
			vals[i] = s
		}
		if kind == KindStringSet {
			return NewStringSet(vals...), nil
		}
		return StringList(vals), nil
	}
	return nil, fmt.Errorf("cannot coerce into kind %s", kind)
}

func toInt64(raw any) (int64, error) {
	switch n := raw.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("integer %d out of range", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case float64:
		// YAML and JSON decoders may hand integers over as float64.
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("floats are not storable: %v", n)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("expected integer, got %T", raw)
}

// encodeNoEscape marshals with HTML escaping disabled, without the trailing newline.
func encodeNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func nonNilLongs(vals []int64) []int64 {
	if vals == nil {
		return []int64{}
	}
	return vals
}

func nfcAll(vals []string) []string {
	out := make([]string, len(vals))
	for i, s := range vals {
		out[i] = norm.NFC.String(s)
	}
	return out
}

func joinLongs(vals []int64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}

func joinStrings(vals []string) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Quote(v)
	}
	return strings.Join(parts, ",")
}
