package result

import (
	"strconv"
	"strings"
)

// Kind is the detected type of a JSON scalar or container.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindInt
	KindFloat
	KindString
	KindObject
	KindArray
)

var kindNames = [...]string{"undefined", "null", "boolean", "integer", "float", "string", "object", "array"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Value is a parsed JSON value together with its kind. Containers keep
// their raw text.
type Value struct {
	kind Kind
	raw  string
	b    bool
	i    int64
	f    float64
	s    string
}

// ParseValue detects the kind of the JSON text s and parses scalars.
func ParseValue(s string) Value {
	s = strings.TrimSpace(s)
	v := Value{raw: s}

	switch {
	case s == "":
		v.kind = KindUndefined
	case s == "null":
		v.kind = KindNull
	case s == "true" || s == "false":
		v.kind = KindBool
		v.b = s == "true"
	case s[0] == '{':
		v.kind = KindObject
	case s[0] == '[':
		v.kind = KindArray
	case s[0] == '"':
		v.kind = KindString
		if u, err := strconv.Unquote(s); err == nil {
			v.s = u
		} else {
			v.s = strings.Trim(s, `"`)
		}
	default:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			v.kind = KindInt
			v.i = i
			v.f = float64(i)
			break
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			v.kind = KindFloat
			v.f = f
			v.i = int64(f)
			break
		}
		v.kind = KindUndefined
	}

	return v
}

// Kind returns the detected kind.
func (v Value) Kind() Kind { return v.kind }

// Raw returns the JSON text the value was parsed from.
func (v Value) Raw() string { return v.raw }

func (v Value) Bool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt, KindFloat:
		return v.f != 0
	}
	return false
}

func (v Value) Int() int64 { return v.i }

func (v Value) Float() float64 { return v.f }

// String returns the unquoted string for string values and the raw text
// otherwise.
func (v Value) String() string {
	if v.kind == KindString {
		return v.s
	}
	return v.raw
}
