package transcript

import (
	"fmt"
	"strconv"
)

// ScalarKind distinguishes annotation values.
type ScalarKind uint8

// ScalarKind values enumerate the TOML scalar subset annotations accept.
const (
	ScalarString ScalarKind = iota
	ScalarInt
	ScalarBool
)

func (k ScalarKind) String() string {
	switch k {
	case ScalarString:
		return "string"
	case ScalarInt:
		return "integer"
	case ScalarBool:
		return "boolean"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Scalar is a single annotation value: a string, an integer or a boolean.
//
// The zero value is the empty string.
type Scalar struct {
	kind ScalarKind
	str  string
	num  int64
	flag bool
}

// StringScalar returns a string annotation value.
func StringScalar(s string) Scalar {
	return Scalar{kind: ScalarString, str: s}
}

// IntScalar returns an integer annotation value.
func IntScalar(n int64) Scalar {
	return Scalar{kind: ScalarInt, num: n}
}

// BoolScalar returns a boolean annotation value.
func BoolScalar(b bool) Scalar {
	return Scalar{kind: ScalarBool, flag: b}
}

// Kind reports which variant s holds.
func (s Scalar) Kind() ScalarKind {
	return s.kind
}

// AsString returns the string value or an error wrapping [ErrScalarType].
func (s Scalar) AsString() (string, error) {
	if s.kind != ScalarString {
		return "", s.mismatch(ScalarString)
	}

	return s.str, nil
}

// AsInt returns the integer value or an error wrapping [ErrScalarType].
func (s Scalar) AsInt() (int64, error) {
	if s.kind != ScalarInt {
		return 0, s.mismatch(ScalarInt)
	}

	return s.num, nil
}

// AsBool returns the boolean value or an error wrapping [ErrScalarType].
func (s Scalar) AsBool() (bool, error) {
	if s.kind != ScalarBool {
		return false, s.mismatch(ScalarBool)
	}

	return s.flag, nil
}

// Text renders the value without TOML quoting: strings verbatim, integers in
// base 10, booleans as true/false.
func (s Scalar) Text() string {
	switch s.kind {
	case ScalarInt:
		return strconv.FormatInt(s.num, 10)
	case ScalarBool:
		return strconv.FormatBool(s.flag)
	default:
		return s.str
	}
}

// String implements fmt.Stringer. Strings are quoted so that "1" and 1 are
// distinguishable in messages.
func (s Scalar) String() string {
	if s.kind == ScalarString {
		return strconv.Quote(s.str)
	}

	return s.Text()
}

// Equal reports whether both kind and value match.
func (s Scalar) Equal(other Scalar) bool {
	return s == other
}

// native returns the value as the Go type the TOML encoder expects.
func (s Scalar) native() any {
	switch s.kind {
	case ScalarInt:
		return s.num
	case ScalarBool:
		return s.flag
	default:
		return s.str
	}
}

func (s Scalar) mismatch(want ScalarKind) error {
	return fmt.Errorf("%w: want %s, have %s", ErrScalarType, want, s.kind)
}

// ParseScalar interprets command-line style input: true/false become
// booleans, base-10 integers become integers, everything else is a string.
// Wrap the value in double quotes to force a string ("\"12\"").
func ParseScalar(raw string) Scalar {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		if unquoted, err := strconv.Unquote(raw); err == nil {
			return StringScalar(unquoted)
		}
	}

	switch raw {
	case "true":
		return BoolScalar(true)
	case "false":
		return BoolScalar(false)
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return IntScalar(n)
	}

	return StringScalar(raw)
}
