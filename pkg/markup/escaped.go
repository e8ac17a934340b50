package markup

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
)

// Escaped is a string that is safe to emit verbatim, optionally carrying the
// callbacks to run when the surrounding document is finalized. The zero value
// is an empty escaped string without callbacks.
//
// Escaped values are immutable: every transformation returns a new value.
type Escaped struct {
	s         string
	callbacks []Callback
}

// Raw marks the string form of v as already escaped and attaches the given
// callbacks. No escaping is performed; the caller asserts the content is safe.
func Raw(v any, callbacks ...Callback) Escaped {
	return Escaped{s: toString(v), callbacks: slices.Clone(callbacks)}
}

// String returns the escaped content.
func (e Escaped) String() string { return e.s }

// IsEscaped reports true. It exists so Escaped values can be recognised
// through an interface without a type switch.
func (e Escaped) IsEscaped() bool { return true }

// Callbacks returns a copy of the attached callbacks, or nil when there are none.
func (e Escaped) Callbacks() []Callback { return slices.Clone(e.callbacks) }

// WithCallbacks returns a copy of e with callbacks appended to its own.
func (e Escaped) WithCallbacks(callbacks ...Callback) Escaped {
	if len(callbacks) == 0 {
		return e
	}
	merged := make([]Callback, 0, len(e.callbacks)+len(callbacks))
	merged = append(merged, e.callbacks...)
	merged = append(merged, callbacks...)
	return Escaped{s: e.s, callbacks: merged}
}

// IsEscaped reports whether v is marked safe to emit verbatim: an Escaped, a
// Result that is already ready, or a value whose IsEscaped method reports true.
// Build inlines exactly these values without escaping. Plain strings never are.
func IsEscaped(v any) bool {
	switch r := v.(type) {
	case Escaped:
		return true
	case *Escaped:
		return r != nil
	case Result:
		return !r.Pending()
	case interface{ IsEscaped() bool }:
		return r.IsEscaped()
	}
	return false
}

// toString converts v to the string form used by Raw and by the fallback
// branch of value dispatch.
func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case Escaped:
		return s.s
	case []byte:
		return string(s)
	case error:
		return s.Error()
	}
	if n, ok := formatNumber(v); ok {
		return n
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}

// formatNumber returns the decimal form of any integer or float kind,
// including named numeric types.
func formatNumber(v any) (string, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	default:
		return "", false
	}
}
