package markup

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrSegmentCount is returned by Build when the number of values is not one
// less than the number of literal segments.
var ErrSegmentCount = errors.New("markup: values must number one less than segments")

// Result is what Build produces: either a ready Escaped or a pending Future
// that settles with one. A Result can be interpolated into another template.
type Result struct {
	ready   Escaped
	pending *Future
}

// Ready wraps an Escaped as a finished Result.
func Ready(e Escaped) Result { return Result{ready: e} }

// Pending reports whether the result still waits on deferred values.
func (r Result) Pending() bool { return r.pending != nil }

// Escaped returns the content of a ready result. The boolean is false while
// the result is pending.
func (r Result) Escaped() (Escaped, bool) {
	if r.pending != nil {
		return Escaped{}, false
	}
	return r.ready, true
}

// Await blocks until the result is ready or ctx is done.
func (r Result) Await(ctx context.Context) (Escaped, error) {
	if r.pending == nil {
		return r.ready, nil
	}
	v, err := r.pending.Await(ctx)
	if err != nil {
		return Escaped{}, err
	}
	e, _ := v.(Escaped)
	return e, nil
}

// Future returns the result as a Future, settled already when r is ready.
func (r Result) Future() *Future {
	if r.pending != nil {
		return r.pending
	}
	return Resolved(r.ready)
}

type segmentKind int

const (
	segmentText segmentKind = iota
	segmentEscaped
	segmentFuture
)

// segment is one entry of the composition buffer. Text segments hold content
// that is already escaped; the other kinds are frames opened for a value whose
// callbacks must survive or whose content is not known yet.
type segment struct {
	kind    segmentKind
	text    string
	escaped Escaped
	future  *Future
}

// Builder composes a template incrementally. Literal text is copied as is and
// values go through the same dispatch as Build. A Builder must not be reused
// after Finish.
type Builder struct {
	cur       strings.Builder
	segments  []segment
	callbacks []Callback
	futures   int
}

// Literal appends trusted template text.
func (b *Builder) Literal(s string) {
	b.cur.WriteString(s)
}

// Value appends an interpolated value. Slices and arrays are flattened to any
// depth and each element is handled on its own.
func (b *Builder) Value(v any) {
	if rv, ok := sequence(v); ok {
		for i := 0; i < rv.Len(); i++ {
			b.Value(rv.Index(i).Interface())
		}
		return
	}
	b.child(v)
}

// Callbacks attaches callbacks to the template as a whole. They run before
// the callbacks of any interpolated value.
func (b *Builder) Callbacks(callbacks ...Callback) {
	b.callbacks = append(b.callbacks, callbacks...)
}

func (b *Builder) child(v any) {
	if isNil(v) {
		return
	}
	switch c := v.(type) {
	case string:
		EscapeTo(&b.cur, c)
	case []byte:
		EscapeTo(&b.cur, string(c))
	case bool:
	case Escaped:
		if len(c.callbacks) > 0 {
			b.open(segment{kind: segmentEscaped, escaped: c})
			return
		}
		b.cur.WriteString(c.s)
	case *Escaped:
		b.child(*c)
	case Result:
		if c.pending != nil {
			b.open(segment{kind: segmentFuture, future: c.pending})
			return
		}
		b.child(c.ready)
	case *Future:
		b.open(segment{kind: segmentFuture, future: c})
	case escapedMarker:
		if c.IsEscaped() {
			b.cur.WriteString(toString(v))
			return
		}
		b.plain(v)
	default:
		b.plain(v)
	}
}

// escapedMarker is implemented by types that vouch for their own content.
type escapedMarker interface {
	IsEscaped() bool
}

// plain writes a value that carries no escaped marker. Numbers are checked
// before String methods, so a named numeric type keeps its decimal form.
func (b *Builder) plain(v any) {
	if err, ok := v.(error); ok {
		EscapeTo(&b.cur, err.Error())
		return
	}
	if n, ok := formatNumber(v); ok {
		b.cur.WriteString(n)
		return
	}
	if s, ok := v.(fmt.Stringer); ok {
		EscapeTo(&b.cur, s.String())
		return
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
	case reflect.String:
		EscapeTo(&b.cur, rv.String())
	case reflect.Slice:
		EscapeTo(&b.cur, string(rv.Bytes()))
	default:
		EscapeTo(&b.cur, fmt.Sprint(v))
	}
}

// open closes the current accumulator and pushes a frame after it.
func (b *Builder) open(s segment) {
	b.flush()
	if s.kind == segmentFuture {
		b.futures++
	}
	b.segments = append(b.segments, s)
}

func (b *Builder) flush() {
	if b.cur.Len() == 0 {
		return
	}
	b.segments = append(b.segments, segment{kind: segmentText, text: b.cur.String()})
	b.cur.Reset()
}

// Finish completes the template.
//
// Without any frame the accumulated text is returned ready; if template-level
// callbacks were attached they are run once at PhaseStringify first and the
// result carries none. With frames but no deferred values the content is
// assembled immediately. Otherwise a pending Result is returned and assembly
// happens on a goroutine once every deferred value has settled; it fails with
// ctx's error if ctx ends first.
func (b *Builder) Finish(ctx context.Context) (Result, error) {
	frames := len(b.segments) > 0
	b.flush()
	segments, callbacks := b.segments, b.callbacks
	b.segments, b.callbacks = nil, nil

	if !frames {
		var text string
		if len(segments) == 1 {
			text = segments[0].text
		}
		if len(callbacks) == 0 {
			return Ready(Escaped{s: text}), nil
		}
		out, err := resolveCallbacksSync(ctx, Escaped{s: text, callbacks: callbacks})
		if err != nil {
			return Result{}, err
		}
		return Ready(Escaped{s: out}), nil
	}

	if b.futures == 0 {
		e, err := resolveSegments(ctx, segments, callbacks)
		if err != nil {
			return Result{}, err
		}
		return Ready(e), nil
	}

	return Result{pending: Go(func() (any, error) {
		return resolveSegments(ctx, segments, callbacks)
	})}, nil
}

// Build composes a template from literal segments interleaved with values:
// segments[0], values[0], segments[1], ..., segments[len(segments)-1].
//
// Literal segments are never escaped. Values are dispatched by type: strings
// and byte slices are escaped; numbers are written unescaped; booleans and nil
// are skipped; slices and arrays are flattened; Escaped values are inlined, or
// kept as a frame when they carry callbacks, and so is any value whose
// IsEscaped method reports true; Futures and pending Results open a frame that
// is filled in once they settle. Anything else is converted with its Error or
// String method, or fmt.Sprint, and escaped.
func Build(ctx context.Context, segments []string, values ...any) (Result, error) {
	if len(segments) == 0 || len(values) != len(segments)-1 {
		return Result{}, fmt.Errorf("%w: %d segments, %d values", ErrSegmentCount, len(segments), len(values))
	}
	var b Builder
	for i, v := range values {
		b.Literal(segments[i])
		b.Value(v)
	}
	b.Literal(segments[len(segments)-1])
	return b.Finish(ctx)
}

// sequence reports whether v should be flattened. Byte slices are strings.
func sequence(v any) (reflect.Value, bool) {
	if v == nil {
		return reflect.Value{}, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Array:
		return rv, true
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return reflect.Value{}, false
		}
		return rv, true
	}
	return reflect.Value{}, false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
