package markup

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Phase tells a callback at which point of rendering it is being invoked.
type Phase int

const (
	// PhaseStringify is used when the whole document is resolved to a string.
	PhaseStringify Phase = 1
	// PhaseBeforeStream is used before the first byte of a stream is written.
	PhaseBeforeStream Phase = 2
	// PhaseStream is used while a stream is being written.
	PhaseStream Phase = 3
)

func (p Phase) String() string {
	switch p {
	case PhaseStringify:
		return "Stringify"
	case PhaseBeforeStream:
		return "BeforeStream"
	case PhaseStream:
		return "Stream"
	default:
		return "Phase(" + strconv.Itoa(int(p)) + ")"
	}
}

// Accumulator is the single mutable slot holding the content assembled so far
// during one callback resolution. Each Render or Stream call allocates its own;
// an Accumulator must not be shared between independent resolutions.
type Accumulator struct {
	mu sync.Mutex
	s  string
}

// NewAccumulator returns an accumulator seeded with s.
func NewAccumulator(s string) *Accumulator {
	return &Accumulator{s: s}
}

// String returns the current content.
func (a *Accumulator) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.s
}

// Set replaces the content.
func (a *Accumulator) Set(s string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s = s
}

// Append adds s to the end of the content.
func (a *Accumulator) Append(s string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s += s
}

// Update replaces the content with fn applied to it, atomically with respect
// to the other methods.
func (a *Accumulator) Update(fn func(string) string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s = fn(a.s)
}

// CallbackOptions is passed to every callback invocation.
type CallbackOptions struct {
	Phase  Phase
	Buffer *Accumulator
}

// Callback is a post-processing hook attached to an Escaped value. It may edit
// opts.Buffer directly and may return a Future whose value is resolved against
// the same buffer; returning a nil Future means there is nothing further to do.
type Callback func(ctx context.Context, opts CallbackOptions) (*Future, error)

// ResolveCallbacks runs the callbacks carried by v at the given phase.
//
// v may be an Escaped, a Result, a *Future or a plain value. Deferred inputs
// are awaited first. A value without callbacks is returned as it is. Otherwise
// its content is seeded into acc (or appended to it when acc already exists),
// every callback is invoked in order, the futures they return are awaited
// concurrently, and each non-empty result is resolved in turn at the same phase
// against acc. When preserve is set the final content is returned as an Escaped
// carrying v's callbacks; otherwise as a plain string.
func ResolveCallbacks(ctx context.Context, v any, phase Phase, preserve bool, acc *Accumulator) (any, error) {
	v, err := settle(ctx, v)
	if err != nil {
		return nil, err
	}
	e, ok := v.(Escaped)
	if !ok || len(e.callbacks) == 0 {
		return v, nil
	}

	if acc == nil {
		acc = NewAccumulator(e.s)
	} else {
		acc.Append(e.s)
	}

	futures := make([]*Future, len(e.callbacks))
	for i, cb := range e.callbacks {
		f, err := cb(ctx, CallbackOptions{Phase: phase, Buffer: acc})
		if err != nil {
			return nil, fmt.Errorf("%s callback %d: %w", phase, i, err)
		}
		futures[i] = f
	}

	results, err := awaitAll(ctx, futures)
	if err != nil {
		return nil, fmt.Errorf("%s callback result: %w", phase, err)
	}
	for _, r := range results {
		if isEmptyResult(r) {
			continue
		}
		if _, err := ResolveCallbacks(ctx, r, phase, false, acc); err != nil {
			return nil, err
		}
	}

	if preserve {
		return Escaped{s: acc.String(), callbacks: e.callbacks}, nil
	}
	return acc.String(), nil
}

// resolveCallbacksSync is the single-phase form used by Builder.Finish for a
// template that never opened a frame: callbacks run one after another at
// PhaseStringify and any result is folded in before the next one runs.
func resolveCallbacksSync(ctx context.Context, e Escaped) (string, error) {
	if len(e.callbacks) == 0 {
		return e.s, nil
	}
	acc := NewAccumulator(e.s)
	for i, cb := range e.callbacks {
		f, err := cb(ctx, CallbackOptions{Phase: PhaseStringify, Buffer: acc})
		if err != nil {
			return "", fmt.Errorf("%s callback %d: %w", PhaseStringify, i, err)
		}
		if f == nil {
			continue
		}
		r, err := f.Await(ctx)
		if err != nil {
			return "", fmt.Errorf("%s callback result: %w", PhaseStringify, err)
		}
		if isEmptyResult(r) {
			continue
		}
		if _, err := ResolveCallbacks(ctx, r, PhaseStringify, false, acc); err != nil {
			return "", err
		}
	}
	return acc.String(), nil
}

// settle unwraps Results and Futures until a concrete value remains.
func settle(ctx context.Context, v any) (any, error) {
	for {
		switch r := v.(type) {
		case Result:
			if !r.Pending() {
				return r.ready, nil
			}
			next, err := r.pending.Await(ctx)
			if err != nil {
				return nil, err
			}
			v = next
		case *Future:
			next, err := r.Await(ctx)
			if err != nil {
				return nil, err
			}
			v = next
		default:
			return v, nil
		}
	}
}

func isEmptyResult(v any) bool {
	switch r := v.(type) {
	case nil:
		return true
	case string:
		return r == ""
	}
	return false
}
