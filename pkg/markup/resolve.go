package markup

import (
	"context"
	"slices"
	"strings"
)

// resolveSegments waits for every deferred segment, then assembles the
// content in template order. Deferred values are written with the same
// dispatch as interpolated values, so an Escaped stays verbatim while a plain
// string is escaped. Callbacks are gathered in template order after the
// template-level ones.
func resolveSegments(ctx context.Context, segments []segment, callbacks []Callback) (Escaped, error) {
	futures := make([]*Future, len(segments))
	for i, s := range segments {
		if s.kind == segmentFuture {
			futures[i] = s.future
		}
	}
	values, err := awaitAll(ctx, futures)
	if err != nil {
		return Escaped{}, err
	}

	var out strings.Builder
	collected := slices.Clone(callbacks)
	for i, s := range segments {
		switch s.kind {
		case segmentText:
			out.WriteString(s.text)
		case segmentEscaped:
			collected = append(collected, s.escaped.callbacks...)
			out.WriteString(s.escaped.s)
		case segmentFuture:
			e, err := renderValue(ctx, values[i])
			if err != nil {
				return Escaped{}, err
			}
			collected = append(collected, e.callbacks...)
			out.WriteString(e.s)
		}
	}
	return Escaped{s: out.String(), callbacks: collected}, nil
}

// renderValue turns a settled value into escaped content, awaiting any
// deferred value nested inside it.
func renderValue(ctx context.Context, v any) (Escaped, error) {
	switch r := v.(type) {
	case nil:
		return Escaped{}, nil
	case Escaped:
		return r, nil
	case *Escaped:
		if r == nil {
			return Escaped{}, nil
		}
		return *r, nil
	case string:
		return Escaped{s: Escape(r)}, nil
	}
	var b Builder
	b.Value(v)
	res, err := b.Finish(ctx)
	if err != nil {
		return Escaped{}, err
	}
	return res.Await(ctx)
}
