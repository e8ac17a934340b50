/*
Package markup builds HTML-safe strings from literal template text and
interpolated values.

Literal segments are trusted and copied verbatim. Interpolated values are
dispatched by type: strings are escaped, numbers are written as-is, booleans
and nil vanish, slices are flattened to any depth, and Escaped values (made
with Raw or returned by Build) are inlined without a second pass of escaping.

Values that are not available yet can be interpolated as a *Future. When a
template contains one, Build returns a pending Result whose content is
assembled, in template order, once every future has settled.

An Escaped value may carry callbacks. They are collected while templates are
composed and run by Render (at PhaseStringify) or Stream (at PhaseBeforeStream
and PhaseStream). A callback sees the content assembled so far through a
shared Accumulator and may return a further deferred result, which is resolved
against the same accumulator.

	page, err := markup.HTML(ctx, []string{"<h1>", "</h1><ul>", "</ul>"},
		title,
		items,
	)
*/
package markup
