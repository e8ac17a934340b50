package markup

import (
	"context"
	"fmt"
)

// Render finalizes v into a plain string. v is normally a Result or an
// Escaped; a pending Result is awaited first. The callbacks carried by the
// value run once at PhaseStringify and their effect is part of the returned
// string. A plain string passes through unchanged.
func Render(ctx context.Context, v any) (string, error) {
	out, err := ResolveCallbacks(ctx, v, PhaseStringify, true, nil)
	if err != nil {
		return "", fmt.Errorf("markup: render: %w", err)
	}
	return toString(out), nil
}

// HTML composes a template like Build and renders it like Render.
func HTML(ctx context.Context, segments []string, values ...any) (string, error) {
	res, err := Build(ctx, segments, values...)
	if err != nil {
		return "", err
	}
	return Render(ctx, res)
}
