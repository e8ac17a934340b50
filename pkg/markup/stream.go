package markup

import (
	"context"
	"fmt"
	"io"
)

type flusher interface {
	Flush()
}

// Stream writes v to w in two steps. The head is v resolved at
// PhaseBeforeStream, with its callbacks kept. Then each of those callbacks is
// invoked at PhaseStream, in order, and whatever it resolves to is written as
// soon as it is ready. Escaped results are written verbatim and anything else
// is escaped. A plain result is written too, which differs from Render and
// ResolveCallbacks where a result without callbacks leaves the content as is:
// a stream has no accumulated content to fold it into, only the next chunk.
// When w has a Flush method it is called after every write.
func Stream(ctx context.Context, w io.Writer, v any) error {
	head, err := ResolveCallbacks(ctx, v, PhaseBeforeStream, true, nil)
	if err != nil {
		return fmt.Errorf("markup: stream: %w", err)
	}
	if err := writeChunk(w, toString(head)); err != nil {
		return err
	}

	e, ok := head.(Escaped)
	if !ok {
		return nil
	}
	for i, cb := range e.callbacks {
		f, err := cb(ctx, CallbackOptions{Phase: PhaseStream, Buffer: NewAccumulator("")})
		if err != nil {
			return fmt.Errorf("markup: stream: %s callback %d: %w", PhaseStream, i, err)
		}
		if f == nil {
			continue
		}
		r, err := f.Await(ctx)
		if err != nil {
			return fmt.Errorf("markup: stream: %s callback result: %w", PhaseStream, err)
		}
		if isEmptyResult(r) {
			continue
		}
		out, err := ResolveCallbacks(ctx, r, PhaseStream, true, nil)
		if err != nil {
			return fmt.Errorf("markup: stream: %w", err)
		}
		chunk, err := renderValue(ctx, out)
		if err != nil {
			return fmt.Errorf("markup: stream: %w", err)
		}
		if err := writeChunk(w, chunk.s); err != nil {
			return err
		}
	}
	return nil
}

func writeChunk(w io.Writer, s string) error {
	if s == "" {
		return nil
	}
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("markup: stream: write: %w", err)
	}
	if f, ok := w.(flusher); ok {
		f.Flush()
	}
	return nil
}
