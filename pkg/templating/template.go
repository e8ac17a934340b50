package templating

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/CTAG07/markup/pkg/markup"
)

var (
	// ErrMissingData is returned in strict mode when a placeholder key is absent.
	ErrMissingData = errors.New("templating: missing data")
	// ErrNoFragments is returned when a template uses {{fragment}} but no loader is set.
	ErrNoFragments = errors.New("templating: no fragment loader configured")
)

// FragmentLoader resolves a fragment name to a deferred value.
// *fragments.Store satisfies it.
type FragmentLoader interface {
	Load(ctx context.Context, name string) *markup.Future
}

type slotKind int

const (
	slotValue slotKind = iota
	slotRaw
	slotFragment
)

type slot struct {
	kind slotKind
	key  string
}

// Template is a parsed placeholder template: literal segments interleaved
// with slots, ready to be handed to markup.Build.
type Template struct {
	name     string
	segments []string
	slots    []slot
}

// Parse splits text into literal segments and placeholders.
func Parse(name, text string) (*Template, error) {
	t := &Template{name: name}
	rest := text
	offset := 0
	for {
		open := strings.Index(rest, "{{")
		if open == -1 {
			break
		}
		end := strings.Index(rest[open+2:], "}}")
		if end == -1 {
			return nil, fmt.Errorf("%s:%d: unterminated placeholder", name, offset+open)
		}
		s, err := parseSlot(rest[open+2 : open+2+end])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, offset+open, err)
		}
		t.segments = append(t.segments, rest[:open])
		t.slots = append(t.slots, s)
		consumed := open + 2 + end + 2
		rest = rest[consumed:]
		offset += consumed
	}
	t.segments = append(t.segments, rest)
	return t, nil
}

func parseSlot(body string) (slot, error) {
	fields := strings.Fields(body)
	switch len(fields) {
	case 1:
		return slot{kind: slotValue, key: fields[0]}, nil
	case 2:
		switch fields[0] {
		case "raw":
			return slot{kind: slotRaw, key: fields[1]}, nil
		case "fragment":
			return slot{kind: slotFragment, key: fields[1]}, nil
		}
		return slot{}, fmt.Errorf("unknown directive %q", fields[0])
	case 0:
		return slot{}, errors.New("empty placeholder")
	}
	return slot{}, fmt.Errorf("malformed placeholder %q", strings.TrimSpace(body))
}

// Name returns the name the template was parsed with.
func (t *Template) Name() string { return t.name }

// Fragments returns the fragment names the template refers to, in order.
func (t *Template) Fragments() []string {
	var names []string
	for _, s := range t.slots {
		if s.kind == slotFragment {
			names = append(names, s.key)
		}
	}
	return names
}

// Build composes the template with data. Fragments are requested from loader
// up front so they load concurrently.
func (t *Template) Build(ctx context.Context, data map[string]any, loader FragmentLoader, strict bool) (markup.Result, error) {
	values := make([]any, len(t.slots))
	for i, s := range t.slots {
		switch s.kind {
		case slotFragment:
			if loader == nil {
				return markup.Result{}, fmt.Errorf("%s: %w", t.name, ErrNoFragments)
			}
			values[i] = loader.Load(ctx, s.key)
		case slotValue, slotRaw:
			v, ok := data[s.key]
			if !ok && strict {
				return markup.Result{}, fmt.Errorf("%s: %w: %q", t.name, ErrMissingData, s.key)
			}
			if s.kind == slotRaw && v != nil {
				v = markup.Raw(v)
			}
			values[i] = v
		}
	}
	return markup.Build(ctx, t.segments, values...)
}
