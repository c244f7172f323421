package llm

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// Escalating tries an ordered list of generators in sequence. The list runs
// from cheapest to highest-capacity; a backend that errors or produces
// unparseable output hands the request to the next one. Each attempt sends
// a fresh request, never a mutated copy of a previous one.
type Escalating struct {
	backends []Generator
}

// NewEscalating builds an escalating generator over the given backends.
func NewEscalating(backends ...Generator) *Escalating {
	return &Escalating{backends: backends}
}

// Generate returns the first successful completion.
func (e *Escalating) Generate(ctx context.Context, req Request) (string, error) {
	if len(e.backends) == 0 {
		return "", ErrNoBackends
	}
	var errs []error
	for i, g := range e.backends {
		text, err := g.Generate(ctx, req)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		errs = append(errs, fmt.Errorf("backend %d: %w", i, err))
	}
	return "", errors.Join(errs...)
}

// GenerateInto generates and decodes JSON output into out, escalating on
// both transport errors and parse failures. out is written only on success;
// a failed attempt never leaves partial data behind. out must be a non-nil
// pointer.
func (e *Escalating) GenerateInto(ctx context.Context, req Request, out any) error {
	if len(e.backends) == 0 {
		return ErrNoBackends
	}
	dst := reflect.ValueOf(out)
	if dst.Kind() != reflect.Pointer || dst.IsNil() {
		return fmt.Errorf("llm: decode target must be a non-nil pointer, got %T", out)
	}
	var errs []error
	for i, g := range e.backends {
		text, err := g.Generate(ctx, req)
		if err == nil {
			// Decode into a fresh value: json.Unmarshal populates fields up
			// to the point of a type error, and that partial state must not
			// survive into the next attempt's result.
			fresh := reflect.New(dst.Type().Elem())
			if err = DecodeJSON(text, fresh.Interface()); err == nil {
				dst.Elem().Set(fresh.Elem())
				return nil
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errs = append(errs, fmt.Errorf("backend %d: %w", i, err))
	}
	return errors.Join(errs...)
}
