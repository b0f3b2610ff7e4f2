package core

import (
	"context"
	"fmt"
)

// Dispatcher decodes raw input into a role-specific command and invokes the
// handler registered for its identifier. Unregistered identifiers go to the
// invalid handler.
type Dispatcher[C any] struct {
	registry *Registry[C]
	decode   func(raw string) (C, error)
	identify func(C) string
	invalid  Handler[C]
}

// NewDispatcher builds a dispatcher over registry. decode turns raw input
// into a command, identify extracts its identifier and invalid handles
// anything the registry does not know.
func NewDispatcher[C any](registry *Registry[C], decode func(string) (C, error), identify func(C) string, invalid Handler[C]) *Dispatcher[C] {
	return &Dispatcher[C]{
		registry: registry,
		decode:   decode,
		identify: identify,
		invalid:  invalid,
	}
}

// Handle decodes raw and dispatches the result. The decoded command is
// returned even when its handler fails.
func (d *Dispatcher[C]) Handle(ctx context.Context, raw string) (C, error) {
	cmd, err := d.decode(raw)
	if err != nil {
		var zero C
		return zero, err
	}
	return cmd, d.Dispatch(ctx, cmd)
}

// Dispatch invokes the handler for an already decoded command.
func (d *Dispatcher[C]) Dispatch(ctx context.Context, cmd C) error {
	id := d.identify(cmd)
	h, ok := d.registry.Resolve(id)
	if !ok {
		if d.invalid == nil {
			return nil
		}
		return d.invalid(ctx, cmd)
	}
	if err := h(ctx, cmd); err != nil {
		return fmt.Errorf("handle %s: %w", id, err)
	}
	return nil
}
