package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/vovakirdan/meshchat/internal/proto"
)

// Handler processes one decoded command. Expected failures (bad arity,
// unknown target) are reported by the handler itself; a returned error is
// logged by the caller and never stops a worker.
type Handler[C any] func(ctx context.Context, cmd C) error

// Registry maps command identifiers to handlers. It is populated once at
// startup and read-only afterwards, so lookups need no locking.
type Registry[C any] struct {
	handlers map[string]Handler[C]
}

// NewRegistry creates an empty registry.
func NewRegistry[C any]() *Registry[C] {
	return &Registry[C]{handlers: make(map[string]Handler[C])}
}

// Register binds identifier to h. Registering an identifier twice, or one
// outside the known command set, is an error.
func (r *Registry[C]) Register(identifier string, h Handler[C]) error {
	if !proto.IsKnown(identifier) {
		return fmt.Errorf("register %q: %w", identifier, ErrUnknownCommand)
	}
	if _, exists := r.handlers[identifier]; exists {
		return coreError(ErrCodeDuplicate, ErrDuplicateCommand, fmt.Sprintf("command %q registered twice", identifier))
	}
	r.handlers[identifier] = h
	return nil
}

// Has reports whether identifier has a handler.
func (r *Registry[C]) Has(identifier string) bool {
	_, ok := r.handlers[identifier]
	return ok
}

// Resolve returns the handler bound to identifier.
func (r *Registry[C]) Resolve(identifier string) (Handler[C], bool) {
	h, ok := r.handlers[identifier]
	return h, ok
}

// Identifiers returns the registered identifiers in sorted order.
func (r *Registry[C]) Identifiers() []string {
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
