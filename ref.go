package berth

import (
	"context"
	"fmt"
)

// Ref is what a consumer inside a scope holds instead of the service itself.
// It is bound to a registry and a key, not to a scope: Get reads the scope id
// from the context at call time, so one Ref can serve every scope.
// A Ref never creates services, and the value it returns is borrowed.
type Ref[T any] struct {
	registry *Registry
	key      TypeKey
}

// NewRef creates a reference to the unnamed service of type T.
func NewRef[T any](registry *Registry) *Ref[T] {
	return &Ref[T]{
		registry: registry,
		key:      KeyOf[T](),
	}
}

// NewNamedRef creates a reference to the named service of type T.
func NewNamedRef[T any](registry *Registry, name string) *Ref[T] {
	return &Ref[T]{
		registry: registry,
		key:      NamedKeyOf[T](name),
	}
}

// Get returns the service of the scope carried by ctx.
// It reports false when ctx carries no scope or the scope owns no such service.
func (r *Ref[T]) Get(ctx context.Context) (T, bool) {
	var zero T

	id, ok := ScopeIDFrom(ctx)
	if !ok {
		return zero, false
	}

	return Lookup[T](r.registry, id, r.key.name)
}

// MustGet returns the service of the scope carried by ctx, panicking if absent.
func (r *Ref[T]) MustGet(ctx context.Context) T {
	value, ok := r.Get(ctx)
	if !ok {
		panic(fmt.Sprintf("scoped service %s not available in context", r.key))
	}

	return value
}

// Key returns the key the reference looks up.
func (r *Ref[T]) Key() TypeKey {
	return r.key
}
