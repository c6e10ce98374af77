package berth

import "context"

// Obtain is GetOrCreate with type safety. An optional name selects a named key.
//
// Example:
//
//	timer, ok := berth.Obtain[Ticker](reg, id)
func Obtain[T any](r *Registry, id ScopeID, name ...string) (T, bool) {
	var zero T

	instance, ok := r.GetOrCreate(id, typedKey[T](name))
	if !ok {
		return zero, false
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, false
	}

	return typed, true
}

// Lookup is Get with type safety. It never creates.
func Lookup[T any](r *Registry, id ScopeID, name ...string) (T, bool) {
	var zero T

	instance, ok := r.Get(id, typedKey[T](name))
	if !ok {
		return zero, false
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, false
	}

	return typed, true
}

// Release is Remove for the service of type T.
func Release[T any](r *Registry, id ScopeID, name ...string) (bool, error) {
	return r.Remove(id, typedKey[T](name))
}

// LookupContext is Lookup for the scope carried by ctx.
func LookupContext[T any](ctx context.Context, r *Registry, name ...string) (T, bool) {
	var zero T

	id, ok := ScopeIDFrom(ctx)
	if !ok {
		return zero, false
	}

	return Lookup[T](r, id, name...)
}

func typedKey[T any](name []string) TypeKey {
	if len(name) > 0 {
		return NamedKeyOf[T](name[0])
	}
	return KeyOf[T]()
}

// MustProvide registers a constructor or panics - use only during startup.
func MustProvide(c *Container, constructor any, opts ...ProvideOption) {
	if err := c.Provide(constructor, opts...); err != nil {
		panic(err)
	}
}
