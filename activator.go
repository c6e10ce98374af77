package berth

import (
	"reflect"

	"go.uber.org/multierr"
)

// Activator produces one instance of a requested service with its
// dependencies supplied by an outer resolver. Failure is an ordinary error
// return; activators never panic on unresolvable types.
type Activator interface {
	Activate(r Resolver, key TypeKey) (any, error)
}

// ActivatorFunc adapts a function to Activator.
type ActivatorFunc func(r Resolver, key TypeKey) (any, error)

// Activate implements Activator.
func (f ActivatorFunc) Activate(r Resolver, key TypeKey) (any, error) {
	return f(r, key)
}

// DefaultActivator returns the activator used by registries unless
// WithActivator replaces it.
func DefaultActivator() Activator {
	return ActivatorFunc(Activate)
}

// Activate builds a fresh instance for key.
//
// It first asks the resolver to construct the key directly, through the
// registration that owns it. When that fails it looks up the resolver's own
// instance, takes its concrete runtime type and constructs that under the
// same name, so the caller gets an independent object of the right type
// rather than the resolver's shared one.
func Activate(r Resolver, key TypeKey) (any, error) {
	if r == nil || key.IsZero() {
		return nil, ErrActivationFailed(key, nil)
	}

	instance, directErr := r.Construct(key)
	if directErr == nil {
		return checkActivated(key, instance, nil)
	}

	shared, err := r.Resolve(key)
	if err != nil {
		return nil, ErrActivationFailed(key, multierr.Combine(directErr, err))
	}
	if shared == nil {
		return nil, ErrActivationFailed(key, multierr.Append(directErr, ErrServiceNotFound(key)))
	}

	concrete := reflect.TypeOf(shared)
	if concrete == key.typ {
		// Direct construction of this very type already failed.
		return nil, ErrActivationFailed(key, directErr)
	}

	instance, err = r.Construct(TypeKey{typ: concrete, name: key.name})
	if err != nil {
		return nil, ErrActivationFailed(key, multierr.Combine(directErr, err))
	}

	return checkActivated(key, instance, shared)
}

// checkActivated rejects results that do not satisfy the key or that are the
// resolver's shared instance.
func checkActivated(key TypeKey, instance, shared any) (any, error) {
	if instance == nil {
		return nil, ErrActivationFailed(key, ErrNotConstructible(key.typ.String(), "constructor returned nil"))
	}

	if !reflect.TypeOf(instance).AssignableTo(key.typ) {
		return nil, ErrActivationFailed(key, ErrTypeMismatch(key, instance))
	}

	if shared != nil && sameObject(instance, shared) {
		return nil, ErrActivationFailed(key, ErrNotConstructible(key.typ.String(), "resolver returned its shared instance"))
	}

	return instance, nil
}

// sameObject reports whether a and b are the same reference. Only
// reference-like kinds can alias; values are always independent copies.
func sameObject(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Ptr:
		// Pointers to zero-size values may share an address without aliasing.
		return va.Type().Elem().Size() > 0 && va.Pointer() == vb.Pointer()
	case reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	default:
		return false
	}
}
