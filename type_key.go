package berth

import (
	"fmt"
	"reflect"
)

// TypeKey identifies a service contract by its Go type and an optional name.
// Two requests coalesce only when both the type and the name are equal.
// The zero TypeKey identifies nothing.
type TypeKey struct {
	typ  reflect.Type
	name string // Empty for unnamed services, or "primary", "readonly" etc.
}

// KeyOf returns the key for T. Interface types are kept as interfaces.
//
// Example:
//
//	var TimerKey = berth.KeyOf[Timer]()
func KeyOf[T any]() TypeKey {
	return TypeKey{typ: reflect.TypeOf((*T)(nil)).Elem()}
}

// NamedKeyOf returns the key for T under the given name.
func NamedKeyOf[T any](name string) TypeKey {
	return TypeKey{typ: reflect.TypeOf((*T)(nil)).Elem(), name: name}
}

// KeyFor returns the unnamed key for a reflected type.
func KeyFor(t reflect.Type) TypeKey {
	return TypeKey{typ: t}
}

// Type returns the service type. Nil for the zero key.
func (k TypeKey) Type() reflect.Type {
	return k.typ
}

// Name returns the disambiguating name, empty for unnamed keys.
func (k TypeKey) Name() string {
	return k.name
}

// IsZero reports whether the key identifies no type.
func (k TypeKey) IsZero() bool {
	return k.typ == nil
}

// WithName returns a copy of the key under another name.
func (k TypeKey) WithName(name string) TypeKey {
	return TypeKey{typ: k.typ, name: name}
}

// String returns a human-readable representation of the type key
func (k TypeKey) String() string {
	typeName := "<nil>"
	if k.typ != nil {
		typeName = k.typ.String()
	}
	if k.name == "" {
		return typeName
	}
	return fmt.Sprintf("%s[name=%s]", typeName, k.name)
}
