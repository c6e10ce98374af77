package berth

import (
	"fmt"
	"reflect"
	"sync"
)

const (
	lifecycleSingleton = "singleton"
	lifecycleTransient = "transient"
)

// Container is a reflective, type-keyed dependency container. It is the
// outer resolver shipped with berth: services are provided as constructor
// functions whose parameters are resolved by type.
//
// A Container is safe for concurrent use. The Registry only reads from it.
type Container struct {
	services   map[TypeKey]*provider
	byConcrete map[TypeKey]*provider // runtime type (and name) a provider has built
	order      []TypeKey             // Preserve registration order
	mu         sync.RWMutex
}

// provider holds one registration. Keys added through As share it.
type provider struct {
	key       TypeKey
	ctor      *constructorInfo // nil for supplied values
	lifecycle string
	instance  any
	built     bool
	mu        sync.Mutex
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{
		services:   make(map[TypeKey]*provider),
		byConcrete: make(map[TypeKey]*provider),
	}
}

// Provide registers a constructor with automatic dependency resolution.
// Parameters become dependencies (resolved by type, or field by field for a
// struct embedding In); the first result is the provided type and an error
// may follow it.
//
// Example:
//
//	func NewTimer(clock Clock) *Timer { ... }
//
//	c.Provide(NewTimer, berth.As(new(Ticker)))
func (c *Container) Provide(constructor any, opts ...ProvideOption) error {
	info, err := analyzeConstructor(constructor)
	if err != nil {
		return ErrInvalidConstructor(err.Error(), nil)
	}

	config := newProvideConfig(opts)

	p := &provider{
		key:       TypeKey{typ: info.result, name: config.name},
		ctor:      info,
		lifecycle: config.lifecycle,
	}

	return c.register(p, config.asTypes)
}

// Supply registers a ready-made value. It always behaves as a singleton.
func (c *Container) Supply(value any, opts ...ProvideOption) error {
	if value == nil {
		return ErrInvalidConstructor("supplied value must not be nil", nil)
	}

	config := newProvideConfig(opts)

	p := &provider{
		key:       TypeKey{typ: reflect.TypeOf(value), name: config.name},
		lifecycle: lifecycleSingleton,
		instance:  value,
		built:     true,
	}

	return c.register(p, config.asTypes)
}

func (c *Container) register(p *provider, asTypes []reflect.Type) error {
	keys := []TypeKey{p.key}
	for _, iface := range asTypes {
		if !p.key.typ.Implements(iface) {
			return ErrInvalidConstructor(fmt.Sprintf("%s does not implement %s", p.key.typ, iface), nil)
		}
		keys = append(keys, TypeKey{typ: iface, name: p.key.name})
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		if _, exists := c.services[key]; exists {
			return ErrServiceAlreadyExists(key)
		}
	}

	for _, key := range keys {
		c.services[key] = p
		c.order = append(c.order, key)
	}

	return nil
}

// Resolve returns the container's own instance for key. Singletons are built
// once and cached; transients are built on every call.
func (c *Container) Resolve(key TypeKey) (any, error) {
	return c.resolve(key, nil)
}

func (c *Container) resolve(key TypeKey, path []TypeKey) (any, error) {
	if key.IsZero() {
		return nil, ErrServiceNotFound(key)
	}

	c.mu.RLock()
	p, ok := c.services[key]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrServiceNotFound(key)
	}

	return p.resolve(c, path)
}

// resolve returns the provider's instance, building it if needed.
func (p *provider) resolve(c *Container, path []TypeKey) (any, error) {
	if err := checkCycle(p.key, path); err != nil {
		return nil, err
	}

	if p.lifecycle == lifecycleTransient {
		return p.build(c, path)
	}

	// Singletons hold their own lock while building. Cycles were rejected
	// above, so locks are taken in dependency order.
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.built {
		return p.instance, nil
	}

	instance, err := p.build(c, path)
	if err != nil {
		return nil, err
	}

	p.instance = instance
	p.built = true

	return instance, nil
}

// build calls the constructor with freshly resolved arguments.
func (p *provider) build(c *Container, path []TypeKey) (any, error) {
	if p.ctor == nil {
		return nil, ErrNotConstructible(p.key.typ.String(), "supplied value has no constructor")
	}

	path = append(path[:len(path):len(path)], p.key)

	args := make([]reflect.Value, len(p.ctor.params))
	for i, param := range p.ctor.params {
		if param.isIn {
			value, err := c.resolveInStruct(param, path)
			if err != nil {
				return nil, err
			}
			args[i] = value
			continue
		}

		value, err := c.resolveParam(param, path)
		if err != nil {
			return nil, err
		}
		args[i] = value
	}

	instance, err := p.ctor.call(args)
	if err != nil {
		return nil, NewServiceError(p.key, err)
	}

	c.recordConcrete(p, instance)

	return instance, nil
}

// recordConcrete remembers which provider built instances of a runtime type
// that differs from its declared result, e.g. a constructor returning an
// interface. Construct finds the constructor again through it.
func (c *Container) recordConcrete(p *provider, instance any) {
	t := reflect.TypeOf(instance)
	if t == nil || t == p.key.typ {
		return
	}

	key := TypeKey{typ: t, name: p.key.name}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byConcrete[key]; !exists {
		c.byConcrete[key] = p
	}
}

// Construct builds a new instance for key. The constructor of the
// registration owning key (name included) is called again; a key naming the
// runtime type some constructor has already produced reaches that
// constructor too. Otherwise an unnamed struct (or pointer to struct) is
// allocated and its `inject` tagged fields are resolved.
// The cached singleton is never returned.
func (c *Container) Construct(key TypeKey) (any, error) {
	if key.IsZero() {
		return nil, ErrNotConstructible(key.String(), "no type")
	}

	c.mu.RLock()
	p, ok := c.services[key]
	if !ok || p.ctor == nil {
		p, ok = c.byConcrete[key]
	}
	c.mu.RUnlock()

	if ok && p.ctor != nil {
		return p.build(c, nil)
	}

	t := key.typ
	if t.Kind() == reflect.Interface {
		return nil, ErrNotConstructible(key.String(), "no constructor registered for interface")
	}

	if key.name != "" {
		return nil, ErrNotConstructible(key.String(), "no constructor registered under this name")
	}

	structType := t
	if t.Kind() == reflect.Ptr {
		structType = t.Elem()
	}

	if structType.Kind() != reflect.Struct {
		return nil, ErrNotConstructible(key.String(), "no constructor registered")
	}

	value, err := c.populate(structType, injectableFields(structType), []TypeKey{key})
	if err != nil {
		return nil, err
	}

	if t.Kind() == reflect.Ptr {
		ptr := reflect.New(structType)
		ptr.Elem().Set(value)
		return ptr.Interface(), nil
	}

	return value.Interface(), nil
}

// Has reports whether key is provided.
func (c *Container) Has(key TypeKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.services[key]
	return ok
}

// Keys returns all provided keys in registration order.
func (c *Container) Keys() []TypeKey {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]TypeKey, len(c.order))
	copy(keys, c.order)
	return keys
}

// Validate checks that every required dependency is provided and that the
// registrations contain no cycle.
func (c *Container) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	graph := NewDependencyGraph()

	for _, key := range c.order {
		p := c.services[key]

		var deps []TypeKey
		if p.ctor != nil {
			for _, param := range p.ctor.params {
				for _, dep := range flattenParam(param) {
					if _, ok := c.services[dep.key()]; !ok {
						if dep.optional {
							continue
						}
						return fmt.Errorf("%s: %w", key, ErrServiceNotFound(dep.key()))
					}
					deps = append(deps, dep.key())
				}
			}
		}

		graph.AddNode(key, deps)
	}

	_, err := graph.TopologicalSort()
	return err
}

// resolveInStruct creates and populates an In struct with resolved dependencies
func (c *Container) resolveInStruct(param paramInfo, path []TypeKey) (reflect.Value, error) {
	structType := param.typ
	isPtr := structType.Kind() == reflect.Ptr
	if isPtr {
		structType = structType.Elem()
	}

	structValue, err := c.populate(structType, param.inFields, path)
	if err != nil {
		return reflect.Value{}, err
	}

	if isPtr {
		ptrValue := reflect.New(structType)
		ptrValue.Elem().Set(structValue)
		return ptrValue, nil
	}

	return structValue, nil
}

// populate allocates a struct and sets the listed fields.
func (c *Container) populate(structType reflect.Type, fields []paramInfo, path []TypeKey) (reflect.Value, error) {
	structValue := reflect.New(structType).Elem()

	for _, field := range fields {
		value, err := c.resolveParam(field, path)
		if err != nil {
			return reflect.Value{}, err
		}
		structValue.Field(field.index).Set(value)
	}

	return structValue, nil
}

// resolveParam resolves a single dependency. Missing optional dependencies
// yield the zero value of their type.
func (c *Container) resolveParam(param paramInfo, path []TypeKey) (reflect.Value, error) {
	if param.optional && !c.Has(param.key()) {
		return reflect.Zero(param.typ), nil
	}

	instance, err := c.resolve(param.key(), path)
	if err != nil {
		return reflect.Value{}, err
	}

	if instance == nil {
		return reflect.Zero(param.typ), nil
	}

	value := reflect.ValueOf(instance)
	if !value.Type().AssignableTo(param.typ) {
		return reflect.Value{}, ErrTypeMismatch(param.key(), instance)
	}

	return value, nil
}

func flattenParam(param paramInfo) []paramInfo {
	if param.isIn {
		return param.inFields
	}
	return []paramInfo{param}
}

func checkCycle(key TypeKey, path []TypeKey) error {
	for i, seen := range path {
		if seen == key {
			cycle := make([]string, 0, len(path)-i+1)
			for _, k := range path[i:] {
				cycle = append(cycle, k.String())
			}
			cycle = append(cycle, key.String())
			return ErrCircularDependency(cycle)
		}
	}
	return nil
}
