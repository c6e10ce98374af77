// Package berth keeps service instances alive for exactly as long as a
// component scope.
//
// A scope boundary asks the Registry for the services it needs with
// GetOrCreate, passes its ScopeID to descendants through the context, and
// calls Remove (or ends its Scope) when the subtree goes away. Instances are
// built by an Activator from an outer Resolver, usually a *Container, and
// are released through Disposable and AsyncDisposable when their scope ends
// or when the registry itself is disposed.
//
//	c := berth.NewContainer()
//	c.Provide(NewTimer, berth.As(new(Ticker)))
//
//	reg := berth.New(c)
//	scope, err := reg.BeginScope(ctx, berth.KeyOf[Ticker]())
//	...
//	ticker, _ := berth.LookupContext[Ticker](scope.Context(), reg)
//	...
//	_ = scope.End()
//	_ = reg.Dispose()
package berth

// New creates a registry over resolver. It is shorthand for NewRegistry.
func New(resolver Resolver, opts ...Option) *Registry {
	return NewRegistry(resolver, opts...)
}
